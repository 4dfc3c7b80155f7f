package protocol

import (
	"bytes"
	"fmt"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(n int, fill byte) string {
	return EncodeData(bytes.Repeat([]byte{fill}, n))
}

func addrField(addrs ...string) []interface{} {
	out := make([]interface{}, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, EncodeData([]byte(a)))
	}
	return out
}

func fixtureFields(addrs ...string) map[string]interface{} {
	return map[string]interface{}{
		FieldConnectTokenData:            b64(ConnectTokenBytes, 0xAB),
		FieldConnectTokenNonce:           "12345",
		FieldConnectTokenExpireTimestamp: "1700000000",
		FieldServerAddresses:             addrField(addrs...),
		FieldClientToServerKey:           b64(KeyBytes, 0x01),
		FieldServerToClientKey:           b64(KeyBytes, 0x02),
	}
}

func marshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestParseMatchResponseValid(t *testing.T) {
	addrs := []string{"127.0.0.1:40000", "[::1]:40001", "10.1.2.3:50000"}
	body := marshal(t, fixtureFields(addrs...))

	resp, err := ParseMatchResponse(body)
	require.NoError(t, err)

	assert.Equal(t, len(addrs), resp.NumServerAddresses)
	for i, a := range resp.Addresses() {
		assert.Equal(t, addrs[i], a.String())
	}
	assert.Equal(t, uint64(12345), resp.ConnectTokenNonce)
	assert.Equal(t, uint64(1700000000), resp.ConnectTokenExpireTimestamp)
	assert.Equal(t, bytes.Repeat([]byte{0xAB}, ConnectTokenBytes), resp.ConnectTokenData[:])
	assert.Equal(t, bytes.Repeat([]byte{0x01}, KeyBytes), resp.ClientToServerKey[:])
	assert.Equal(t, bytes.Repeat([]byte{0x02}, KeyBytes), resp.ServerToClientKey[:])
	assert.False(t, resp.IsZero())
}

func TestParseMatchResponseIgnoresUnknownFields(t *testing.T) {
	fields := fixtureFields("1.2.3.4:5")
	fields["region"] = "eu-west"
	fields["extra"] = []int{1, 2, 3}

	resp, err := ParseMatchResponse(marshal(t, fields))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.NumServerAddresses)
}

func TestParseMatchResponseEmptyServerList(t *testing.T) {
	resp, err := ParseMatchResponse(marshal(t, fixtureFields()))
	require.NoError(t, err)
	assert.Equal(t, 0, resp.NumServerAddresses)
	assert.Empty(t, resp.Addresses())
}

func TestParseMatchResponseMissingField(t *testing.T) {
	for _, f := range requiredFields {
		t.Run(f.name, func(t *testing.T) {
			fields := fixtureFields("127.0.0.1:40000")
			delete(fields, f.name)

			resp, err := ParseMatchResponse(marshal(t, fields))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingField)
			assert.True(t, resp.IsZero())

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, f.name, ve.Field)
		})
	}
}

func TestParseMatchResponseWrongType(t *testing.T) {
	for _, f := range requiredFields {
		t.Run(f.name, func(t *testing.T) {
			fields := fixtureFields("127.0.0.1:40000")
			if f.typ == jsoniter.ArrayValue {
				fields[f.name] = "not-an-array"
			} else {
				fields[f.name] = 42
			}

			resp, err := ParseMatchResponse(marshal(t, fields))
			assert.ErrorIs(t, err, ErrWrongType)
			assert.True(t, resp.IsZero())
		})
	}

	t.Run("null", func(t *testing.T) {
		fields := fixtureFields()
		fields[FieldClientToServerKey] = nil
		_, err := ParseMatchResponse(marshal(t, fields))
		assert.ErrorIs(t, err, ErrWrongType)
	})
}

func TestParseMatchResponseFixedSizeBoundaries(t *testing.T) {
	tests := []struct {
		field string
		size  int
	}{
		{FieldConnectTokenData, ConnectTokenBytes},
		{FieldClientToServerKey, KeyBytes},
		{FieldServerToClientKey, KeyBytes},
	}

	for _, tt := range tests {
		for _, delta := range []int{-1, +1} {
			t.Run(tt.field, func(t *testing.T) {
				fields := fixtureFields("127.0.0.1:40000")
				fields[tt.field] = b64(tt.size+delta, 0x7F)

				resp, err := ParseMatchResponse(marshal(t, fields))
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
				assert.True(t, resp.IsZero())
			})
		}
	}
}

func TestParseMatchResponseServerCount(t *testing.T) {
	many := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("10.0.0.1:%d", 40000+i)
		}
		return out
	}

	t.Run("exactly max", func(t *testing.T) {
		addrs := many(MaxServersPerConnect)
		resp, err := ParseMatchResponse(marshal(t, fixtureFields(addrs...)))
		require.NoError(t, err)
		assert.Equal(t, MaxServersPerConnect, resp.NumServerAddresses)
		for i, a := range resp.Addresses() {
			assert.Equal(t, addrs[i], a.String())
		}
	})

	t.Run("one over max", func(t *testing.T) {
		resp, err := ParseMatchResponse(marshal(t, fixtureFields(many(MaxServersPerConnect+1)...)))
		assert.ErrorIs(t, err, ErrTooManyServers)
		assert.True(t, resp.IsZero())
	})

	t.Run("one over max with invalid entries", func(t *testing.T) {
		fields := fixtureFields()
		entries := make([]interface{}, MaxServersPerConnect+1)
		for i := range entries {
			entries[i] = 7
		}
		fields[FieldServerAddresses] = entries
		_, err := ParseMatchResponse(marshal(t, fields))
		assert.ErrorIs(t, err, ErrTooManyServers)
	})
}

func TestParseMatchResponseBadAddresses(t *testing.T) {
	tests := []struct {
		name  string
		entry interface{}
		want  error
	}{
		{"not a string", 1234, ErrWrongType},
		{"not base64", "%%%%", ErrInvalidAddress},
		{"not an address", EncodeData([]byte("game.example.com:40000")), ErrInvalidAddress},
		{"too long", EncodeData(bytes.Repeat([]byte{'1'}, MaxAddressLength)), ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := fixtureFields()
			fields[FieldServerAddresses] = []interface{}{EncodeData([]byte("127.0.0.1:40000")), tt.entry}

			resp, err := ParseMatchResponse(marshal(t, fields))
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, resp.IsZero())
		})
	}
}

func TestParseMatchResponseIntegers(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"0", 0, true},
		{"18446744073709551615", 18446744073709551615, true},
		{"-1", 18446744073709551615, true},
		{"", 0, false},
		{"12abc", 0, false},
		{"18446744073709551616", 0, false},
		{" 12", 0, false},
		{"+5", 0, false},
		{"+0", 0, false},
		{"-0", 0, true},
		{"-9223372036854775808", 9223372036854775808, true},
		{"-9223372036854775809", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			fields := fixtureFields()
			fields[FieldConnectTokenNonce] = tt.in

			resp, err := ParseMatchResponse(marshal(t, fields))
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidInteger)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.ConnectTokenNonce)
		})
	}
}

func TestParseMatchResponseMalformedJSON(t *testing.T) {
	valid := string(marshal(t, fixtureFields()))
	inputs := []string{
		"",
		"   ",
		"[]",
		`"string"`,
		"null",
		valid[:len(valid)-1],
		valid + " trailing",
		valid + "{}",
	}

	for _, in := range inputs {
		_, err := ParseMatchResponse([]byte(in))
		assert.ErrorIs(t, err, ErrInvalidJSON, "input %q", in)
	}

	_, err := ParseMatchResponse([]byte("\r\n" + valid + "\r\n"))
	assert.NoError(t, err)
}

func TestResponseBodyRoundTrip(t *testing.T) {
	orig, err := ParseMatchResponse(marshal(t, fixtureFields("127.0.0.1:40000", "127.0.0.1:40001")))
	require.NoError(t, err)

	data, err := NewResponseBody(&orig).Marshal()
	require.NoError(t, err)

	again, err := ParseMatchResponse(data)
	require.NoError(t, err)
	assert.Equal(t, orig, again)
}
