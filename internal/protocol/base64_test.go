package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeData(t *testing.T) {
	out := make([]byte, 8)
	n, err := DecodeData(EncodeData([]byte("hello")), out)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out[:n]))

	n, err = DecodeData("", out)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDecodeDataOverflowLeavesOutputUntouched(t *testing.T) {
	out := bytes.Repeat([]byte{0xEE}, 4)

	_, err := DecodeData(EncodeData([]byte("hello")), out)
	assert.ErrorIs(t, err, ErrBufferOverflow)
	assert.Equal(t, bytes.Repeat([]byte{0xEE}, 4), out)

	_, err = DecodeData(EncodeData(make([]byte, 64)), out)
	assert.ErrorIs(t, err, ErrBufferOverflow)
	assert.Equal(t, bytes.Repeat([]byte{0xEE}, 4), out)
}

func TestDecodeDataRejectsBadInput(t *testing.T) {
	out := make([]byte, 16)
	for _, in := range []string{"%%%%", "aGVsbG8", "aGVs bG8=", "aGVsbG8==", "aGVs\nbG8=", "aGVsbG8=\r\n"} {
		_, err := DecodeData(in, out)
		assert.ErrorIs(t, err, ErrBase64, "input %q", in)
	}
}

func TestDecodeDataRejectsWrappedText(t *testing.T) {
	token := EncodeData(bytes.Repeat([]byte{0xAB}, ConnectTokenBytes))
	var wrapped strings.Builder
	for i := 0; i < len(token); i += 76 {
		end := i + 76
		if end > len(token) {
			end = len(token)
		}
		wrapped.WriteString(token[i:end])
		wrapped.WriteString("\r\n")
	}

	var out [ConnectTokenBytes]byte
	err := DecodeFixed(wrapped.String(), out[:])
	assert.ErrorIs(t, err, ErrBase64)
	assert.NotErrorIs(t, err, ErrBufferOverflow)
	assert.Equal(t, [ConnectTokenBytes]byte{}, out)

	require.NoError(t, DecodeFixed(token, out[:]))
}

func TestDecodeFixed(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, KeyBytes)
	var out [KeyBytes]byte
	require.NoError(t, DecodeFixed(EncodeData(key), out[:]))
	assert.Equal(t, key, out[:])

	assert.ErrorIs(t, DecodeFixed(EncodeData(key[:KeyBytes-1]), out[:]), ErrDecodedLength)
	assert.ErrorIs(t, DecodeFixed(EncodeData(append(key, 0)), out[:]), ErrBufferOverflow)
}

func TestDecodeString(t *testing.T) {
	s, err := DecodeString(EncodeData([]byte("127.0.0.1:40000")), MaxAddressLength)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:40000", s)

	// One byte of capacity is reserved.
	_, err = DecodeString(EncodeData([]byte("abcd")), 4)
	assert.ErrorIs(t, err, ErrBufferOverflow)
	s, err = DecodeString(EncodeData([]byte("abc")), 4)
	require.NoError(t, err)
	assert.Equal(t, "abc", s)

	_, err = DecodeString("YQ==", 1)
	assert.ErrorIs(t, err, ErrBufferOverflow)
}
