package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stallReader returns its data in one read, then zero bytes with no error forever.
type stallReader struct {
	data []byte
	done bool
}

func (s *stallReader) Read(p []byte) (int, error) {
	if s.done {
		return 0, nil
	}
	s.done = true
	return copy(p, s.data), nil
}

func TestAccumulateUntilEOF(t *testing.T) {
	payload := []byte("HTTP/1.0 200 OK\r\n\r\n{}")
	buf := make([]byte, 64)

	n, err := Accumulate(iotest.OneByteReader(bytes.NewReader(payload)), buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
}

func TestAccumulateExactFit(t *testing.T) {
	payload := bytes.Repeat([]byte{'x'}, 32)
	buf := make([]byte, 32)

	n, err := Accumulate(bytes.NewReader(payload), buf)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
}

func TestAccumulateTooLarge(t *testing.T) {
	buf := make([]byte, 32)

	n, err := Accumulate(bytes.NewReader(bytes.Repeat([]byte{'x'}, 33)), buf)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
	assert.True(t, IsFramingError(err))
	assert.Equal(t, 32, n)
}

func TestAccumulateReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("HTTP/1.0"), iotest.ErrReader(boom))

	n, err := Accumulate(r, make([]byte, 64))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, len("HTTP/1.0"), n)
}

func TestAccumulateDataWithEOF(t *testing.T) {
	payload := []byte("HTTP/1.0 200 OK\r\n\r\n{}")
	n, err := Accumulate(iotest.DataErrReader(bytes.NewReader(payload)), make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
}

func TestAccumulateStalledReader(t *testing.T) {
	n, err := Accumulate(&stallReader{data: []byte("abc")}, make([]byte, 64))
	assert.ErrorIs(t, err, io.ErrNoProgress)
	assert.Equal(t, 3, n)
}

func TestSplitResponse(t *testing.T) {
	header, body, err := SplitResponse([]byte("HTTP/1.0 200 OK\r\nA: b\r\n\r\n{\"x\":1}"))
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.0 200 OK\r\nA: b", string(header))
	assert.Equal(t, `{"x":1}`, string(body))

	// Only the first blank line separates header from body.
	_, body, err = SplitResponse([]byte("HTTP/1.0 200 OK\r\n\r\nfirst\r\n\r\nsecond"))
	require.NoError(t, err)
	assert.Equal(t, "first\r\n\r\nsecond", string(body))

	_, body, err = SplitResponse([]byte("HTTP/1.0 200 OK\r\n\r\n"))
	require.NoError(t, err)
	assert.Empty(t, body)

	for _, in := range []string{"", "HTTP/1.0 200 OK\r\n", "HTTP/1.0 200 OK\n\n{}"} {
		_, _, err := SplitResponse([]byte(in))
		assert.ErrorIs(t, err, ErrNoBodyBoundary, "input %q", in)
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		header string
		code   int
		ok     bool
	}{
		{"HTTP/1.0 200 OK", 200, true},
		{"HTTP/1.1 204 No Content\r\nServer: x", 204, true},
		{"HTTP/1.1 404", 404, true},
		{"HTTP/2 200 OK", 0, false},
		{"garbage", 0, false},
		{"HTTP/1.0 2000 OK", 0, false},
		{"HTTP/1.0 abc OK", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		code, err := StatusCode([]byte(tt.header))
		if !tt.ok {
			assert.ErrorIs(t, err, ErrMalformedStatusLine, "header %q", tt.header)
			continue
		}
		require.NoError(t, err, "header %q", tt.header)
		assert.Equal(t, tt.code, code)
	}
}

func TestExtractBody(t *testing.T) {
	body, err := ExtractBody([]byte("HTTP/1.0 200 OK\r\nContent-Type: application/json\r\n\r\n{}"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))

	_, err = ExtractBody([]byte("HTTP/1.0 503 Service Unavailable\r\n\r\n{}"))
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.True(t, IsFramingError(err))

	_, err = ExtractBody([]byte("HTTP/1.0 200 OK\r\n"))
	assert.ErrorIs(t, err, ErrNoBodyBoundary)
}
