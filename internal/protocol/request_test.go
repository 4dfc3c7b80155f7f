package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMatchRequest(t *testing.T) {
	assert.Equal(t, "GET /match/1/42 HTTP/1.0\r\n\r\n", string(FormatMatchRequest(1, 42)))
	assert.Equal(t,
		"GET /match/18446744073709551615/0 HTTP/1.0\r\n\r\n",
		string(FormatMatchRequest(18446744073709551615, 0)))
}

func TestParseMatchPath(t *testing.T) {
	p, c, err := ParseMatchPath(MatchPath(7, 18446744073709551615))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), p)
	assert.Equal(t, uint64(18446744073709551615), c)

	for _, path := range []string{"/", "/match/1", "/match/1/2/3", "/other/1/2", "/match/x/2", "/match/1/-2"} {
		_, _, err := ParseMatchPath(path)
		assert.Error(t, err, "path %q", path)
	}
}
