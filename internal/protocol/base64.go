package protocol

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeData decodes standard padded base64 text into out and returns the
// number of bytes decoded. It never writes past len(out): input that would
// decode to more than len(out) bytes fails with ErrBufferOverflow and leaves
// out untouched. Callers enforce exact-size contracts by comparing the
// returned length against the expected size. Line breaks are not allowed.
func DecodeData(text string, out []byte) (int, error) {
	// The decoder skips line breaks silently; reject them so length checks
	// see the same text the decoder does.
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		return 0, fmt.Errorf("%w: line break at offset %d", ErrBase64, i)
	}
	maxLen := base64.StdEncoding.DecodedLen(len(text))
	// DecodedLen over-estimates by at most two padding bytes.
	if maxLen > len(out)+2 {
		return 0, fmt.Errorf("%w: %d > %d", ErrBufferOverflow, maxLen, len(out))
	}

	scratch := make([]byte, maxLen)
	n, err := base64.StdEncoding.Decode(scratch, []byte(text))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBase64, err)
	}
	if n > len(out) {
		return 0, fmt.Errorf("%w: %d > %d", ErrBufferOverflow, n, len(out))
	}
	copy(out, scratch[:n])
	return n, nil
}

// DecodeFixed decodes text into out and requires the decoded length to be
// exactly len(out).
func DecodeFixed(text string, out []byte) error {
	n, err := DecodeData(text, out)
	if err != nil {
		return err
	}
	if n != len(out) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrDecodedLength, n, len(out))
	}
	return nil
}

// DecodeString decodes base64 text into a string. Capacity counts one
// reserved terminator byte, so the decoded text must be shorter than it.
func DecodeString(text string, capacity int) (string, error) {
	if capacity <= 1 {
		return "", fmt.Errorf("%w: capacity %d", ErrBufferOverflow, capacity)
	}
	buf := make([]byte, capacity-1)
	n, err := DecodeData(text, buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// EncodeData is the inverse of DecodeData.
func EncodeData(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
