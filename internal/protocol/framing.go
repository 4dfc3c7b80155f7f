package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// maxEmptyReads bounds consecutive reads that return neither data nor an
// error before the reader is considered stuck.
const maxEmptyReads = 100

// Accumulate reads from r into buf until the peer closes the stream (io.EOF),
// a read fails, or buf is full. It returns the number of bytes accumulated.
//
// A full buffer is only accepted if the peer closes immediately afterwards;
// otherwise ErrResponseTooLarge is returned. Any error other than io.EOF is
// returned as-is alongside the bytes read so far.
func Accumulate(r io.Reader, buf []byte) (int, error) {
	n := 0
	empty := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if m == 0 {
			empty++
			if empty >= maxEmptyReads {
				return n, io.ErrNoProgress
			}
			continue
		}
		empty = 0
	}

	// Buffer full: the response fits only if the stream ends here.
	var extra [1]byte
	for i := 0; i < maxEmptyReads; i++ {
		m, err := r.Read(extra[:])
		if m > 0 {
			return n, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, len(buf))
		}
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
	}
	return n, io.ErrNoProgress
}

// SplitResponse locates the blank line separating the header block from the
// body. It fails with ErrNoBodyBoundary when no delimiter is present.
func SplitResponse(data []byte) (header, body []byte, err error) {
	idx := bytes.Index(data, []byte(HeaderBodyDelimiter))
	if idx < 0 {
		return nil, nil, ErrNoBodyBoundary
	}
	return data[:idx], data[idx+len(HeaderBodyDelimiter):], nil
}

// StatusCode parses the HTTP/1.x status line at the start of a header block.
func StatusCode(header []byte) (int, error) {
	line := header
	if i := bytes.Index(header, []byte("\r\n")); i >= 0 {
		line = header[:i]
	}
	fields := bytes.Fields(line)
	if len(fields) < 2 || !bytes.HasPrefix(fields[0], []byte("HTTP/1.")) {
		return 0, fmt.Errorf("%w: %q", ErrMalformedStatusLine, line)
	}
	code, err := strconv.Atoi(string(fields[1]))
	if err != nil || len(fields[1]) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedStatusLine, line)
	}
	return code, nil
}

// ExtractBody splits an accumulated response and checks for a 2xx status.
func ExtractBody(data []byte) ([]byte, error) {
	header, body, err := SplitResponse(data)
	if err != nil {
		return nil, err
	}
	code, err := StatusCode(header)
	if err != nil {
		return nil, err
	}
	if code < 200 || code > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, code)
	}
	return body, nil
}
