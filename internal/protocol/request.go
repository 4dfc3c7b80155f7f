package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// MatchPath returns the request path for a protocol/client pair.
func MatchPath(protocolID, clientID uint64) string {
	return fmt.Sprintf("/match/%d/%d", protocolID, clientID)
}

// FormatMatchRequest builds the single request line, terminated by a blank
// line, that is sent over the secure channel.
func FormatMatchRequest(protocolID, clientID uint64) []byte {
	return []byte("GET " + MatchPath(protocolID, clientID) + " HTTP/1.0" + HeaderBodyDelimiter)
}

// ParseMatchPath extracts the protocol and client IDs from a request path.
func ParseMatchPath(path string) (protocolID, clientID uint64, err error) {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "match" {
		return 0, 0, fmt.Errorf("protocol: not a match path: %q", path)
	}
	if protocolID, err = strconv.ParseUint(parts[1], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("protocol: bad protocol id %q: %w", parts[1], err)
	}
	if clientID, err = strconv.ParseUint(parts[2], 10, 64); err != nil {
		return 0, 0, fmt.Errorf("protocol: bad client id %q: %w", parts[2], err)
	}
	return protocolID, clientID, nil
}
