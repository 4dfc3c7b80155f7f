package connector

// MatchStatus is the externally observable outcome of the latest attempt.
type MatchStatus int

const (
	MatchIdle MatchStatus = iota
	MatchFailed
	MatchReady
)

var matchStatusStrings = map[MatchStatus]string{
	MatchIdle:   "IDLE",
	MatchFailed: "FAILED",
	MatchReady:  "READY",
}

// String returns the upper-case status name.
func (s MatchStatus) String() string {
	if str, ok := matchStatusStrings[s]; ok {
		return str
	}
	return "IDLE"
}

// MarshalJSON serializes MatchStatus as a JSON string (e.g. "READY").
func (s MatchStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}
