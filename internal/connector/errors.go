package connector

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized    = errors.New("connector: matcher not initialized")
	ErrRequestInProgress = errors.New("connector: match request already in progress")
	ErrNoEntropy         = errors.New("connector: randomness source unavailable")
	ErrTrustMaterial     = errors.New("connector: no usable certificates in trust material")
	ErrPeerUnverified    = errors.New("connector: peer certificate failed verification")
)

// ErrorKind classifies why a match attempt failed.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInit
	KindTransport
	KindTrust
	KindFraming
	KindValidation
)

var errorKindStrings = map[ErrorKind]string{
	KindNone:       "none",
	KindInit:       "init",
	KindTransport:  "transport",
	KindTrust:      "trust",
	KindFraming:    "framing",
	KindValidation: "validation",
}

func (k ErrorKind) String() string {
	if str, ok := errorKindStrings[k]; ok {
		return str
	}
	return "unknown"
}

// MatchError is the structured cause behind a FAILED status.
type MatchError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("match %s error during %s: %v", e.Kind, e.Op, e.Err)
}

func (e *MatchError) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, op string, err error) *MatchError {
	return &MatchError{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the ErrorKind of err, or KindNone if err carries none.
func KindOf(err error) ErrorKind {
	var me *MatchError
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindNone
}
