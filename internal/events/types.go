package events

import (
	"time"
)

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Match attempt lifecycle
	EventMatchRequested EventType = "match_requested"
	EventMatchReady     EventType = "match_ready"
	EventMatchFailed    EventType = "match_failed"

	// Connection progress within an attempt
	EventSecureChannelUp EventType = "secure_channel_up"
	EventTrustWarning    EventType = "trust_warning"

	// Fixture server
	EventMatchServed EventType = "match_served"

	// Published by telemetry when a process shuts down
	EventShutdown EventType = "shutdown"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// MatchAttemptPayload describes one requestMatch attempt. Fields that are
// not yet known when the event fires are left zero.
type MatchAttemptPayload struct {
	AttemptID   string        `json:"attempt_id"`
	ProtocolID  uint64        `json:"protocol_id"`
	ClientID    uint64        `json:"client_id"`
	Host        string        `json:"host"`
	Port        int           `json:"port"`
	Status      string        `json:"status"`
	ErrorKind   string        `json:"error_kind,omitempty"`
	Error       string        `json:"error,omitempty"`
	ServerCount int           `json:"server_count"`
	Duration    time.Duration `json:"duration_ns"`
	StartedAt   time.Time     `json:"started_at"`
}

// SecureChannelPayload is emitted once the TLS handshake completes.
type SecureChannelPayload struct {
	AttemptID   string `json:"attempt_id"`
	ServerName  string `json:"server_name"`
	TLSVersion  uint16 `json:"tls_version"`
	CipherSuite uint16 `json:"cipher_suite"`
	Verified    bool   `json:"verified"`
}

// TrustWarningPayload is emitted in permissive mode when the peer
// certificate would have failed verification.
type TrustWarningPayload struct {
	AttemptID string `json:"attempt_id"`
	Reason    string `json:"reason"`
}

// MatchServedPayload is emitted by the fixture server for every response it writes.
type MatchServedPayload struct {
	ProtocolID  uint64 `json:"protocol_id"`
	ClientID    uint64 `json:"client_id"`
	Nonce       uint64 `json:"nonce"`
	ServerCount int    `json:"server_count"`
	RemoteAddr  string `json:"remote_addr"`
}
