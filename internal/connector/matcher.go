// Package connector implements the matchmaking client: it requests a match
// over a secure channel and exposes the validated result and status.
package connector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smorey2/yojimbo/internal/events"
	"github.com/smorey2/yojimbo/internal/protocol"
	"github.com/smorey2/yojimbo/internal/util"
)

// Matcher requests matches from the matchmaking service. One request runs
// at a time per Matcher; status and response accessors are safe to call
// concurrently with a request.
type Matcher struct {
	mu sync.RWMutex

	eventBus *events.EventBus
	logger   zerolog.Logger

	opts      Options
	transport *transport

	status   MatchStatus
	response protocol.MatchResponse
	lastErr  error

	busy atomic.Bool
}

// NewMatcher creates an uninitialized Matcher. eventBus may be nil.
func NewMatcher(eventBus *events.EventBus) *Matcher {
	return &Matcher{
		eventBus: eventBus,
		logger:   util.ComponentLogger("matcher"),
	}
}

// Initialize seeds the secure channel's randomness source and loads its
// trust material. On failure the Matcher stays unusable and every
// RequestMatch fails with an init error.
func (m *Matcher) Initialize(opts Options) error {
	opts = opts.withDefaults()

	if err := opts.validate(); err != nil {
		return m.failInit(newError(KindInit, "initialize", err))
	}
	t, err := newTransport(opts)
	if err != nil {
		return m.failInit(newError(KindInit, "initialize", err))
	}

	m.mu.Lock()
	m.opts = opts
	m.transport = t
	m.mu.Unlock()

	m.logger.Info().
		Str("endpoint", opts.Address()).
		Str("server_name", opts.serverName()).
		Str("trust_mode", opts.TrustMode.String()).
		Int("max_response_bytes", opts.MaxResponseBytes).
		Msg("matcher initialized")

	if opts.TrustMode == TrustPermissive {
		m.logger.Warn().Msg("permissive trust mode: certificate verification failures are tolerated")
	}
	return nil
}

func (m *Matcher) failInit(err *MatchError) error {
	m.mu.Lock()
	m.transport = nil
	m.mu.Unlock()
	m.logger.Error().Err(err).Msg("matcher initialization failed")
	return err
}

// RequestMatch performs one blocking match attempt for the protocol/client
// pair. The outcome is READY with a fully validated response, or FAILED;
// the returned error is the structured cause. Overlapping calls fail with
// ErrRequestInProgress and leave status untouched.
func (m *Matcher) RequestMatch(ctx context.Context, protocolID, clientID uint64) error {
	if !m.busy.CompareAndSwap(false, true) {
		return ErrRequestInProgress
	}
	defer m.busy.Store(false)

	m.mu.RLock()
	t := m.transport
	m.mu.RUnlock()

	attempt := events.MatchAttemptPayload{
		AttemptID:  uuid.NewString(),
		ProtocolID: protocolID,
		ClientID:   clientID,
		StartedAt:  time.Now(),
	}
	logger := m.logger.With().
		Str("attempt", attempt.AttemptID).
		Uint64("protocol_id", protocolID).
		Uint64("client_id", clientID).
		Logger()

	var (
		resp protocol.MatchResponse
		err  error
	)
	if t == nil {
		err = newError(KindInit, "request", ErrNotInitialized)
	} else {
		attempt.Host = t.opts.Host
		attempt.Port = t.opts.Port
		m.emit(ctx, events.EventMatchRequested, attempt)
		logger.Debug().Str("endpoint", t.opts.Address()).Msg("requesting match")

		resp, err = m.attempt(ctx, t, attempt.AttemptID, protocolID, clientID, logger)
	}

	attempt.Duration = time.Since(attempt.StartedAt)
	m.finish(resp, err)

	if err != nil {
		attempt.Status = MatchFailed.String()
		attempt.ErrorKind = KindOf(err).String()
		attempt.Error = err.Error()
		logger.Warn().
			Err(err).
			Str("kind", attempt.ErrorKind).
			Dur("duration", attempt.Duration).
			Msg("match request failed")
		m.emit(ctx, events.EventMatchFailed, attempt)
		return err
	}

	attempt.Status = MatchReady.String()
	attempt.ServerCount = resp.NumServerAddresses
	logger.Info().
		Int("servers", resp.NumServerAddresses).
		Uint64("expires", resp.ConnectTokenExpireTimestamp).
		Dur("duration", attempt.Duration).
		Msg("match ready")
	m.emit(ctx, events.EventMatchReady, attempt)
	return nil
}

// attempt drives one exchange over a fresh secure channel. The channel is
// closed with close_notify on every path once the handshake has completed.
func (m *Matcher) attempt(ctx context.Context, t *transport, attemptID string,
	protocolID, clientID uint64, logger zerolog.Logger) (resp protocol.MatchResponse, err error) {

	conn, err := t.open(ctx)
	if err != nil {
		return protocol.MatchResponse{}, err
	}
	defer func() {
		if cerr := closeChannel(conn); cerr != nil {
			logger.Debug().Err(cerr).Msg("secure channel close reported errors")
		}
	}()

	state := conn.ConnectionState()
	verified := t.opts.TrustMode == TrustStrict
	if !verified {
		if verr := t.verifyPeer(state); verr != nil {
			logger.Warn().Err(verr).Msg("peer verification failed, continuing in permissive mode")
			m.emit(ctx, events.EventTrustWarning, events.TrustWarningPayload{
				AttemptID: attemptID,
				Reason:    verr.Error(),
			})
		} else {
			verified = true
		}
	}
	m.emit(ctx, events.EventSecureChannelUp, events.SecureChannelPayload{
		AttemptID:   attemptID,
		ServerName:  t.opts.serverName(),
		TLSVersion:  state.Version,
		CipherSuite: state.CipherSuite,
		Verified:    verified,
	})

	if err := conn.SetDeadline(ioDeadline(ctx, t.opts.IOTimeout)); err != nil {
		return protocol.MatchResponse{}, newError(KindTransport, "send", err)
	}
	// Abort blocked I/O when the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := conn.Write(protocol.FormatMatchRequest(protocolID, clientID)); err != nil {
		return protocol.MatchResponse{}, newError(KindTransport, "send", canceled(ctx, err))
	}

	buf := make([]byte, t.opts.MaxResponseBytes)
	n, err := protocol.Accumulate(conn, buf)
	if err != nil {
		if protocol.IsFramingError(err) {
			return protocol.MatchResponse{}, newError(KindFraming, "receive", err)
		}
		return protocol.MatchResponse{}, newError(KindTransport, "receive", canceled(ctx, err))
	}
	logger.Debug().Int("bytes", n).Msg("response received")

	body, err := protocol.ExtractBody(buf[:n])
	if err != nil {
		return protocol.MatchResponse{}, newError(KindFraming, "frame", err)
	}

	resp, err = protocol.ParseMatchResponse(body)
	if err != nil {
		return protocol.MatchResponse{}, newError(KindValidation, "parse", err)
	}
	return resp, nil
}

// finish publishes the outcome of an attempt. A failed attempt clears any
// previous response.
func (m *Matcher) finish(resp protocol.MatchResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.status = MatchFailed
		m.response = protocol.MatchResponse{}
		m.lastErr = err
		return
	}
	m.status = MatchReady
	m.response = resp
	m.lastErr = nil
}

// GetMatchStatus returns the status of the latest attempt.
func (m *Matcher) GetMatchStatus() MatchStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// GetMatchResponse returns a copy of the response when the status is READY
// and the empty response otherwise.
func (m *Matcher) GetMatchResponse() protocol.MatchResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != MatchReady {
		return protocol.MatchResponse{}
	}
	return m.response
}

// GetLastError returns the cause of the latest FAILED status, or nil.
func (m *Matcher) GetLastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Matcher) emit(ctx context.Context, eventType events.EventType, payload interface{}) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Emit(context.WithoutCancel(ctx), events.Event{
		Type:    eventType,
		Source:  "matcher",
		Payload: payload,
	})
}

func ioDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

// canceled prefers the context's error when it caused err. The connection
// deadline may fire just before the context's own timer.
func canceled(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	if ctxErr == nil {
		if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
			ctxErr = context.DeadlineExceeded
		}
	}
	if ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}
