// Package devserver is a fixture matchmaking service. It answers
// GET /match/<protocolId>/<clientId> over HTTPS with a match response for a
// configured server list, for local development and end-to-end tests.
package devserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/smorey2/yojimbo/internal/config"
	"github.com/smorey2/yojimbo/internal/events"
	"github.com/smorey2/yojimbo/internal/protocol"
	"github.com/smorey2/yojimbo/internal/util"
)

// Options configures a Server.
type Options struct {
	ListenAddr      string
	ServerAddresses []string
	TokenTTL        time.Duration
	TLSConfig       *tls.Config
	RateLimitRPS    int
	Debug           bool
}

// OptionsFromConfig builds Options from the matchd config section. The TLS
// config is supplied separately by the caller.
func OptionsFromConfig(data config.MatchdData) Options {
	return Options{
		ListenAddr:      data.ListenAddr,
		ServerAddresses: data.ServerAddresses,
		TokenTTL:        data.TokenTTL(),
		RateLimitRPS:    data.RateLimitRPS,
	}
}

// Server is the fixture matchmaking HTTPS server.
type Server struct {
	opts     Options
	provider *Provider
	eventBus *events.EventBus
	logger   zerolog.Logger

	router     *gin.Engine
	httpServer *http.Server

	mu sync.Mutex
	ln net.Listener
}

// NewServer creates a server. eventBus may be nil.
func NewServer(opts Options, eventBus *events.EventBus) (*Server, error) {
	if opts.TLSConfig == nil {
		return nil, fmt.Errorf("devserver: TLS config is required")
	}
	provider, err := NewProvider(opts.ServerAddresses, opts.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("devserver: %w", err)
	}

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		opts:     opts,
		provider: provider,
		eventBus: eventBus,
		logger:   util.ComponentLogger("matchd"),
	}
	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Handler:           s.router,
		TLSConfig:         opts.TLSConfig,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.logger))
	router.Use(ServerHeader())
	router.Use(NewRateLimiter(s.opts.RateLimitRPS).Middleware())

	router.GET("/ping", s.handlePing)
	router.GET("/match/:protocolId/:clientId", s.handleMatch)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})
	return router
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleMatch(c *gin.Context) {
	protocolID, clientID, err := protocol.ParseMatchPath(c.Request.URL.Path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.provider.Issue()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to issue match response")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue connect token"})
		return
	}

	body, err := protocol.NewResponseBody(&resp).Marshal()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode match response")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode response"})
		return
	}

	s.logger.Info().
		Uint64("protocol_id", protocolID).
		Uint64("client_id", clientID).
		Uint64("nonce", resp.ConnectTokenNonce).
		Int("servers", resp.NumServerAddresses).
		Msg("match served")

	if s.eventBus != nil {
		s.eventBus.Emit(context.Background(), events.Event{
			Type:   events.EventMatchServed,
			Source: "matchd",
			Payload: events.MatchServedPayload{
				ProtocolID:  protocolID,
				ClientID:    clientID,
				Nonce:       resp.ConnectTokenNonce,
				ServerCount: resp.NumServerAddresses,
				RemoteAddr:  c.Request.RemoteAddr,
			},
		})
	}

	c.Data(http.StatusOK, "application/json", body)
}

// Listen binds the TLS listener. It is separate from Serve so callers can
// learn the bound address before serving.
func (s *Server) Listen(ctx context.Context) error {
	lc := reuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", s.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("devserver: listen %s: %w", s.opts.ListenAddr, err)
	}

	s.mu.Lock()
	s.ln = tls.NewListener(ln, s.opts.TLSConfig)
	s.mu.Unlock()

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Int("servers", len(s.provider.Servers())).
		Msg("matchmaking fixture listening")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve blocks serving requests until ctx is done or the server fails.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("devserver: Serve called before Listen")
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("devserver: %w", err)
	}
	return nil
}

// Start listens and serves.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
