// Matchd - fixture matchmaking service.
//
// Matchd answers GET /match/<protocolId>/<clientId> over HTTPS with a
// freshly minted connect token for a fixed list of game servers. It has no
// matching logic and exists so the matcher can be exercised locally.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/smorey2/yojimbo/internal/config"
	"github.com/smorey2/yojimbo/internal/devserver"
	"github.com/smorey2/yojimbo/internal/events"
	"github.com/smorey2/yojimbo/internal/telemetry"
	"github.com/smorey2/yojimbo/internal/util"
)

const (
	AppName    = "matchd"
	AppVersion = "1.0.0"
)

func main() {
	configDir := flag.String("config", config.DefaultConfigDir, "configuration directory")
	addr := flag.String("addr", "", "listen address (overrides config)")
	certFile := flag.String("cert", "", "TLS certificate file (overrides config)")
	keyFile := flag.String("key", "", "TLS key file (overrides config)")
	servers := flag.String("servers", "", "comma-separated game server addresses (overrides config)")
	debug := flag.Bool("debug", false, "gin debug mode")
	flag.Parse()

	if err := util.InitLogger(AppName, util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging := cfg.GetApplicationData().Logging
	if err := util.InitLogger(AppName, util.LogConfig{
		Level:      logging.Level,
		Directory:  logging.Directory,
		MaxBackups: logging.MaxBackups,
		Console:    logging.Console,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		log.Fatal().Err(validation.Err()).Msg("configuration validation failed, please fix the errors above")
	}

	data := cfg.GetMatchdData()
	if *addr != "" {
		data.ListenAddr = *addr
	}
	if *certFile != "" {
		data.TLSCertFile = *certFile
	}
	if *keyFile != "" {
		data.TLSKeyFile = *keyFile
	}
	if *servers != "" {
		data.ServerAddresses = splitList(*servers)
	}

	tlsConfig, err := loadTLS(data, filepath.Dir(cfg.Path()))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load TLS certificate")
	}

	opts := devserver.OptionsFromConfig(data)
	opts.TLSConfig = tlsConfig
	opts.Debug = *debug

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Served matches are only observed by telemetry.
	var eventBus *events.EventBus
	telemetryDone := make(chan struct{})
	if cfg.GetApplicationData().MQTT.Enabled {
		eventBus = events.NewEventBus()
		mqttHandler, err := telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
			close(telemetryDone)
		} else {
			go func() {
				defer close(telemetryDone)
				if err := mqttHandler.Start(ctx); err != nil {
					log.Warn().Err(err).Msg("MQTT connect failed, telemetry disabled")
				}
			}()
		}
	} else {
		close(telemetryDone)
	}

	srv, err := devserver.NewServer(opts, eventBus)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create matchmaking server")
	}

	log.Info().Str("version", AppVersion).Str("addr", data.ListenAddr).Msg("starting matchd")
	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("matchmaking server failed")
	}

	stop()
	<-telemetryDone
	if eventBus != nil {
		eventBus.Stop()
	}
	log.Info().Msg("matchd stopped")
}

// loadTLS loads the configured key pair, generating a self-signed one next
// to the config file when none is configured.
func loadTLS(data config.MatchdData, configDir string) (*tls.Config, error) {
	certFile, keyFile := data.TLSCertFile, data.TLSKeyFile
	if certFile == "" && keyFile == "" {
		certFile = filepath.Join(configDir, "matchd.crt")
		keyFile = filepath.Join(configDir, "matchd.key")
		if !util.FileExists(certFile) || !util.FileExists(keyFile) {
			hosts := []string{"localhost", "127.0.0.1", "::1"}
			if host, _, err := net.SplitHostPort(data.ListenAddr); err == nil && host != "" {
				hosts = append(hosts, host)
			}
			if err := util.GenerateSelfSignedCert(certFile, keyFile, hosts); err != nil {
				return nil, err
			}
			log.Warn().Str("cert", certFile).Msg("generated self-signed certificate; clients need trust_mode permissive or this file as ca_file")
		}
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
