// Matcher - yojimbo matchmaking client.
//
// Matcher asks a matchmaking service for a connect token over TLS and
// prints the servers and keys it was handed. With -i it drops into an
// interactive shell instead of making a single request.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smorey2/yojimbo/internal/cli"
	"github.com/smorey2/yojimbo/internal/config"
	"github.com/smorey2/yojimbo/internal/connector"
	"github.com/smorey2/yojimbo/internal/events"
	"github.com/smorey2/yojimbo/internal/telemetry"
	"github.com/smorey2/yojimbo/internal/util"
)

const (
	AppName    = "matcher"
	AppVersion = "1.0.0"
)

func main() {
	configDir := flag.String("config", config.DefaultConfigDir, "configuration directory")
	protocolID := flag.Uint64("protocol", 0x1122334455667788, "protocol id")
	clientID := flag.Uint64("client", 0, "client id (random when zero)")
	interactive := flag.Bool("i", false, "start the interactive shell")
	flag.Parse()

	os.Exit(run(*configDir, *protocolID, *clientID, *interactive))
}

func run(configDir string, protocolID, clientID uint64, interactive bool) int {
	// Defaults until the config is loaded
	if err := util.InitLogger(AppName, util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Msg("starting matcher")

	cfg, err := config.Load(configDir)
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		return 1
	}

	appData := cfg.GetApplicationData()
	logCfg := util.LogConfig{
		Level:      appData.Logging.Level,
		Directory:  appData.Logging.Directory,
		MaxBackups: appData.Logging.MaxBackups,
		Console:    appData.Logging.Console,
	}
	if err := util.InitLogger(AppName, logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		log.Error().Err(validation.Err()).Msg("configuration validation failed, please fix the errors above")
		return 1
	}

	sysInfo := util.GetSystemInfo()
	log.Debug().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewEventBus()
	defer eventBus.Stop()

	if appData.MQTT.Enabled {
		mqttHandler, err := telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		} else if err := mqttHandler.Connect(); err != nil {
			log.Warn().Err(err).Msg("MQTT connect failed, telemetry disabled")
		} else {
			// Runs after the bus has drained so the last attempt is published.
			defer mqttHandler.Close()
			defer eventBus.Wait()
		}
	}

	opts, err := connector.OptionsFromConfig(cfg.GetMatcherData())
	if err != nil {
		log.Error().Err(err).Msg("invalid matcher configuration")
		return 1
	}

	matcher := connector.NewMatcher(eventBus)
	if err := matcher.Initialize(opts); err != nil {
		log.Error().Err(err).Msg("failed to initialize matcher")
		return 1
	}

	if interactive {
		cli.NewCLI(matcher, protocolID, os.Stdout).Start(ctx, os.Stdin)
		return 0
	}

	if clientID == 0 {
		clientID = uint64(time.Now().UnixNano())
	}

	if err := matcher.RequestMatch(ctx, protocolID, clientID); err != nil {
		log.Error().
			Err(err).
			Str("kind", connector.KindOf(err).String()).
			Msg("match request failed")
	}

	fmt.Printf("status: %s\n", matcher.GetMatchStatus())
	if matcher.GetMatchStatus() != connector.MatchReady {
		return 1
	}

	resp := matcher.GetMatchResponse()
	cli.RenderResponse(os.Stdout, &resp)
	return 0
}
