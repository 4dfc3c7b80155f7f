// Package config handles configuration loading, validation, and persistence
// for the matchmaking client and the fixture matchmaking server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"

	DefaultMatcherHost     = "127.0.0.1"
	DefaultMatcherPort     = 8080
	DefaultMaxResponseSize = 4 * 1024
	MinMaxResponseSize     = 512

	TrustStrict     = "strict"
	TrustPermissive = "permissive"
)

// Environment variables that override file settings.
const (
	EnvMatcherHost = "YOJIMBO_MATCHER_HOST"
	EnvMatcherPort = "YOJIMBO_MATCHER_PORT"
	EnvTrustMode   = "YOJIMBO_TRUST_MODE"
	EnvCAFile      = "YOJIMBO_CA_FILE"
	EnvLogLevel    = "YOJIMBO_LOG_LEVEL"
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	MatcherData     MatcherData     `json:"matcher"`
	MatchdData      MatchdData      `json:"matchd"`
	ApplicationData ApplicationData `json:"application_data"`
}

// MatcherData configures the matchmaking client.
type MatcherData struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	ServerName string `json:"server_name"`

	// TrustMode is "strict" (verify the server certificate) or "permissive"
	// (log verification failures and continue).
	TrustMode string `json:"trust_mode"`
	CAFile    string `json:"ca_file"`

	ConnectTimeoutSec   int `json:"connect_timeout_sec"`
	HandshakeTimeoutSec int `json:"handshake_timeout_sec"`
	IOTimeoutSec        int `json:"io_timeout_sec"`
	MaxResponseBytes    int `json:"max_response_bytes"`
}

func (m MatcherData) ConnectTimeout() time.Duration {
	return time.Duration(m.ConnectTimeoutSec) * time.Second
}

func (m MatcherData) HandshakeTimeout() time.Duration {
	return time.Duration(m.HandshakeTimeoutSec) * time.Second
}

func (m MatcherData) IOTimeout() time.Duration {
	return time.Duration(m.IOTimeoutSec) * time.Second
}

// MatchdData configures the fixture matchmaking server.
type MatchdData struct {
	ListenAddr      string   `json:"listen_addr"`
	ServerAddresses []string `json:"server_addresses"`
	TokenTTLSec     int      `json:"token_ttl_sec"`
	TLSCertFile     string   `json:"tls_cert_file"`
	TLSKeyFile      string   `json:"tls_key_file"`

	// RateLimitRPS caps requests per second per client IP. Zero disables it.
	RateLimitRPS int `json:"rate_limit_rps"`
}

// TokenTTL returns how long issued connect tokens stay valid.
func (m MatchdData) TokenTTL() time.Duration {
	return time.Duration(m.TokenTTLSec) * time.Second
}

// ApplicationData contains process-wide settings.
type ApplicationData struct {
	MQTT    MQTTConfig    `json:"mqtt"`
	Logging LoggingConfig `json:"logging"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
	Topic     string `json:"topic"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MatcherData: MatcherData{
			Host:                DefaultMatcherHost,
			Port:                DefaultMatcherPort,
			TrustMode:           TrustStrict,
			ConnectTimeoutSec:   5,
			HandshakeTimeoutSec: 5,
			IOTimeoutSec:        10,
			MaxResponseBytes:    DefaultMaxResponseSize,
		},
		MatchdData: MatchdData{
			ListenAddr:      fmt.Sprintf("127.0.0.1:%d", DefaultMatcherPort),
			ServerAddresses: []string{"127.0.0.1:40000"},
			TokenTTLSec:     30,
			RateLimitRPS:    20,
		},
		ApplicationData: ApplicationData{
			MQTT: MQTTConfig{
				Enabled: false,
				Port:    8883,
				UseTLS:  true,
				Topic:   "matcher/attempt",
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxBackups: 5,
				Console:    true,
			},
		},
	}
}

// Load reads configuration from a JSON file in configDir, creating it with
// defaults when missing, then applies environment overrides. A .env file in
// the working directory is read first if present.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	cfg.path = configPath

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	log.Info().Str("path", configPath).Msg("configuration loaded")
	return cfg, nil
}

// ApplyEnv overlays environment overrides using lookup (os.LookupEnv in
// production). Overrides are not written back by Save.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := lookup(EnvMatcherHost); ok && v != "" {
		c.MatcherData.Host = v
	}
	if v, ok := lookup(EnvMatcherPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMatcherPort, v, err)
		}
		c.MatcherData.Port = port
	}
	if v, ok := lookup(EnvTrustMode); ok && v != "" {
		c.MatcherData.TrustMode = strings.ToLower(v)
	}
	if v, ok := lookup(EnvCAFile); ok {
		c.MatcherData.CAFile = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.ApplicationData.Logging.Level = v
	}
	return nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetMatcherData returns a copy of the matcher configuration.
func (c *Config) GetMatcherData() MatcherData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MatcherData
}

// GetMatchdData returns a copy of the fixture server configuration.
func (c *Config) GetMatchdData() MatchdData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data := c.MatchdData
	data.ServerAddresses = append([]string(nil), c.MatchdData.ServerAddresses...)
	return data
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
