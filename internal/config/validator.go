package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"go.uber.org/multierr"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Err combines all validation errors into one, or returns nil.
func (r *ValidationResult) Err() error {
	var err error
	for _, e := range r.Errors {
		err = multierr.Append(err, e)
	}
	return err
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	matcher := cfg.GetMatcherData()
	validateMatcherData(&matcher, result)
	matchd := cfg.GetMatchdData()
	validateMatchdData(&matchd, result)
	app := cfg.GetApplicationData()
	validateApplicationData(&app, result)

	return result
}

func validateMatcherData(data *MatcherData, result *ValidationResult) {
	if strings.TrimSpace(data.Host) == "" {
		result.AddError("matcher.host", "matchmaking host is required")
	}
	validatePort(data.Port, "matcher.port", result)

	switch data.TrustMode {
	case TrustStrict:
		if data.CAFile != "" {
			if _, err := os.Stat(data.CAFile); err != nil {
				result.AddError("matcher.ca_file", fmt.Sprintf("CA file not readable: %v", err))
			}
		}
	case TrustPermissive:
		result.AddWarning("matcher.trust_mode",
			"permissive mode accepts servers whose certificates fail verification")
	default:
		result.AddError("matcher.trust_mode",
			fmt.Sprintf("unknown trust mode %q (want %q or %q)", data.TrustMode, TrustStrict, TrustPermissive))
	}

	if data.ConnectTimeoutSec <= 0 {
		result.AddError("matcher.connect_timeout_sec", "must be positive")
	}
	if data.HandshakeTimeoutSec <= 0 {
		result.AddError("matcher.handshake_timeout_sec", "must be positive")
	}
	if data.IOTimeoutSec <= 0 {
		result.AddError("matcher.io_timeout_sec", "must be positive")
	}
	if data.MaxResponseBytes < MinMaxResponseSize {
		result.AddError("matcher.max_response_bytes",
			fmt.Sprintf("must be at least %d bytes", MinMaxResponseSize))
	}
}

func validateMatchdData(data *MatchdData, result *ValidationResult) {
	if _, _, err := net.SplitHostPort(data.ListenAddr); err != nil {
		result.AddError("matchd.listen_addr", fmt.Sprintf("invalid listen address: %v", err))
	}
	if len(data.ServerAddresses) == 0 {
		result.AddWarning("matchd.server_addresses", "no game servers configured, responses will be empty")
	}
	if data.TokenTTLSec <= 0 {
		result.AddError("matchd.token_ttl_sec", "must be positive")
	}
	if data.RateLimitRPS < 0 {
		result.AddError("matchd.rate_limit_rps", "must not be negative")
	} else if data.RateLimitRPS == 0 {
		result.AddWarning("matchd.rate_limit_rps", "rate limiting disabled")
	}
	if (data.TLSCertFile == "") != (data.TLSKeyFile == "") {
		result.AddError("matchd.tls_cert_file", "certificate and key must be configured together")
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
		if strings.TrimSpace(data.MQTT.Topic) == "" {
			result.AddError("application_data.mqtt.topic", "MQTT topic is required when enabled")
		}
	}

	if data.Logging.MaxBackups < 1 {
		result.AddWarning("application_data.logging.max_backups", "old log files will not be kept")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port", port))
	}
}
