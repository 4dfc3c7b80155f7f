package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadCreatesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, DefaultConfigFile))
	assert.Equal(t, filepath.Join(dir, DefaultConfigFile), cfg.Path())
	assert.Equal(t, TrustStrict, cfg.GetMatcherData().TrustMode)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	dir := t.TempDir()
	data := `{"matcher": {"host": "match.example.com", "trust_mode": "permissive"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(data), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	m := cfg.GetMatcherData()
	assert.Equal(t, "match.example.com", m.Host)
	assert.Equal(t, TrustPermissive, m.TrustMode)
	assert.Equal(t, DefaultMatcherPort, m.Port)
	assert.Equal(t, DefaultMaxResponseSize, m.MaxResponseBytes)
}

func TestLoadRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.ApplyEnv(envMap(map[string]string{
		EnvMatcherHost: "10.0.0.5",
		EnvMatcherPort: "9443",
		EnvTrustMode:   "PERMISSIVE",
		EnvCAFile:      "/etc/ca.pem",
		EnvLogLevel:    "debug",
	}))
	require.NoError(t, err)

	m := cfg.GetMatcherData()
	assert.Equal(t, "10.0.0.5", m.Host)
	assert.Equal(t, 9443, m.Port)
	assert.Equal(t, TrustPermissive, m.TrustMode)
	assert.Equal(t, "/etc/ca.pem", m.CAFile)
	assert.Equal(t, "debug", cfg.GetApplicationData().Logging.Level)

	err = cfg.ApplyEnv(envMap(map[string]string{EnvMatcherPort: "https"}))
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	m := cfg.GetMatcherData()
	assert.Equal(t, 5*time.Second, m.ConnectTimeout())
	assert.Equal(t, 5*time.Second, m.HandshakeTimeout())
	assert.Equal(t, 10*time.Second, m.IOTimeout())
	assert.Equal(t, 30*time.Second, cfg.GetMatchdData().TokenTTL())
}

func TestValidateDefaults(t *testing.T) {
	result := Validate(DefaultConfig())
	assert.True(t, result.IsValid(), "%v", result.Errors)
	assert.NoError(t, result.Err())
}

func TestValidateMatcher(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MatcherData.Host = " "
	cfg.MatcherData.Port = 70000
	cfg.MatcherData.TrustMode = "lenient"
	cfg.MatcherData.IOTimeoutSec = 0
	cfg.MatcherData.MaxResponseBytes = 100

	result := Validate(cfg)
	require.False(t, result.IsValid())

	fields := map[string]bool{}
	for _, e := range result.Errors {
		fields[e.Field] = true
	}
	for _, f := range []string{
		"matcher.host", "matcher.port", "matcher.trust_mode",
		"matcher.io_timeout_sec", "matcher.max_response_bytes",
	} {
		assert.True(t, fields[f], "missing error for %s", f)
	}
	assert.Len(t, multierr.Errors(result.Err()), len(result.Errors))
}

func TestValidatePermissiveWarns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MatcherData.TrustMode = TrustPermissive

	result := Validate(cfg)
	assert.True(t, result.IsValid())
	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, "matcher.trust_mode", result.Warnings[0].Field)
}

func TestValidateMissingCAFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MatcherData.CAFile = filepath.Join(t.TempDir(), "missing.pem")

	result := Validate(cfg)
	assert.False(t, result.IsValid())
}

func TestValidateMQTTAndMatchd(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplicationData.MQTT.Enabled = true
	cfg.ApplicationData.MQTT.BrokerURL = ""
	cfg.MatchdData.TLSCertFile = "cert.pem"
	cfg.MatchdData.ListenAddr = "nope"
	cfg.MatchdData.RateLimitRPS = -1

	result := Validate(cfg)
	fields := map[string]bool{}
	for _, e := range result.Errors {
		fields[e.Field] = true
	}
	assert.True(t, fields["application_data.mqtt.broker_url"])
	assert.True(t, fields["matchd.tls_cert_file"])
	assert.True(t, fields["matchd.listen_addr"])
	assert.True(t, fields["matchd.rate_limit_rps"])

	cfg = DefaultConfig()
	cfg.MatchdData.RateLimitRPS = 0
	result = Validate(cfg)
	assert.True(t, result.IsValid())
	warned := false
	for _, w := range result.Warnings {
		warned = warned || w.Field == "matchd.rate_limit_rps"
	}
	assert.True(t, warned)
}
