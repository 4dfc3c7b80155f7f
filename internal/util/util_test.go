package util

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfSignedPEM(t *testing.T) {
	certPEM, keyPEM, err := SelfSignedPEM([]string{"127.0.0.1", "matchd.local"}, time.Hour)
	require.NoError(t, err)

	_, err = tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)

	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	assert.NoError(t, cert.VerifyHostname("127.0.0.1"))
	assert.NoError(t, cert.VerifyHostname("matchd.local"))
	assert.Error(t, cert.VerifyHostname("other.local"))
}

func TestGenerateSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	require.NoError(t, GenerateSelfSignedCert(certFile, keyFile, []string{"localhost"}))

	_, err := tls.LoadX509KeyPair(certFile, keyFile)
	require.NoError(t, err)

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestStaleLogs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"yojimbo_2024-01-01.log",
		"yojimbo_2024-01-03.log",
		"yojimbo_2024-01-02.log",
		"matchd_2024-01-01.log",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	stale := staleLogs(dir, "yojimbo", 1)
	assert.Equal(t, []string{
		filepath.Join(dir, "yojimbo_2024-01-01.log"),
		filepath.Join(dir, "yojimbo_2024-01-02.log"),
	}, stale)

	assert.Empty(t, staleLogs(dir, "yojimbo", 5))
	assert.Len(t, staleLogs(dir, "matchd", 0), 1)
}

func TestInitLoggerWritesFile(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	dir := t.TempDir()
	require.NoError(t, InitLogger("yojimbo", LogConfig{Level: "bogus", Directory: dir, MaxBackups: 2}))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	logger := ComponentLogger("matcher")
	logger.Info().Msg("hello")

	matches, err := filepath.Glob(filepath.Join(dir, "yojimbo_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"matcher"`)
	assert.Contains(t, string(data), `"app":"yojimbo"`)
}

func TestGetSystemInfo(t *testing.T) {
	info := GetSystemInfo()
	assert.NotEmpty(t, info.Architecture)
	assert.Positive(t, info.CPUCores)
}
