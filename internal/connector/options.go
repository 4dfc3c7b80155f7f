package connector

import (
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/smorey2/yojimbo/internal/config"
	"github.com/smorey2/yojimbo/internal/protocol"
)

// TrustMode selects how peer certificate verification failures are handled.
type TrustMode int

const (
	// TrustStrict fails the attempt on any verification failure.
	TrustStrict TrustMode = iota
	// TrustPermissive logs verification failures and continues.
	TrustPermissive
)

func (m TrustMode) String() string {
	if m == TrustPermissive {
		return config.TrustPermissive
	}
	return config.TrustStrict
}

// ParseTrustMode maps a configuration string onto a TrustMode.
func ParseTrustMode(s string) (TrustMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case config.TrustStrict, "":
		return TrustStrict, nil
	case config.TrustPermissive:
		return TrustPermissive, nil
	default:
		return TrustStrict, fmt.Errorf("unknown trust mode %q", s)
	}
}

// Options is the deployment configuration consumed by Initialize.
type Options struct {
	Host       string
	Port       int
	ServerName string // defaults to Host
	TrustMode  TrustMode

	// Trust material. RootCAs wins over CAFile; with neither the system
	// pool is used.
	RootCAs *x509.CertPool
	CAFile  string

	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	IOTimeout        time.Duration
	MaxResponseBytes int

	// Random seeds the secure channel. Defaults to crypto/rand.
	Random io.Reader
}

// DefaultOptions returns options for a strict-mode matcher on localhost.
func DefaultOptions() Options {
	return Options{
		Host:             config.DefaultMatcherHost,
		Port:             config.DefaultMatcherPort,
		TrustMode:        TrustStrict,
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		IOTimeout:        10 * time.Second,
		MaxResponseBytes: protocol.DefaultResponseBufferBytes,
	}
}

// OptionsFromConfig builds Options from the matcher config section.
func OptionsFromConfig(data config.MatcherData) (Options, error) {
	mode, err := ParseTrustMode(data.TrustMode)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Host:             data.Host,
		Port:             data.Port,
		ServerName:       data.ServerName,
		TrustMode:        mode,
		CAFile:           data.CAFile,
		ConnectTimeout:   data.ConnectTimeout(),
		HandshakeTimeout: data.HandshakeTimeout(),
		IOTimeout:        data.IOTimeout(),
		MaxResponseBytes: data.MaxResponseBytes,
	}, nil
}

// Address returns the host:port dial target.
func (o Options) Address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

func (o Options) serverName() string {
	if o.ServerName != "" {
		return o.ServerName
	}
	return o.Host
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = def.HandshakeTimeout
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = def.IOTimeout
	}
	if o.MaxResponseBytes <= 0 {
		o.MaxResponseBytes = def.MaxResponseBytes
	}
	if o.Random == nil {
		o.Random = rand.Reader
	}
	return o
}

func (o Options) validate() error {
	if strings.TrimSpace(o.Host) == "" {
		return fmt.Errorf("matchmaking host is empty")
	}
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("invalid matchmaking port %d", o.Port)
	}
	return nil
}
