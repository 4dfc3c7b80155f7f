package connector

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"go.uber.org/multierr"
)

// transport opens secure channels to the matchmaking service. It holds the
// seeded randomness source and the loaded trust material.
type transport struct {
	opts  Options
	roots *x509.CertPool // nil means the system pool
}

// newTransport seeds the randomness source and loads trust material.
func newTransport(opts Options) (*transport, error) {
	var seed [32]byte
	if _, err := io.ReadFull(opts.Random, seed[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoEntropy, err)
	}

	roots, err := loadRoots(opts)
	if err != nil {
		return nil, err
	}
	return &transport{opts: opts, roots: roots}, nil
}

func loadRoots(opts Options) (*x509.CertPool, error) {
	if opts.RootCAs != nil {
		return opts.RootCAs, nil
	}
	if opts.CAFile != "" {
		pemData, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", opts.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("%w: %s", ErrTrustMaterial, opts.CAFile)
		}
		return pool, nil
	}
	if _, err := x509.SystemCertPool(); err != nil {
		return nil, fmt.Errorf("failed to load system trust store: %w", err)
	}
	return nil, nil
}

func (t *transport) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         t.opts.serverName(),
		RootCAs:            t.roots,
		Rand:               t.opts.Random,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.opts.TrustMode == TrustPermissive,
	}
}

// open dials the service and completes the handshake. Errors are returned
// as *MatchError classified as transport or trust failures. In strict mode
// certificate verification is part of the handshake, so a rejected peer
// never receives application data.
func (t *transport) open(ctx context.Context) (*tls.Conn, error) {
	dialer := net.Dialer{Timeout: t.opts.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", t.opts.Address())
	if err != nil {
		return nil, newError(KindTransport, "connect", err)
	}

	conn := tls.Client(raw, t.tlsConfig())

	hsCtx, cancel := context.WithTimeout(ctx, t.opts.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(hsCtx); err != nil {
		raw.Close()
		if isTrustFailure(err) {
			return nil, newError(KindTrust, "handshake", err)
		}
		return nil, newError(KindTransport, "handshake", err)
	}
	return conn, nil
}

// verifyPeer checks the presented chain against the trust material. It is
// used in permissive mode, where the handshake skipped verification.
func (t *transport) verifyPeer(state tls.ConnectionState) error {
	if len(state.PeerCertificates) == 0 {
		return fmt.Errorf("%w: no certificate presented", ErrPeerUnverified)
	}
	intermediates := x509.NewCertPool()
	for _, cert := range state.PeerCertificates[1:] {
		intermediates.AddCert(cert)
	}
	_, err := state.PeerCertificates[0].Verify(x509.VerifyOptions{
		Roots:         t.roots,
		Intermediates: intermediates,
		DNSName:       t.opts.serverName(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPeerUnverified, err)
	}
	return nil
}

func isTrustFailure(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		unknownErr  x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}

// closeChannel sends close_notify and releases the connection. Both errors
// are reported.
func closeChannel(conn *tls.Conn) error {
	return multierr.Combine(conn.CloseWrite(), conn.Close())
}
