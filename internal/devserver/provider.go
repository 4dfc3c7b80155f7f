package devserver

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/smorey2/yojimbo/internal/address"
	"github.com/smorey2/yojimbo/internal/protocol"
)

// Provider issues match responses for every request with the same server
// list. It performs no matching: connect tokens are random bytes.
type Provider struct {
	servers []address.Address
	ttl     time.Duration
	nonce   atomic.Uint64

	random io.Reader
	now    func() time.Time
}

// NewProvider validates the server list and returns a Provider.
func NewProvider(servers []string, ttl time.Duration) (*Provider, error) {
	if len(servers) > protocol.MaxServersPerConnect {
		return nil, fmt.Errorf("too many server addresses: %d > %d", len(servers), protocol.MaxServersPerConnect)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	p := &Provider{ttl: ttl, random: rand.Reader, now: time.Now}
	for _, s := range servers {
		addr, err := address.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid server address %q: %w", s, err)
		}
		p.servers = append(p.servers, addr)
	}
	return p, nil
}

// Issue builds a fresh response. Nonces increase monotonically per Provider.
func (p *Provider) Issue() (protocol.MatchResponse, error) {
	var resp protocol.MatchResponse

	for _, buf := range [][]byte{resp.ConnectTokenData[:], resp.ClientToServerKey[:], resp.ServerToClientKey[:]} {
		if _, err := io.ReadFull(p.random, buf); err != nil {
			return protocol.MatchResponse{}, fmt.Errorf("failed to generate token material: %w", err)
		}
	}

	resp.ConnectTokenNonce = p.nonce.Add(1)
	resp.ConnectTokenExpireTimestamp = uint64(p.now().Add(p.ttl).Unix())
	resp.NumServerAddresses = copy(resp.ServerAddresses[:], p.servers)
	return resp, nil
}

// Servers returns the configured server list.
func (p *Provider) Servers() []address.Address {
	return append([]address.Address(nil), p.servers...)
}
