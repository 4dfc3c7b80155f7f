// Package address implements the textual network address codec used for
// game server addresses handed out by the matchmaking service.
package address

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// MaxAddressLength bounds the textual form of an address, including one
// reserved terminator byte. Decoded address text must be shorter than this.
const MaxAddressLength = 256

// Type identifies the address family.
type Type uint8

const (
	TypeNone Type = iota
	TypeIPv4
	TypeIPv6
)

var typeStrings = map[Type]string{
	TypeNone: "none",
	TypeIPv4: "ipv4",
	TypeIPv6: "ipv6",
}

// String returns the lowercase name of the address type.
func (t Type) String() string {
	if s, ok := typeStrings[t]; ok {
		return s
	}
	return "none"
}

var (
	ErrEmpty     = errors.New("address: empty address")
	ErrTooLong   = errors.New("address: address text too long")
	ErrMalformed = errors.New("address: malformed address")
)

// Address is a validated IP address with an optional port. The zero value
// is the invalid address.
type Address struct {
	ap netip.AddrPort
}

// Parse parses "a.b.c.d", "a.b.c.d:port", "::1", "[::1]" or "[::1]:port".
// Host names are not resolved and are rejected, as is an explicit port 0.
func Parse(s string) (Address, error) {
	if s == "" {
		return Address{}, ErrEmpty
	}
	if len(s) >= MaxAddressLength {
		return Address{}, ErrTooLong
	}

	if ap, err := netip.ParseAddrPort(s); err == nil {
		// Port zero means "no port" and is written by omitting it.
		if ap.Port() == 0 {
			return Address{}, fmt.Errorf("%w: explicit port 0 in %q", ErrMalformed, s)
		}
		return fromAddrPort(ap)
	}

	host := s
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	// A bracketed literal must be IPv6.
	if host != s && !ip.Is6() {
		return Address{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return fromAddrPort(netip.AddrPortFrom(ip, 0))
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromUDPAddr converts a net.UDPAddr into an Address.
func FromUDPAddr(udp *net.UDPAddr) (Address, error) {
	if udp == nil {
		return Address{}, ErrEmpty
	}
	ip, ok := netip.AddrFromSlice(udp.IP)
	if !ok || udp.Port < 0 || udp.Port > 65535 {
		return Address{}, fmt.Errorf("%w: %v", ErrMalformed, udp)
	}
	return fromAddrPort(netip.AddrPortFrom(ip.Unmap(), uint16(udp.Port)))
}

func fromAddrPort(ap netip.AddrPort) (Address, error) {
	if !ap.Addr().IsValid() {
		return Address{}, ErrMalformed
	}
	return Address{ap: ap}, nil
}

// IsValid reports whether the address holds a parsed IP.
func (a Address) IsValid() bool {
	return a.ap.Addr().IsValid()
}

// Type returns the address family.
func (a Address) Type() Type {
	switch {
	case !a.IsValid():
		return TypeNone
	case a.ap.Addr().Is4():
		return TypeIPv4
	default:
		return TypeIPv6
	}
}

// Port returns the port, zero when none was given.
func (a Address) Port() uint16 {
	return a.ap.Port()
}

// IP returns the address without its port.
func (a Address) IP() netip.Addr {
	return a.ap.Addr()
}

// String formats the address the way Parse accepts it. The port is omitted
// when zero and IPv6 addresses with a port are bracketed.
func (a Address) String() string {
	if !a.IsValid() {
		return ""
	}
	if a.ap.Port() == 0 {
		return a.ap.Addr().String()
	}
	return a.ap.String()
}

// UDPAddr returns the address as a *net.UDPAddr for dialing game servers.
func (a Address) UDPAddr() *net.UDPAddr {
	if !a.IsValid() {
		return nil
	}
	return net.UDPAddrFromAddrPort(a.ap)
}

// Equal reports whether two addresses have the same IP and port.
func (a Address) Equal(b Address) bool {
	return a.ap == b.ap
}
