package cluster

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// MaxHostLength is the longest host name accepted in a peer address.
const MaxHostLength = 255

var (
	// ErrInvalidAddress is returned for addresses that are not host:port
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidPeer is returned for peer records that are not id@host:port
	ErrInvalidPeer = errors.New("invalid peer")
	// ErrDuplicatePeer is returned when a peer id is already part of the configuration
	ErrDuplicatePeer = errors.New("duplicate peer id")
)

// --------------------------------------------------------------------------
// Peer Address
// --------------------------------------------------------------------------

// PeerAddress is the network address of a cluster member.
type PeerAddress struct {
	Host string
	Port uint16
}

// ParseAddress parses a "host:port" string. IPv6 hosts must be bracketed ("[::1]:6379").
func ParseAddress(s string) (PeerAddress, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return PeerAddress{}, fmt.Errorf("%w %q: %v", ErrInvalidAddress, s, err)
	}
	if host == "" {
		return PeerAddress{}, fmt.Errorf("%w %q: empty host", ErrInvalidAddress, s)
	}
	if len(host) > MaxHostLength {
		return PeerAddress{}, fmt.Errorf("%w %q: host longer than %d characters", ErrInvalidAddress, s, MaxHostLength)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return PeerAddress{}, fmt.Errorf("%w %q: port must be in 1..65535", ErrInvalidAddress, s)
	}
	return PeerAddress{Host: host, Port: uint16(port)}, nil
}

// String returns the address in host:port form
func (a PeerAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// IsZero reports whether the address is unset
func (a PeerAddress) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// --------------------------------------------------------------------------
// Peer Record
// --------------------------------------------------------------------------

// PeerRecord identifies one cluster member.
type PeerRecord struct {
	ID   uint64
	Addr PeerAddress
}

// ParsePeer parses an "id@host:port" record. The id must be a positive integer.
func ParsePeer(s string) (PeerRecord, error) {
	s = strings.TrimSpace(s)
	idStr, addrStr, ok := strings.Cut(s, "@")
	if !ok {
		return PeerRecord{}, fmt.Errorf("%w %q: expected id@host:port", ErrInvalidPeer, s)
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil || id == 0 {
		return PeerRecord{}, fmt.Errorf("%w %q: id must be a positive integer", ErrInvalidPeer, s)
	}
	addr, err := ParseAddress(addrStr)
	if err != nil {
		return PeerRecord{}, fmt.Errorf("%w %q: %w", ErrInvalidPeer, s, err)
	}
	return PeerRecord{ID: id, Addr: addr}, nil
}

// String returns the record in id@host:port form
func (p PeerRecord) String() string {
	return strconv.FormatUint(p.ID, 10) + "@" + p.Addr.String()
}
