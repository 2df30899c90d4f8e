package cluster

import (
	"fmt"
	"strings"
)

// ClusterConfig is the static membership a node starts with.
//
// Peers keeps the order in which the records were configured. Ids are unique across
// the local node and all peers; AddPeer enforces this on insertion.
type ClusterConfig struct {
	LocalID uint64
	Bind    PeerAddress
	Peers   []PeerRecord
	// Init bootstraps a new cluster with this node as its only voter.
	// When false the node waits to be contacted by an existing leader.
	Init bool
}

// ParsePeers parses a comma separated list of id@host:port records.
// Blank items are skipped, duplicate ids are rejected.
func ParsePeers(csv string) ([]PeerRecord, error) {
	var cfg ClusterConfig
	for _, item := range strings.Split(csv, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		peer, err := ParsePeer(item)
		if err != nil {
			return nil, err
		}
		if err := cfg.AddPeer(peer); err != nil {
			return nil, err
		}
	}
	return cfg.Peers, nil
}

// AddPeer appends a peer record. The id must not be the local id or an id already present.
func (c *ClusterConfig) AddPeer(peer PeerRecord) error {
	if peer.ID == 0 {
		return fmt.Errorf("%w: id 0 is reserved", ErrInvalidPeer)
	}
	if c.LocalID != 0 && peer.ID == c.LocalID {
		return fmt.Errorf("%w: %d is the local node", ErrDuplicatePeer, peer.ID)
	}
	if _, ok := c.Peer(peer.ID); ok {
		return fmt.Errorf("%w: %d", ErrDuplicatePeer, peer.ID)
	}
	c.Peers = append(c.Peers, peer)
	return nil
}

// Peer looks up a peer by id
func (c *ClusterConfig) Peer(id uint64) (PeerRecord, bool) {
	for _, p := range c.Peers {
		if p.ID == id {
			return p, true
		}
	}
	return PeerRecord{}, false
}

// Validate checks the whole configuration. It is used at startup where every error is fatal.
func (c *ClusterConfig) Validate() error {
	if c.LocalID == 0 {
		return fmt.Errorf("%w: local id must be a positive integer", ErrInvalidPeer)
	}
	if c.Bind.IsZero() {
		return fmt.Errorf("%w: bind address is required", ErrInvalidAddress)
	}
	check := ClusterConfig{LocalID: c.LocalID}
	for _, p := range c.Peers {
		if err := check.AddPeer(p); err != nil {
			return err
		}
	}
	return nil
}
