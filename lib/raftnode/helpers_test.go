package raftnode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/cluster"
)

// --------------------------------------------------------------------------
// State machine
// --------------------------------------------------------------------------

type appliedCommand struct {
	index uint64
	args  []string
}

// recordingSM records every applied command and replies with "OK"
type recordingSM struct {
	mu      sync.Mutex
	applied []appliedCommand
	err     error
}

func (s *recordingSM) Apply(index uint64, args [][]byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	strs := make([]string, len(args))
	for i, a := range args {
		strs[i] = string(a)
	}
	s.applied = append(s.applied, appliedCommand{index: index, args: strs})
	if s.err != nil {
		return nil, s.err
	}
	return []byte("OK"), nil
}

func (s *recordingSM) commands() []appliedCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]appliedCommand(nil), s.applied...)
}

// --------------------------------------------------------------------------
// Resolver / Dialer
// --------------------------------------------------------------------------

// staticResolver resolves every host to itself, or blocks until ctx is done
type staticResolver struct {
	block bool
	err   error
}

func (r *staticResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	return []string{host}, nil
}

// pipeDialer hands out in-memory connections. The first failures dials fail,
// a non-nil gate holds every dial until it is closed.
type pipeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	gate     chan struct{}
	servers  chan net.Conn
}

func newPipeDialer(failures int) *pipeDialer {
	return &pipeDialer{failures: failures, servers: make(chan net.Conn, 16)}
}

func (d *pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if n <= d.failures {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	d.servers <- server
	return client, nil
}

func (d *pipeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// failingDialer never connects
type failingDialer struct{}

func (failingDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	return nil, errors.New("connection refused")
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func testTransport(r Resolver, d Dialer) (*peerTransport, chan func()) {
	events := make(chan func(), 64)
	return &peerTransport{
		localID:   1,
		resolver:  r,
		dialer:    d,
		codec:     lengthPrefixCodec{},
		timeout:   2 * time.Second,
		queueSize: 8,
		post: func(fn func()) bool {
			events <- fn
			return true
		},
	}, events
}

// runNext waits for one posted completion and runs it
func runNext(t *testing.T, events chan func()) {
	t.Helper()
	select {
	case fn := <-events:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a connection event")
	}
}

func mustPeer(t *testing.T, s string) cluster.PeerRecord {
	t.Helper()
	p, err := cluster.ParsePeer(s)
	if err != nil {
		t.Fatalf("ParsePeer(%q) error = %v", s, err)
	}
	return p
}

func peerRecord(id uint64) cluster.PeerRecord {
	return cluster.PeerRecord{
		ID:   id,
		Addr: cluster.PeerAddress{Host: fmt.Sprintf("node-%d.local", id), Port: 6379},
	}
}

func testConfig(id uint64, init bool) Config {
	cfg := DefaultConfig(id)
	cfg.Init = init
	// ticks are driven by hand
	cfg.TickInterval = time.Hour
	cfg.CheckQuorum = false
	cfg.PreVote = false
	return cfg
}

func newTestNode(t *testing.T, cfg Config, sm IStateMachine) *Node {
	t.Helper()
	n, err := NewNode(cfg, sm, WithResolver(&staticResolver{}), WithDialer(failingDialer{}))
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}
	return n
}

// result returns the result of a resolved request without waiting
func result(t *testing.T, req Request) Result {
	t.Helper()
	select {
	case r := <-req.Completion().Done():
		return r
	default:
		t.Fatalf("%s request was not completed", req.Kind())
		return Result{}
	}
}

func assertPending(t *testing.T, req Request) {
	t.Helper()
	if req.Completion().Resolved() {
		t.Fatalf("%s request completed unexpectedly: %+v", req.Kind(), <-req.Completion().Done())
	}
}
