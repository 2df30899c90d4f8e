package raftnode

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/ValentinKolb/rKV/lib/cluster"
	"go.etcd.io/raft/v3/raftpb"
)

// --------------------------------------------------------------------------
// Connection State
// --------------------------------------------------------------------------

// ConnState is the state of a NodeConnection
type ConnState uint8

const (
	StateDisconnected ConnState = iota
	StateResolving
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateResolving:
		return "resolving"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// --------------------------------------------------------------------------
// Pluggable I/O
// --------------------------------------------------------------------------

// Resolver resolves peer host names. *net.Resolver implements it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Dialer opens peer connections. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// PeerCodec frames raft messages on a peer connection
type PeerCodec interface {
	// Encode returns the bytes written to the peer for a message sent by node from
	Encode(from uint64, m raftpb.Message) ([]byte, error)
	// ReadReply consumes one reply of the peer. Only I/O failures are returned;
	// they tear the connection down.
	ReadReply(r io.Reader) error
}

// lengthPrefixCodec writes a uint32 length followed by the marshalled message and
// expects replies in the same framing
type lengthPrefixCodec struct{}

func (lengthPrefixCodec) Encode(_ uint64, m raftpb.Message) ([]byte, error) {
	size := m.Size()
	buf := make([]byte, 4+size)
	binary.BigEndian.PutUint32(buf[:4], uint32(size))
	if _, err := m.MarshalTo(buf[4:]); err != nil {
		return nil, err
	}
	return buf, nil
}

func (lengthPrefixCodec) ReadReply(r io.Reader) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}
	_, err := io.CopyN(io.Discard, r, int64(binary.BigEndian.Uint32(header[:])))
	return err
}

// peerTransport bundles the I/O collaborators shared by all connections of a node
type peerTransport struct {
	localID   uint64
	resolver  Resolver
	dialer    Dialer
	codec     PeerCodec
	timeout   time.Duration
	queueSize int
	// post schedules fn on the execution loop. It returns false once the loop stopped.
	post func(fn func()) bool
}

// --------------------------------------------------------------------------
// NodeConnection
// --------------------------------------------------------------------------

const (
	minReconnectDelay = 100 * time.Millisecond
	maxReconnectDelay = 5 * time.Second
)

// NodeConnection is the link to one peer. All methods must be called from the
// execution loop. Resolve, dial, read and write run on goroutines and report back
// through post; results of an attempt that was superseded (by Close or a teardown)
// are discarded and their handles released.
type NodeConnection struct {
	ID   uint64
	Addr cluster.PeerAddress

	t     *peerTransport
	state ConnState
	// gen identifies the current attempt, bumped on every Connect and Close
	gen uint64

	// outstanding handles
	cancel context.CancelFunc
	conn   net.Conn
	out    chan []byte

	failures int
	retryAt  time.Time
	closed   bool

	// trace records every state change, read by tests
	trace []ConnState
}

func newNodeConnection(peer cluster.PeerRecord, t *peerTransport) *NodeConnection {
	return &NodeConnection{
		ID:    peer.ID,
		Addr:  peer.Addr,
		t:     t,
		state: StateDisconnected,
	}
}

// State returns the current connection state
func (c *NodeConnection) State() ConnState {
	return c.state
}

func (c *NodeConnection) setState(s ConnState) {
	if c.state == s {
		return
	}
	PeerLogger.Debugf("node %d (%s): %s -> %s", c.ID, c.Addr, c.state, s)
	c.state = s
	c.trace = append(c.trace, s)
}

// Connect starts resolving the peer address. It is a no-op unless the connection is
// disconnected.
func (c *NodeConnection) Connect() {
	if c.closed || c.state != StateDisconnected {
		return
	}
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithTimeout(context.Background(), c.t.timeout)
	c.cancel = cancel
	c.setState(StateResolving)
	peerConnectAttempts.Inc()

	host := c.Addr.Host
	go func() {
		addrs, err := c.t.resolver.LookupHost(ctx, host)
		c.t.post(func() { c.onResolved(ctx, gen, addrs, err) })
	}()
}

func (c *NodeConnection) onResolved(ctx context.Context, gen uint64, addrs []string, err error) {
	if gen != c.gen || c.state != StateResolving {
		return
	}
	if err == nil && len(addrs) == 0 {
		err = fmt.Errorf("no addresses found for %q", c.Addr.Host)
	}
	if err != nil {
		c.fail("resolve", err)
		return
	}

	c.setState(StateConnecting)
	target := net.JoinHostPort(addrs[0], strconv.Itoa(int(c.Addr.Port)))
	go func() {
		conn, err := c.t.dialer.DialContext(ctx, "tcp", target)
		if !c.t.post(func() { c.onConnected(gen, conn, err) }) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (c *NodeConnection) onConnected(gen uint64, conn net.Conn, err error) {
	if gen != c.gen || c.state != StateConnecting {
		// superseded attempt, release what it produced
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.fail("connect", err)
		return
	}

	c.cancel()
	c.cancel = nil
	c.conn = conn
	c.out = make(chan []byte, c.t.queueSize)
	c.failures = 0
	c.setState(StateConnected)
	PeerLogger.Infof("connected to node %d at %s", c.ID, c.Addr)

	go c.writeLoop(gen, conn, c.out)
	go c.readLoop(gen, conn)
}

func (c *NodeConnection) writeLoop(gen uint64, conn net.Conn, out <-chan []byte) {
	for buf := range out {
		_ = conn.SetWriteDeadline(time.Now().Add(c.t.timeout))
		if _, err := conn.Write(buf); err != nil {
			c.t.post(func() { c.onIOError(gen, "write", err) })
			// keep draining until the loop closes the queue
			for range out {
			}
			return
		}
	}
}

func (c *NodeConnection) readLoop(gen uint64, conn net.Conn) {
	for {
		if err := c.t.codec.ReadReply(conn); err != nil {
			c.t.post(func() { c.onIOError(gen, "read", err) })
			return
		}
	}
}

func (c *NodeConnection) onIOError(gen uint64, op string, err error) {
	if gen != c.gen || c.state != StateConnected {
		return
	}
	PeerLogger.Warningf("%s to node %d (%s) failed: %v", op, c.ID, c.Addr, err)
	c.release()
	c.gen++
	c.scheduleRetry()
	c.setState(StateDisconnected)
}

// fail ends a resolve or connect attempt
func (c *NodeConnection) fail(stage string, err error) {
	peerConnectFailures.Inc()
	c.failures++
	// repeated failures are only interesting at debug level
	if c.failures == 1 {
		PeerLogger.Warningf("failed to %s node %d (%s): %v", stage, c.ID, c.Addr, err)
	} else {
		PeerLogger.Debugf("failed to %s node %d (%s), attempt %d: %v", stage, c.ID, c.Addr, c.failures, err)
	}
	c.release()
	c.scheduleRetry()
	c.setState(StateDisconnected)
}

func (c *NodeConnection) scheduleRetry() {
	delay := minReconnectDelay << min(c.failures, 6)
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	c.retryAt = time.Now().Add(delay)
}

// release frees every outstanding handle
func (c *NodeConnection) release() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if c.out != nil {
		close(c.out)
		c.out = nil
	}
}

// maybeReconnect is called on every tick
func (c *NodeConnection) maybeReconnect(now time.Time) {
	if c.state == StateDisconnected && !now.Before(c.retryAt) {
		c.Connect()
	}
}

// Send queues m for the peer. Messages for a peer that is not connected are dropped
// and a connection attempt is started once the reconnect delay has passed; raft
// retransmits what was lost.
func (c *NodeConnection) Send(m raftpb.Message) {
	if c.state != StateConnected {
		peerMessagesDropped.Inc()
		c.maybeReconnect(time.Now())
		return
	}
	buf, err := c.t.codec.Encode(c.t.localID, m)
	if err != nil {
		PeerLogger.Errorf("failed to encode %s for node %d: %v", m.Type, c.ID, err)
		return
	}
	select {
	case c.out <- buf:
		peerMessagesSent.Inc()
	default:
		peerMessagesDropped.Inc()
		PeerLogger.Debugf("outbound queue of node %d full, dropped %s", c.ID, m.Type)
	}
}

// Close releases all handles and disables reconnects
func (c *NodeConnection) Close() {
	c.gen++
	c.release()
	c.setState(StateDisconnected)
	c.closed = true
}
