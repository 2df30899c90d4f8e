package raftnode

import (
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"go.etcd.io/raft/v3/raftpb"
)

func TestNodeConnectionConnects(t *testing.T) {
	dialer := newPipeDialer(0)
	tr, events := testTransport(&staticResolver{}, dialer)
	c := newNodeConnection(peerRecord(2), tr)

	c.Connect()
	if c.State() != StateResolving {
		t.Fatalf("state = %s, want %s", c.State(), StateResolving)
	}
	runNext(t, events)
	if c.State() != StateConnecting {
		t.Fatalf("state = %s, want %s", c.State(), StateConnecting)
	}
	runNext(t, events)
	if c.State() != StateConnected {
		t.Fatalf("state = %s, want %s", c.State(), StateConnected)
	}

	want := []ConnState{StateResolving, StateConnecting, StateConnected}
	if !reflect.DeepEqual(c.trace, want) {
		t.Errorf("transitions = %v, want %v", c.trace, want)
	}
	if c.cancel != nil {
		t.Error("resolve/dial context not released after connecting")
	}
	c.Close()
}

func TestNodeConnectionRetryAfterFailure(t *testing.T) {
	dialer := newPipeDialer(1)
	tr, events := testTransport(&staticResolver{}, dialer)
	c := newNodeConnection(peerRecord(2), tr)

	c.Connect()
	runNext(t, events) // resolved
	runNext(t, events) // dial failed

	if c.State() != StateDisconnected {
		t.Fatalf("state = %s after failed dial, want %s", c.State(), StateDisconnected)
	}
	if c.cancel != nil || c.conn != nil || c.out != nil {
		t.Fatal("handles of the failed attempt were not released")
	}

	c.Connect()
	runNext(t, events)
	runNext(t, events)
	if c.State() != StateConnected {
		t.Fatalf("state = %s after retry, want %s", c.State(), StateConnected)
	}
	if dialer.dialCount() != 2 {
		t.Errorf("dials = %d, want 2", dialer.dialCount())
	}

	// CONNECTED is only ever reached directly after CONNECTING, which follows RESOLVING
	for i, s := range c.trace {
		if s == StateConnected && (i < 2 || c.trace[i-1] != StateConnecting || c.trace[i-2] != StateResolving) {
			t.Fatalf("invalid transitions %v", c.trace)
		}
	}
	c.Close()
}

func TestNodeConnectionSendHonorsBackoff(t *testing.T) {
	dialer := newPipeDialer(1)
	tr, events := testTransport(&staticResolver{}, dialer)
	c := newNodeConnection(peerRecord(2), tr)

	// the first send to a fresh connection starts an attempt right away
	c.Send(raftpb.Message{Type: raftpb.MsgHeartbeat, From: 1, To: 2})
	if c.State() != StateResolving {
		t.Fatalf("state = %s after first send, want %s", c.State(), StateResolving)
	}
	runNext(t, events)
	runNext(t, events) // dial failed
	if c.State() != StateDisconnected {
		t.Fatalf("state = %s after failed dial, want %s", c.State(), StateDisconnected)
	}

	// sends inside the backoff window are dropped without dialing
	for i := 0; i < 5; i++ {
		c.Send(raftpb.Message{Type: raftpb.MsgHeartbeat, From: 1, To: 2})
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %s inside the backoff window, want %s", c.State(), StateDisconnected)
	}
	if dialer.dialCount() != 1 {
		t.Errorf("dials = %d inside the backoff window, want 1", dialer.dialCount())
	}

	c.retryAt = time.Now().Add(-time.Millisecond)
	c.Send(raftpb.Message{Type: raftpb.MsgHeartbeat, From: 1, To: 2})
	runNext(t, events)
	runNext(t, events)
	if c.State() != StateConnected {
		t.Fatalf("state = %s after the backoff, want %s", c.State(), StateConnected)
	}
	if dialer.dialCount() != 2 {
		t.Errorf("dials = %d, want 2", dialer.dialCount())
	}
	c.Close()
}

func TestNodeConnectionResolveFailure(t *testing.T) {
	tr, events := testTransport(&staticResolver{err: errors.New("no such host")}, newPipeDialer(0))
	c := newNodeConnection(peerRecord(2), tr)

	c.Connect()
	runNext(t, events)

	want := []ConnState{StateResolving, StateDisconnected}
	if !reflect.DeepEqual(c.trace, want) {
		t.Errorf("transitions = %v, want %v", c.trace, want)
	}
	if c.retryAt.IsZero() {
		t.Error("no retry scheduled")
	}
}

func TestNodeConnectionCloseDiscardsPendingResolve(t *testing.T) {
	tr, events := testTransport(&staticResolver{block: true}, newPipeDialer(0))
	c := newNodeConnection(peerRecord(2), tr)

	c.Connect()
	c.Close()
	// the cancelled lookup still reports back and must be ignored
	runNext(t, events)

	if c.State() != StateDisconnected {
		t.Errorf("state = %s, want %s", c.State(), StateDisconnected)
	}
	c.Connect()
	if c.State() != StateDisconnected {
		t.Error("closed connection started a new attempt")
	}
}

func TestNodeConnectionStaleDialIsClosed(t *testing.T) {
	dialer := newPipeDialer(0)
	dialer.gate = make(chan struct{})
	tr, events := testTransport(&staticResolver{}, dialer)
	c := newNodeConnection(peerRecord(2), tr)

	c.Connect()
	runNext(t, events) // resolved, dial is held by the gate
	c.Close()
	close(dialer.gate)
	runNext(t, events) // late dial result

	server := <-dialer.servers
	_ = server.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := server.Read(make([]byte, 1)); err != io.EOF && !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("stale connection was not closed, read error = %v", err)
	}
	if c.conn != nil {
		t.Error("stale connection was adopted")
	}
}

func TestNodeConnectionSend(t *testing.T) {
	dialer := newPipeDialer(0)
	tr, events := testTransport(&staticResolver{}, dialer)
	c := newNodeConnection(peerRecord(2), tr)

	// not connected: dropped, but a connection attempt starts
	c.Send(raftpb.Message{Type: raftpb.MsgHeartbeat, To: 2, From: 1})
	if c.State() != StateResolving {
		t.Fatalf("state = %s after Send(), want %s", c.State(), StateResolving)
	}
	runNext(t, events)
	runNext(t, events)
	server := <-dialer.servers

	sent := raftpb.Message{Type: raftpb.MsgApp, To: 2, From: 1, Term: 3, Index: 7, LogTerm: 3, Commit: 6}
	c.Send(sent)

	received := readMessage(t, server)
	if received.Type != sent.Type || received.Term != sent.Term || received.Index != sent.Index {
		t.Errorf("received %+v, want %+v", received, sent)
	}

	// peer goes away: the read loop reports, the connection resets
	_ = server.Close()
	runNext(t, events)
	if c.State() != StateDisconnected {
		t.Fatalf("state = %s after peer closed, want %s", c.State(), StateDisconnected)
	}
	if c.conn != nil || c.out != nil {
		t.Error("handles not released after I/O error")
	}
}

func readMessage(t *testing.T, r io.Reader) raftpb.Message {
	t.Helper()
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		t.Fatalf("failed to read frame header: %v", err)
	}
	size := int(header[0])<<24 | int(header[1])<<16 | int(header[2])<<8 | int(header[3])
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var m raftpb.Message
	if err := m.Unmarshal(buf); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	return m
}
