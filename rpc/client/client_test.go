package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/lib/cluster"
	"github.com/ValentinKolb/rKV/lib/raftnode"
	"github.com/ValentinKolb/rKV/lib/store"
	storetesting "github.com/ValentinKolb/rKV/lib/store/testing"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/server"
	"github.com/ValentinKolb/rKV/rpc/transport/tcp"
)

var serializers = map[string]func() serializer.IRPCSerializer{
	"Binary": serializer.NewBinarySerializer,
	"GOB":    serializer.NewGOBSerializer,
	"JSON":   serializer.NewJSONSerializer,
}

// startServer runs a single node cluster and returns its endpoint
func startServer(t *testing.T, ser serializer.IRPCSerializer, init bool) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	cfg := common.ServerConfig{
		NodeID:          1,
		Init:            init,
		TickMillisecond: 10,
		ElectionTicks:   10,
		HeartbeatTicks:  1,
		TimeoutSecond:   5,
		Transport:       common.TransportConfig{Endpoint: l.Addr().String(), TCPNoDelay: true, TCPLingerSec: -1},
	}
	s, err := server.NewRPCServer(cfg, tcp.NewTCPServerTransport(0, 0), ser)
	if err != nil {
		t.Fatalf("NewRPCServer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.ServeListener(ctx, l)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l.Addr().String()
}

func clientConfig(endpoint string) common.ClientConfig {
	return common.ClientConfig{
		Endpoints:              []string{endpoint},
		TimeoutSecond:          5,
		RetryCount:             1,
		ConnectionsPerEndpoint: 2,
	}
}

// newStore connects a store client and waits until the node accepts writes
func newStore(t *testing.T, ser serializer.IRPCSerializer) RPCStore {
	t.Helper()
	s, err := NewRPCStore(clientConfig(startServer(t, ser, true)), tcp.NewTCPClientTransport(), ser)
	if err != nil {
		t.Fatalf("NewRPCStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := s.Has("ready")
		if err == nil {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("node did not become leader: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRPCStore(t *testing.T) {
	for name, newSerializer := range serializers {
		storetesting.RunIStoreTests(t, name, func(t *testing.T) store.IStore {
			return newStore(t, newSerializer())
		})
	}
}

func TestRPCStoreNotLeader(t *testing.T) {
	ser := serializer.NewBinarySerializer()
	s, err := NewRPCStore(clientConfig(startServer(t, ser, false)), tcp.NewTCPClientTransport(), ser)
	if err != nil {
		t.Fatalf("NewRPCStore() error = %v", err)
	}
	defer s.Close()

	var se *store.Error
	if err := s.Set("k", []byte("v")); !errors.As(err, &se) || se.Code != store.RetCNotLeader {
		t.Errorf("Set() on a node without cluster error = %v, want code %s", err, store.RetCNotLeader)
	}
}

func TestRPCAdmin(t *testing.T) {
	ser := serializer.NewGOBSerializer()
	endpoint := startServer(t, ser, true)
	admin, err := NewRPCAdmin(clientConfig(endpoint), tcp.NewTCPClientTransport(), ser)
	if err != nil {
		t.Fatalf("NewRPCAdmin() error = %v", err)
	}
	defer admin.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		report, err := admin.Info()
		if err != nil {
			t.Fatalf("Info() error = %v", err)
		}
		if raftnode.ParseInfo(report)["role"] == "leader" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("node did not become leader:\n%s", report)
		}
		time.Sleep(10 * time.Millisecond)
	}

	peer, err := cluster.ParsePeer("2@127.0.0.1:1")
	if err != nil {
		t.Fatalf("ParsePeer() error = %v", err)
	}
	term, _, err := admin.AddNode(peer)
	if err != nil || term == 0 {
		t.Fatalf("AddNode() = term %d, error %v", term, err)
	}
	if _, _, err := admin.AddNode(peer); err == nil {
		t.Error("AddNode() of a known node should fail")
	}

	report, _ := admin.Info()
	if got := raftnode.ParseInfo(report)["num_nodes"]; got != "2" {
		t.Errorf("num_nodes = %q, want 2\n%s", got, report)
	}
}

func TestConnectFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	endpoint := l.Addr().String()
	_ = l.Close()

	if _, err := NewRPCStore(clientConfig(endpoint), tcp.NewTCPClientTransport(), serializer.NewBinarySerializer()); err == nil {
		t.Error("NewRPCStore() without a server should fail")
	}
}
