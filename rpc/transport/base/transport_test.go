package base

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/transport"
)

// testConnector connects plain TCP sockets on the loopback interface
type testConnector struct{}

func (testConnector) GetName() string { return "test" }

func (testConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	return net.Listen("tcp", config.Transport.Endpoint)
}

func (testConnector) UpgradeConnection(net.Conn, common.ServerConfig) error { return nil }

func (testConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", endpoint, timeout)
}

// startServer serves handler on a random loopback port until the test ends
func startServer(t *testing.T, handler transport.ServerHandleFunc) (transport.IRPCServerTransport, string) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := NewBaseServerTransport(testConnector{}, 4096, 4)
	srv.RegisterHandler(handler)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(l, common.ServerConfig{TimeoutSecond: 5}) }()

	t.Cleanup(func() {
		_ = srv.Close()
		if err := <-done; err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	})
	return srv, l.Addr().String()
}

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		buf  []byte
	}{
		{"Empty", []byte{}, nil},
		{"SmallBuffer", []byte("hello world"), make([]byte, 4)},
		{"LargeBuffer", []byte("hello world"), make([]byte, 1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := EncodeFrame(3, 99, tt.data)
			if len(frame) != HeaderSize+len(tt.data) {
				t.Fatalf("frame size = %d", len(frame))
			}

			sender, id, data, err := ReadFrame(bytes.NewReader(frame), tt.buf)
			if err != nil {
				t.Fatalf("ReadFrame() error = %v", err)
			}
			if sender != 3 || id != 99 || !bytes.Equal(data, tt.data) {
				t.Errorf("ReadFrame() = %d, %d, %q", sender, id, data)
			}
		})
	}

	// truncated payload
	frame := EncodeFrame(1, 1, []byte("abc"))
	if _, _, _, err := ReadFrame(bytes.NewReader(frame[:len(frame)-1]), nil); err == nil {
		t.Error("ReadFrame() of a truncated frame should fail")
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	for _, size := range []uint32{MaxFrameSize + 1, 0xffffffff} {
		header := make([]byte, HeaderSize)
		binary.BigEndian.PutUint64(header[:8], 2)
		binary.BigEndian.PutUint64(header[8:16], 7)
		binary.BigEndian.PutUint32(header[16:20], size)

		// no payload follows, the header alone has to be rejected
		sender, id, data, err := ReadFrame(bytes.NewReader(header), nil)
		if !errors.Is(err, ErrFrameTooLarge) {
			t.Errorf("ReadFrame(%d bytes) error = %v, want %v", size, err, ErrFrameTooLarge)
		}
		if data != nil || sender != 2 || id != 7 {
			t.Errorf("ReadFrame(%d bytes) = %d, %d, %d bytes", size, sender, id, len(data))
		}
	}

	// the limit itself is accepted
	frame := EncodeFrame(1, 1, nil)
	binary.BigEndian.PutUint32(frame[16:20], MaxFrameSize)
	if _, _, _, err := ReadFrame(bytes.NewReader(frame), nil); errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("ReadFrame(MaxFrameSize) error = %v", err)
	}
}

func TestClientServer(t *testing.T) {
	_, addr := startServer(t, func(senderID uint64, req []byte) []byte {
		return []byte(fmt.Sprintf("%d:%s", senderID, req))
	})

	client := NewBaseClientTransport(testConnector{})
	if err := client.Connect(common.ClientConfig{Endpoints: []string{addr}, TimeoutSecond: 5, ConnectionsPerEndpoint: 2}); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := fmt.Sprintf("req-%d", i)
			resp, err := client.Send([]byte(req))
			if err != nil {
				t.Errorf("Send(%s) error = %v", req, err)
				return
			}
			// clients always send with sender id 0
			if string(resp) != "0:"+req {
				t.Errorf("Send(%s) = %q", req, resp)
			}
		}(i)
	}
	wg.Wait()
}

func TestConnectFailure(t *testing.T) {
	l, _ := net.Listen("tcp", "127.0.0.1:0")
	addr := l.Addr().String()
	_ = l.Close()

	client := NewBaseClientTransport(testConnector{})
	if err := client.Connect(common.ClientConfig{Endpoints: []string{addr}, TimeoutSecond: 1}); err == nil {
		t.Error("Connect() to a closed port should fail")
	}
	if err := client.Connect(common.ClientConfig{}); err == nil {
		t.Error("Connect() without endpoints should fail")
	}
}

func TestPeerRequestsKeepOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	_, addr := startServer(t, func(senderID uint64, req []byte) []byte {
		mu.Lock()
		got = append(got, string(req))
		mu.Unlock()
		return nil
	})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	const n = 100
	for i := 0; i < n; i++ {
		if _, err := conn.Write(EncodeFrame(7, uint64(i), []byte(fmt.Sprint(i)))); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for i := 0; i < n; i++ {
		sender, id, _, err := ReadFrame(conn, nil)
		if err != nil {
			t.Fatalf("read reply %d: %v", i, err)
		}
		if sender != 7 || id != uint64(i) {
			t.Fatalf("reply %d = sender %d, id %d", i, sender, id)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, req := range got {
		if req != fmt.Sprint(i) {
			t.Fatalf("requests handled out of order: %v", got)
		}
	}
}

func TestServeWithoutHandler(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	srv := NewBaseServerTransport(testConnector{}, 1024, 1)
	if err := srv.Serve(l, common.ServerConfig{}); err == nil {
		t.Error("Serve() without handler should fail")
	}
}
