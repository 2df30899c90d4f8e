package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/rKV/lib/raftnode"
	"github.com/ValentinKolb/rKV/lib/store/lstore"
	"github.com/ValentinKolb/rKV/lib/store/rstore"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// RPCServer is one node of the cluster: a storage engine, the raft node replicating
// it and the transport serving clients and other nodes on a single endpoint.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer

	engine   *lstore.Engine
	node     *raftnode.Node
	adapters map[common.MessageType]IRPCServerAdapter
}

// NewRPCServer creates the node described by config
// It takes a config, transport and serializer as parameters. Options are passed to the
// raft node.
//
// Usage:
//
//	s, err := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(0, 0),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	opts ...raftnode.Option,
) (*RPCServer, error) {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	engine := lstore.NewLocalStore()
	opts = append([]raftnode.Option{raftnode.WithPeerCodec(NewPeerCodec(serializer))}, opts...)
	node, err := raftnode.NewNode(config.ToNodeConfig(), engine, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft node: %w", err)
	}

	timeout := time.Duration(config.TimeoutSecond) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	s := &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		engine:     engine,
		node:       node,
		adapters:   make(map[common.MessageType]IRPCServerAdapter),
	}
	s.register(NewIStoreServerAdapter(rstore.NewReplicatedStore(node, timeout)))
	s.register(NewNodeServerAdapter(node, timeout))
	s.register(NewPeerServerAdapter(node, timeout))
	s.transport.RegisterHandler(s.handle)

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())
	return s, nil
}

// Node returns the raft node of the server
func (s *RPCServer) Node() *raftnode.Node {
	return s.node
}

// Engine returns the local storage engine committed commands are applied to
func (s *RPCServer) Engine() *lstore.Engine {
	return s.engine
}

func (s *RPCServer) register(adapter IRPCServerAdapter) {
	for _, t := range adapter.MessageTypes() {
		s.adapters[t] = adapter
	}
}

// handle decodes a request, lets the responsible adapter process it and encodes the response
func (s *RPCServer) handle(senderID uint64, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else if adapter, ok := s.adapters[msg.MsgType]; !ok {
		respMsg = common.NewErrorResponse(fmt.Sprintf("unsupported message type: %s", msg.MsgType))
	} else {
		respMsg = adapter.Handle(senderID, &msg)
	}

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize %s response: %v", respMsg.MsgType, err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
	}
	return val
}

// Serve runs the node and serves the configured endpoint until ctx is cancelled
func (s *RPCServer) Serve(ctx context.Context) error {
	return s.run(ctx, func() error { return s.transport.Listen(s.config) })
}

// ServeListener is like Serve but accepts connections on l
func (s *RPCServer) ServeListener(ctx context.Context, l net.Listener) error {
	return s.run(ctx, func() error { return s.transport.Serve(l, s.config) })
}

func (s *RPCServer) run(ctx context.Context, listen func() error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	nodeDone := make(chan error, 1)
	go func() { nodeDone <- s.node.Run(ctx) }()

	var metricsSrv *http.Server
	if s.config.MetricsEndpoint != "" {
		metricsSrv = startMetrics(s.config.MetricsEndpoint)
	}

	listenDone := make(chan error, 1)
	go func() { listenDone <- listen() }()

	var err error
	select {
	case <-ctx.Done():
	case err = <-listenDone:
		if err != nil {
			err = fmt.Errorf("transport failed: %w", err)
		}
		cancel()
	case err = <-nodeDone:
		cancel()
	}

	Logger.Infof("shutting down node %d", s.node.ID())
	if cerr := s.transport.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		Logger.Warningf("failed to close transport: %v", cerr)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}
	cancel()
	<-s.node.Stopped()
	return err
}

// startMetrics serves the metrics of the process in the Prometheus text format
func startMetrics(endpoint string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	srv := &http.Server{Addr: endpoint, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		Logger.Infof("serving metrics on http://%s/metrics", endpoint)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()
	return srv
}
