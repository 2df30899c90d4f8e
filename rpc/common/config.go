package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/rKV/lib/cluster"
	"github.com/ValentinKolb/rKV/lib/raftnode"
)

// --------------------------------------------------------------------------
// helper functions to interface with the raft node (for the server util)
// --------------------------------------------------------------------------

// ToNodeConfig converts the ServerConfig to the config of the raft node
func (c *ServerConfig) ToNodeConfig() raftnode.Config {
	cfg := raftnode.DefaultConfig(c.NodeID)
	cfg.Init = c.Init
	cfg.Peers = c.Peers
	cfg.TickInterval = time.Duration(c.TickMillisecond) * time.Millisecond
	cfg.ElectionTick = c.ElectionTicks
	cfg.HeartbeatTick = c.HeartbeatTicks
	cfg.PreVote = c.PreVote
	cfg.CheckQuorum = c.CheckQuorum
	cfg.MaxInflightMsgs = c.MaxInflightMsgs
	cfg.MaxSizePerMsg = c.MaxSizePerMsg
	if c.TimeoutSecond > 0 {
		cfg.IOTimeout = time.Duration(c.TimeoutSecond) * time.Second
	}
	return cfg
}

// ToClusterConfig returns the static membership of the node
func (c *ServerConfig) ToClusterConfig() (cluster.ClusterConfig, error) {
	bind, err := cluster.ParseAddress(c.Transport.Endpoint)
	if err != nil {
		return cluster.ClusterConfig{}, err
	}
	cfg := cluster.ClusterConfig{LocalID: c.NodeID, Bind: bind, Init: c.Init}
	for _, p := range c.Peers {
		if err := cfg.AddPeer(p); err != nil {
			return cluster.ClusterConfig{}, err
		}
	}
	return cfg, nil
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// TransportConfig holds the socket settings of the RPC server
type TransportConfig struct {
	// Endpoint is the address the server listens on. Other nodes reach this node here.
	Endpoint string

	WorkersPerConn int // concurrent requests per connection
	BufferSize     int // size of pooled read buffers

	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int // negative keeps the OS default
	WriteBufferSize int
	ReadBufferSize  int
}

// ServerConfig holds all configuration parameters for a node of the cluster.
type ServerConfig struct {
	// Node identity and initial membership
	NodeID uint64
	Peers  []cluster.PeerRecord
	Init   bool

	// Raft parameters
	TickMillisecond uint64
	ElectionTicks   int
	HeartbeatTicks  int
	PreVote         bool
	CheckQuorum     bool
	MaxInflightMsgs int
	MaxSizePerMsg   uint64

	// time a request may wait for its commit
	TimeoutSecond int64

	// Socket settings
	Transport TransportConfig

	// Address of the /metrics http endpoint, empty disables it
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))
	addField("TCP No Delay", fmt.Sprintf("%t", c.Transport.TCPNoDelay))
	if c.MetricsEndpoint != "" {
		addField("Metrics", "http://"+c.MetricsEndpoint+"/metrics")
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Node Identity
	addSection("Node Identity")
	addField("Node ID", strconv.FormatUint(c.NodeID, 10))
	addField("Bootstrap", fmt.Sprintf("%t", c.Init))

	// RAFT parameters
	addSection("RAFT Parameters")
	addField("Tick", fmt.Sprintf("%d ms", c.TickMillisecond))
	addField("Election Timeout", fmt.Sprintf("%d ticks", c.ElectionTicks))
	addField("Heartbeat Interval", fmt.Sprintf("%d ticks", c.HeartbeatTicks))
	addField("Pre Vote", fmt.Sprintf("%t", c.PreVote))
	addField("Check Quorum", fmt.Sprintf("%t", c.CheckQuorum))
	addField("Max Inflight Msgs", strconv.Itoa(c.MaxInflightMsgs))
	addField("Max Msg Size", fmt.Sprintf("%d bytes", c.MaxSizePerMsg))

	// Cluster configuration
	addSection("Cluster")
	if len(c.Peers) == 0 {
		sb.WriteString("  (no peers configured)\n")
	}
	for _, p := range c.Peers {
		sb.WriteString(fmt.Sprintf("    Node %d: %s\n", p.ID, p.Addr))
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints              []string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
