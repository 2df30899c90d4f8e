package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/cluster"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/server"
	"github.com/ValentinKolb/rKV/rpc/transport/tcp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start an rKV node",
		Long: `Start an rKV node with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is RKV_<flag> (e.g. RKV_TIMEOUT=15)

A new cluster is created by starting one node with --init. Either list all members
with --peers on every node, or start the other nodes without peers and add them
with "rkv node add". Nodes added that way are only known as voters to the leader
they were added on.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "id"
	ServeCmd.PersistentFlags().Uint64(key, 1, cmdUtil.WrapString("Unique, non zero id of this node within the cluster"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:5000", cmdUtil.WrapString("The address on which the node listens for clients and other nodes (host:port)"))

	key = "peers"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of the other members of the cluster in the format 'id@host:port' (e.g. '2@10.0.0.2:5000,3@10.0.0.3:5000')"))

	key = "init"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Bootstrap a new cluster and campaign for leadership. Only one node of a new cluster sets this flag"))

	key = "tick-ms"
	ServeCmd.PersistentFlags().Uint64(key, 100, cmdUtil.WrapString("Interval of the raft clock in milliseconds. Election and heartbeat timeouts are multiples of it"))

	key = "election-ticks"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("Ticks without contact to a leader before a follower starts an election"))

	key = "heartbeat-ticks"
	ServeCmd.PersistentFlags().Int(key, 1, cmdUtil.WrapString("Ticks between heartbeats of the leader"))

	key = "pre-vote"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Run a pre-vote before elections, so partitioned nodes do not disrupt the cluster"))

	key = "check-quorum"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Leaders step down when they lose contact to a quorum"))

	key = "max-inflight"
	ServeCmd.PersistentFlags().Int(key, 256, cmdUtil.WrapString("Maximum number of unacknowledged append messages per follower"))

	key = "max-msg-size"
	ServeCmd.PersistentFlags().Uint64(key, 1024*1024, cmdUtil.WrapString("Maximum size of an append message in bytes"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for requests and connections to other nodes"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of an http endpoint serving /metrics in the Prometheus format (e.g. localhost:9100). Empty disables it"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Client requests processed concurrently per connection"))

	key = "buffer-size"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("Size of the pooled read buffers (in KB)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY on accepted connections"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval of accepted connections (in seconds, 0 disables it)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, -1, cmdUtil.WrapString("The linger time of accepted connections (in seconds, negative keeps the OS default)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.NodeID = viper.GetUint64("id")
	serveCmdConfig.Init = viper.GetBool("init")
	serveCmdConfig.TickMillisecond = viper.GetUint64("tick-ms")
	serveCmdConfig.ElectionTicks = viper.GetInt("election-ticks")
	serveCmdConfig.HeartbeatTicks = viper.GetInt("heartbeat-ticks")
	serveCmdConfig.PreVote = viper.GetBool("pre-vote")
	serveCmdConfig.CheckQuorum = viper.GetBool("check-quorum")
	serveCmdConfig.MaxInflightMsgs = viper.GetInt("max-inflight")
	serveCmdConfig.MaxSizePerMsg = viper.GetUint64("max-msg-size")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.Transport = common.TransportConfig{
		Endpoint:        viper.GetString("endpoint"),
		WorkersPerConn:  viper.GetInt("workers-per-conn"),
		BufferSize:      viper.GetInt("buffer-size") * 1024,
		TCPNoDelay:      viper.GetBool("tcp-nodelay"),
		TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
		TCPLingerSec:    viper.GetInt("tcp-linger"),
	}

	if serveCmdConfig.NodeID == 0 {
		return fmt.Errorf("node id must not be 0")
	}
	if serveCmdConfig.ElectionTicks <= serveCmdConfig.HeartbeatTicks {
		return fmt.Errorf("election-ticks (%d) must be greater than heartbeat-ticks (%d)", serveCmdConfig.ElectionTicks, serveCmdConfig.HeartbeatTicks)
	}
	if err := common.ValidateLogLevel(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	peers, err := cluster.ParsePeers(viper.GetString("peers"))
	if err != nil {
		return fmt.Errorf("invalid peers: %w", err)
	}
	serveCmdConfig.Peers = peers

	// rejects a peer with the id of this node and an invalid endpoint
	clusterConfig, err := serveCmdConfig.ToClusterConfig()
	if err != nil {
		return err
	}
	return clusterConfig.Validate()
}

// run starts the node and blocks until it receives SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	common.InitLoggers(*serveCmdConfig)

	serv, err := server.NewRPCServer(
		*serveCmdConfig,
		tcp.NewTCPServerTransport(serveCmdConfig.Transport.BufferSize, serveCmdConfig.Transport.WorkersPerConn),
		s,
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serv.Serve(ctx)
}
