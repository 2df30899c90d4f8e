package node

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/cluster"
	"github.com/ValentinKolb/rKV/lib/raftnode"
	"github.com/ValentinKolb/rKV/rpc/client"
	"github.com/ValentinKolb/rKV/rpc/transport/tcp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	admin client.RPCAdmin

	// NodeCommands represents the cluster administration command group
	NodeCommands = &cobra.Command{
		Use:                "node",
		Short:              "Administrate the nodes of a cluster",
		Long:               "Administrate the nodes of a cluster. Each command talks to the single node given by --endpoints.",
		PersistentPreRunE:  setupAdminClient,
		PersistentPostRunE: closeAdminClient,
	}
	addCmd = &cobra.Command{
		Use:   "add [id@host:port]",
		Short: "Adds a node to the cluster, must be sent to the leader",
		Long: util.WrapString("Adds a node to the cluster, must be sent to the leader. " +
			"The membership change is applied on the receiving node only and is not replicated through the log: " +
			"the added node does not learn that it or the other members are voters, " +
			"so it never campaigns and other followers do not count it. " +
			"For a cluster that survives the loss of its leader, list all members with --peers on every node instead."),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := cluster.ParsePeer(args[0])
			if err != nil {
				return err
			}
			term, index, err := admin.AddNode(peer)
			if err != nil {
				return err
			}
			fmt.Printf("added node %d (%s) at term=%d, index=%d\n", peer.ID, peer.Addr, term, index)
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Shows the raft status of a node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := admin.Info()
			if err != nil {
				return err
			}
			if viper.GetBool("raw") {
				fmt.Print(report)
				return nil
			}

			fields := raftnode.ParseInfo(report)
			keys := make([]string, 0, len(fields))
			for k := range fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("  %-16s: %s\n", k, fields[k])
			}
			return nil
		},
	}
)

func init() {
	util.SetupRPCClientFlags(NodeCommands)
	infoCmd.Flags().Bool("raw", false, util.WrapString("Print the report as sent by the node"))

	NodeCommands.AddCommand(addCmd)
	NodeCommands.AddCommand(infoCmd)
}

func setupAdminClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()
	if len(config.Endpoints) != 1 {
		return fmt.Errorf("node commands need exactly one endpoint, got %d", len(config.Endpoints))
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	admin, err = client.NewRPCAdmin(*config, tcp.NewTCPClientTransport(), s)
	return err
}

func closeAdminClient(_ *cobra.Command, _ []string) error {
	if admin == nil {
		return nil
	}
	return admin.Close()
}
