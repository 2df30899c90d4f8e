// Package cmd implements the command-line interface of rKV. It provides a
// hierarchical command structure for running a node and talking to one as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a node of the cluster
//   - kv: Key-value operations, raw commands and a performance test
//   - node: Cluster administration (add a node, show the status of a node)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See rkv -help for a list of all commands.
package cmd
