package raftnode

import (
	"fmt"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

// process wide metrics, exported by the serve command at /metrics
var (
	commitsTotal         = metrics.NewCounter("rkv_raft_commits_total")
	entriesReplacedTotal = metrics.NewCounter("rkv_raft_entries_replaced_total")
	applyErrorsTotal     = metrics.NewCounter("rkv_raft_apply_errors_total")
	abortedTotal         = metrics.NewCounter("rkv_raft_aborted_requests_total")
	notLeaderTotal       = metrics.NewCounter("rkv_raft_not_leader_total")
	commitDuration       = metrics.NewHistogram("rkv_raft_commit_duration_seconds")

	peerConnectAttempts = metrics.NewCounter("rkv_peer_connect_attempts_total")
	peerConnectFailures = metrics.NewCounter("rkv_peer_connect_failures_total")
	peerMessagesSent    = metrics.NewCounter("rkv_peer_messages_sent_total")
	peerMessagesDropped = metrics.NewCounter("rkv_peer_messages_dropped_total")

	gaugeTerm           atomic.Uint64
	gaugeLeader         atomic.Bool
	gaugePendingCommits atomic.Int64
	gaugeCommitIndex    atomic.Uint64
)

func init() {
	metrics.NewGauge("rkv_raft_term", func() float64 { return float64(gaugeTerm.Load()) })
	metrics.NewGauge("rkv_raft_commit_index", func() float64 { return float64(gaugeCommitIndex.Load()) })
	metrics.NewGauge("rkv_raft_pending_commits", func() float64 { return float64(gaugePendingCommits.Load()) })
	metrics.NewGauge("rkv_raft_is_leader", func() float64 {
		if gaugeLeader.Load() {
			return 1
		}
		return 0
	})
}

// requestsTotal returns the submission counter for a request kind
func requestsTotal(kind RequestKind) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`rkv_raft_requests_total{kind=%q}`, kind.String()))
}
