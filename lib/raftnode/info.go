package raftnode

import (
	"fmt"
	"strings"
)

// info renders the status report returned for an InfoRequest, one key:value per line
func (n *Node) info() string {
	st := n.rn.BasicStatus()

	var b strings.Builder
	b.WriteString("# Raft\n")
	fmt.Fprintf(&b, "node_id:%d\n", n.cfg.ID)
	fmt.Fprintf(&b, "role:%s\n", strings.ToLower(strings.TrimPrefix(st.RaftState.String(), "State")))
	fmt.Fprintf(&b, "leader_id:%d\n", st.Lead)
	fmt.Fprintf(&b, "current_term:%d\n", st.Term)
	fmt.Fprintf(&b, "voted_for:%d\n", st.Vote)
	fmt.Fprintf(&b, "commit_index:%d\n", st.Commit)
	fmt.Fprintf(&b, "applied_index:%d\n", n.applied)
	fmt.Fprintf(&b, "last_index:%d\n", n.lastIndex())
	fmt.Fprintf(&b, "pending_commits:%d\n", n.tracker.Len())
	fmt.Fprintf(&b, "queue_length:%d\n", n.queue.Len())
	fmt.Fprintf(&b, "num_nodes:%d\n", len(n.peers)+1)
	for i, id := range n.peerOrder {
		c := n.peers[id]
		fmt.Fprintf(&b, "node%d:id=%d,addr=%s,state=%s\n", i, c.ID, c.Addr, c.State())
	}
	return b.String()
}

// ParseInfo splits a status report into its fields. Section headers are skipped.
func ParseInfo(report string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(report, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			fields[k] = v
		}
	}
	return fields
}
