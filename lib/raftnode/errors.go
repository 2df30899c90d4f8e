package raftnode

import (
	"errors"
	"fmt"
)

var (
	// ErrStopped is returned for requests submitted to or pending in a node that shut down
	ErrStopped = errors.New("raft node stopped")
	// ErrDuplicateNode is returned by AddNode when the id is already known
	ErrDuplicateNode = errors.New("node id already exists")
	// ErrInvalidNode is returned by AddNode for the local id or an empty address
	ErrInvalidNode = errors.New("invalid node")
	// ErrEntryReplaced is returned when the log slot of a command was overwritten by a new leader
	ErrEntryReplaced = errors.New("log entry replaced by a different leader")
	// ErrNotLeader is matched by every *NotLeaderError
	ErrNotLeader = errors.New("not leader")
	// ErrUnknownPeer is returned for raft messages whose sender does not match the frame tag
	ErrUnknownPeer = errors.New("raft message sender mismatch")
)

// NotLeaderError is returned for commands submitted to a node that is not the leader.
// Leader is the id of the known leader or 0 if there is none.
type NotLeaderError struct {
	Leader uint64
}

func (e *NotLeaderError) Error() string {
	if e.Leader == 0 {
		return "not leader: no leader elected"
	}
	return fmt.Sprintf("not leader: leader is node %d", e.Leader)
}

// Is makes errors.Is(err, ErrNotLeader) hold for a NotLeaderError
func (e *NotLeaderError) Is(target error) bool {
	return target == ErrNotLeader
}

// IsNotLeader reports whether err is a NotLeaderError
func IsNotLeader(err error) bool {
	var nl *NotLeaderError
	return errors.As(err, &nl)
}
