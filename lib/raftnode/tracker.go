package raftnode

import (
	"time"

	"github.com/ValentinKolb/rKV/lib/raftnode/internal"
	"go.etcd.io/raft/v3/raftpb"
)

type trackedCommand struct {
	term    uint64
	req     *CommandRequest
	tracked time.Time
}

// CommitTracker maps log indices to the commands waiting for them to commit.
// It is owned by the execution loop and not safe for concurrent use.
type CommitTracker struct {
	sm      IStateMachine
	pending map[uint64]trackedCommand
}

// NewCommitTracker creates a tracker applying committed entries to sm
func NewCommitTracker(sm IStateMachine) *CommitTracker {
	return &CommitTracker{
		sm:      sm,
		pending: make(map[uint64]trackedCommand),
	}
}

// Track registers req as waiting for the entry appended at index in term.
// A command still tracked at the same index lost its slot and is failed.
func (t *CommitTracker) Track(index, term uint64, req *CommandRequest) {
	if old, ok := t.pending[index]; ok && old.req != req {
		entriesReplacedTotal.Inc()
		old.req.done.resolve(Result{Index: index, Term: old.term, Err: ErrEntryReplaced})
	}

	req.flags |= flagPendingCommit
	req.index = index
	req.term = term
	t.pending[index] = trackedCommand{term: term, req: req, tracked: time.Now()}
	gaugePendingCommits.Store(int64(len(t.pending)))
}

// Truncate fails the commands whose entries are overwritten by ents before they are
// appended to the log. A conflicting append replaces the tail of the log, so a command
// past the last new entry is gone as well.
func (t *CommitTracker) Truncate(ents []raftpb.Entry) {
	if len(ents) == 0 || len(t.pending) == 0 {
		return
	}
	first, last := ents[0].Index, ents[len(ents)-1].Index
	for index, w := range t.pending {
		if index < first {
			continue
		}
		if index <= last && ents[index-first].Term == w.term {
			continue
		}
		delete(t.pending, index)
		entriesReplacedTotal.Inc()
		w.req.done.resolve(Result{Index: index, Term: w.term, Err: ErrEntryReplaced})
	}
	gaugePendingCommits.Store(int64(len(t.pending)))
}

// Commit applies a committed normal entry and resumes its waiter, if any.
// The waiter is removed before anything else, so it is resumed at most once.
func (t *CommitTracker) Commit(entry raftpb.Entry) {
	waiter, ok := t.pending[entry.Index]
	if ok {
		delete(t.pending, entry.Index)
		gaugePendingCommits.Store(int64(len(t.pending)))
	}

	// the slot now holds an entry of another leader, the command was never committed
	if ok && waiter.term != entry.Term {
		entriesReplacedTotal.Inc()
		waiter.req.done.resolve(Result{Index: entry.Index, Term: waiter.term, Err: ErrEntryReplaced})
		ok = false
	}

	// leader no-op appended on election
	if len(entry.Data) == 0 {
		if ok {
			waiter.req.done.resolve(Result{Index: entry.Index, Term: entry.Term})
		}
		return
	}

	var cmd internal.Command
	if err := cmd.Deserialize(entry.Data); err != nil {
		Logger.Errorf("failed to deserialize entry %d (term %d): %v", entry.Index, entry.Term, err)
		applyErrorsTotal.Inc()
		if ok {
			waiter.req.done.resolve(Result{Index: entry.Index, Term: entry.Term, Err: err})
		}
		return
	}

	value, err := t.sm.Apply(entry.Index, cmd.Args)
	if err != nil {
		applyErrorsTotal.Inc()
		Logger.Debugf("apply of %s at index %d failed: %v", cmd.String(), entry.Index, err)
	}
	commitsTotal.Inc()

	if !ok {
		return
	}
	commitDuration.UpdateDuration(waiter.tracked)
	waiter.req.done.resolve(Result{Value: value, Index: entry.Index, Term: entry.Term, Err: err})
}

// Abort fails every tracked command with err and empties the tracker
func (t *CommitTracker) Abort(err error) {
	for index, w := range t.pending {
		abortedTotal.Inc()
		w.req.done.resolve(Result{Index: index, Term: w.term, Err: err})
	}
	t.pending = make(map[uint64]trackedCommand)
	gaugePendingCommits.Store(0)
}

// Len returns the number of commands waiting for their commit
func (t *CommitTracker) Len() int {
	return len(t.pending)
}
