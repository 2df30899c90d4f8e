package raftnode

// --------------------------------------------------------------------------
// Interface Definitions
// --------------------------------------------------------------------------

// IStateMachine is the storage engine a node applies committed commands to.
// Apply is only called from the execution loop, in log order.
type IStateMachine interface {
	// Apply executes the argument vector committed at index and returns the reply.
	// An error is handed to the waiting caller, it does not stop the node.
	Apply(index uint64, args [][]byte) ([]byte, error)
}

// Submitter is the handle serving goroutines use to reach the execution loop.
// It gives no access to consensus state.
type Submitter interface {
	// Submit enqueues a request. It never blocks; the result is delivered through
	// the request's Completion.
	Submit(req Request) error
}
