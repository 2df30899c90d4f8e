package rstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/rKV/lib/raftnode"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// storeImpl is the concrete implementation of the replicated store.
// It only holds the submission handle of the node, never the node itself.
type storeImpl struct {
	node    raftnode.Submitter
	timeout time.Duration
}

// NewReplicatedStore creates a store that replicates every operation through the raft
// log of node. Each call waits up to timeout for its command to commit.
func NewReplicatedStore(node raftnode.Submitter, timeout time.Duration) store.IStore {
	return &storeImpl{
		node:    node,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal command execution (used by interface methods)
// --------------------------------------------------------------------------

// exec submits a command and waits for the reply of the engine.
// Commands whose log slot was taken over by a new leader were never applied and are
// submitted again, up to retries times.
func (s *storeImpl) exec(args [][]byte) ([]byte, error) {
	for i := 0; i < retries; i++ {
		req := raftnode.NewCommandRequest(args)
		if err := s.node.Submit(req); err != nil {
			return nil, toStoreError(err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res := req.Wait(ctx)
		cancel()

		if errors.Is(res.Err, raftnode.ErrEntryReplaced) {
			log.Infof("command %q was replaced, retrying (%d/%d)...", args[0], i+1, retries)
			continue
		}
		if res.Err != nil {
			return nil, toStoreError(res.Err)
		}
		return res.Value, nil
	}
	return nil, store.NewError(store.RetCUnavailable, "command was replaced by a new leader too often")
}

// toStoreError maps node errors to store errors
func toStoreError(err error) error {
	var se *store.Error
	if errors.As(err, &se) {
		return se
	}
	var nl *raftnode.NotLeaderError
	switch {
	case errors.As(err, &nl):
		return store.NewError(store.RetCNotLeader, nl.Error())
	case errors.Is(err, raftnode.ErrStopped), errors.Is(err, context.DeadlineExceeded):
		return store.NewError(store.RetCUnavailable, err.Error())
	default:
		return store.NewError(store.RetCInternalError, err.Error())
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docs see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	_, err := s.exec([][]byte{[]byte("SET"), []byte(key), value})
	return err
}

func (s *storeImpl) Delete(key string) error {
	_, err := s.exec([][]byte{[]byte("DEL"), []byte(key)})
	return err
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	val, err := s.exec([][]byte{[]byte("GET"), []byte(key)})
	if err != nil {
		return nil, false, err
	}
	return val, val != nil, nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	val, err := s.exec([][]byte{[]byte("EXISTS"), []byte(key)})
	if err != nil {
		return false, err
	}
	switch string(val) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	default:
		return false, store.NewError(store.RetCInternalError, fmt.Sprintf("unexpected EXISTS reply %q", val))
	}
}

func (s *storeImpl) Exec(args ...[]byte) ([]byte, error) {
	if len(args) == 0 {
		return nil, store.NewError(store.RetCInvalidOperation, "empty command")
	}
	return s.exec(args)
}
