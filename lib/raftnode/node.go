package raftnode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/rKV/lib/cluster"
	"github.com/ValentinKolb/rKV/lib/raftnode/internal"
	"go.etcd.io/raft/v3"
	"go.etcd.io/raft/v3/raftpb"
)

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// Config holds the settings of a node
type Config struct {
	// ID is the id of this node, must be > 0
	ID uint64
	// Init bootstraps a new cluster and campaigns right away
	Init bool
	// Peers are the other members known at startup
	Peers []cluster.PeerRecord

	// TickInterval is the duration of one raft tick
	TickInterval time.Duration
	// ElectionTick and HeartbeatTick are counted in ticks
	ElectionTick  int
	HeartbeatTick int
	// MaxSizePerMsg limits the size of the entries in one append message
	MaxSizePerMsg uint64
	// MaxInflightMsgs limits the append messages in flight per peer
	MaxInflightMsgs int
	PreVote         bool
	CheckQuorum     bool

	// IOTimeout bounds resolving, dialing and single writes to a peer
	IOTimeout time.Duration
	// OutboundQueue is the number of encoded messages buffered per peer
	OutboundQueue int
}

// DefaultConfig returns the default settings for the node with the given id
func DefaultConfig(id uint64) Config {
	return Config{
		ID:              id,
		TickInterval:    100 * time.Millisecond,
		ElectionTick:    10,
		HeartbeatTick:   1,
		MaxSizePerMsg:   1024 * 1024,
		MaxInflightMsgs: 256,
		PreVote:         true,
		CheckQuorum:     true,
		IOTimeout:       5 * time.Second,
		OutboundQueue:   1024,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig(c.ID)
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.ElectionTick <= 0 {
		c.ElectionTick = d.ElectionTick
	}
	if c.HeartbeatTick <= 0 {
		c.HeartbeatTick = d.HeartbeatTick
	}
	if c.MaxSizePerMsg == 0 {
		c.MaxSizePerMsg = d.MaxSizePerMsg
	}
	if c.MaxInflightMsgs <= 0 {
		c.MaxInflightMsgs = d.MaxInflightMsgs
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = d.IOTimeout
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = d.OutboundQueue
	}
}

// Option customizes a node
type Option func(*Node)

// WithResolver sets the resolver used for peer host names
func WithResolver(r Resolver) Option {
	return func(n *Node) { n.transport.resolver = r }
}

// WithDialer sets the dialer used for peer connections
func WithDialer(d Dialer) Option {
	return func(n *Node) { n.transport.dialer = d }
}

// WithPeerCodec sets the framing of raft messages on peer connections
func WithPeerCodec(c PeerCodec) Option {
	return func(n *Node) { n.transport.codec = c }
}

// --------------------------------------------------------------------------
// Node
// --------------------------------------------------------------------------

// Node is the execution loop of a cluster member. It owns the raft state machine,
// the raft log, the peer connections and the commit tracker. Everything except
// Submit runs on the goroutine calling Run.
type Node struct {
	cfg       Config
	rn        *raft.RawNode
	storage   *raft.MemoryStorage
	queue     *RequestQueue
	tracker   *CommitTracker
	transport *peerTransport

	peers     map[uint64]*NodeConnection
	peerOrder []uint64

	events  chan func()
	stopped chan struct{}
	running atomic.Bool

	leader  uint64
	role    raft.StateType
	applied uint64
}

// NewNode creates a node applying committed commands to sm. With cfg.Init the node
// bootstraps a cluster and is leader when NewNode returns, unless cfg.Peers lists
// other voters it first needs votes from.
func NewNode(cfg Config, sm IStateMachine, opts ...Option) (*Node, error) {
	if cfg.ID == 0 {
		return nil, fmt.Errorf("%w: node id must be > 0", ErrInvalidNode)
	}
	cfg.applyDefaults()

	storage := raft.NewMemoryStorage()
	rn, err := raft.NewRawNode(&raft.Config{
		ID:              cfg.ID,
		ElectionTick:    cfg.ElectionTick,
		HeartbeatTick:   cfg.HeartbeatTick,
		Storage:         storage,
		MaxSizePerMsg:   cfg.MaxSizePerMsg,
		MaxInflightMsgs: cfg.MaxInflightMsgs,
		PreVote:         cfg.PreVote,
		CheckQuorum:     cfg.CheckQuorum,
		// followers reject proposals so callers learn about the leader
		DisableProposalForwarding: true,
		Logger:                    newRaftLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create raft node: %w", err)
	}

	n := &Node{
		cfg:     cfg,
		rn:      rn,
		storage: storage,
		queue:   NewRequestQueue(),
		tracker: NewCommitTracker(sm),
		peers:   make(map[uint64]*NodeConnection),
		events:  make(chan func(), 256),
		stopped: make(chan struct{}),
		role:    raft.StateFollower,
	}
	n.transport = &peerTransport{
		localID:   cfg.ID,
		resolver:  net.DefaultResolver,
		dialer:    &net.Dialer{},
		codec:     lengthPrefixCodec{},
		timeout:   cfg.IOTimeout,
		queueSize: cfg.OutboundQueue,
		post:      n.post,
	}
	for _, opt := range opts {
		opt(n)
	}

	for _, p := range cfg.Peers {
		if err := n.addConnection(p); err != nil {
			return nil, fmt.Errorf("invalid peer %s: %w", p, err)
		}
	}

	if err := n.bootstrap(); err != nil {
		return nil, err
	}
	return n, nil
}

// bootstrap writes the initial membership. A node without --init and without peers
// starts empty and waits to be added by a leader.
func (n *Node) bootstrap() error {
	if !n.cfg.Init && len(n.cfg.Peers) == 0 {
		Logger.Infof("node %d: waiting to be added to a cluster", n.cfg.ID)
		return nil
	}

	// every member bootstraps the same entries, whatever order its peers were listed in
	voters := []raft.Peer{{ID: n.cfg.ID}}
	for _, p := range n.cfg.Peers {
		voters = append(voters, raft.Peer{ID: p.ID})
	}
	sort.Slice(voters, func(i, j int) bool { return voters[i].ID < voters[j].ID })
	if err := n.rn.Bootstrap(voters); err != nil {
		return fmt.Errorf("failed to bootstrap raft node: %w", err)
	}
	// the membership has to be applied before a campaign is accepted
	n.processReady()

	if n.cfg.Init {
		if err := n.rn.Campaign(); err != nil {
			return fmt.Errorf("failed to campaign: %w", err)
		}
		n.processReady()
		Logger.Infof("node %d: bootstrapped cluster with %d voter(s)", n.cfg.ID, len(voters))
	}
	return nil
}

// ID returns the id of this node
func (n *Node) ID() uint64 {
	return n.cfg.ID
}

// Stopped is closed once Run returned and all pending requests were failed
func (n *Node) Stopped() <-chan struct{} {
	return n.stopped
}

// Submit hands a request to the execution loop. It is safe for concurrent use.
func (n *Node) Submit(req Request) error {
	if err := n.queue.Submit(req); err != nil {
		return err
	}
	requestsTotal(req.Kind()).Inc()
	return nil
}

// post schedules fn on the execution loop
func (n *Node) post(fn func()) bool {
	select {
	case <-n.stopped:
		return false
	default:
	}
	select {
	case n.events <- fn:
		return true
	case <-n.stopped:
		return false
	}
}

// Run drives the node until ctx is cancelled. Pending requests are then failed
// with ErrStopped and all peer connections are closed.
func (n *Node) Run(ctx context.Context) error {
	if !n.running.CompareAndSwap(false, true) {
		return errors.New("raft node is already running")
	}
	defer n.shutdown()

	ticker := time.NewTicker(n.cfg.TickInterval)
	defer ticker.Stop()

	Logger.Infof("node %d: execution loop started (tick %s)", n.cfg.ID, n.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			Logger.Infof("node %d: stopping execution loop", n.cfg.ID)
			return nil
		case <-ticker.C:
			n.tick(time.Now())
		case <-n.queue.Wake():
			n.drain()
		case fn := <-n.events:
			fn()
		}
	}
}

func (n *Node) tick(now time.Time) {
	n.rn.Tick()
	for _, id := range n.peerOrder {
		n.peers[id].maybeReconnect(now)
	}
	n.processReady()
}

// drain dispatches every queued request, in submission order
func (n *Node) drain() int {
	reqs := n.queue.Drain()
	for _, req := range reqs {
		n.dispatch(req)
	}
	return len(reqs)
}

// runEvents executes the I/O completions posted so far without blocking
func (n *Node) runEvents() int {
	count := 0
	for {
		select {
		case fn := <-n.events:
			fn()
			count++
		default:
			return count
		}
	}
}

func (n *Node) shutdown() {
	for _, req := range n.queue.Close() {
		abortedTotal.Inc()
		req.Completion().resolve(Result{Err: ErrStopped})
	}
	n.tracker.Abort(ErrStopped)
	for _, id := range n.peerOrder {
		n.peers[id].Close()
	}
	close(n.stopped)
	// completions that raced with the stop release their handles on the closed connections
	n.runEvents()
	gaugeLeader.Store(false)
}

// --------------------------------------------------------------------------
// Dispatch
// --------------------------------------------------------------------------

func (n *Node) dispatch(req Request) {
	switch r := req.(type) {
	case *AddNodeRequest:
		n.handleAddNode(r)
	case *AppendEntriesRequest:
		n.handleRaftMessage(r.Source, r.Msg, r.done)
	case *RequestVoteRequest:
		n.handleRaftMessage(r.Source, r.Msg, r.done)
	case *CommandRequest:
		n.handleCommand(r)
	case *InfoRequest:
		r.done.resolve(Result{Value: []byte(n.info())})
	default:
		Logger.Errorf("node %d: unknown request type %T", n.cfg.ID, req)
		panic(fmt.Sprintf("raftnode: unknown request type %T", req))
	}
}

func (n *Node) handleAddNode(r *AddNodeRequest) {
	if err := n.addConnection(r.Peer); err != nil {
		Logger.Warningf("node %d: rejected add of %s: %v", n.cfg.ID, r.Peer, err)
		r.done.resolve(Result{Err: err})
		return
	}
	n.rn.ApplyConfChange(raftpb.ConfChange{
		Type:    raftpb.ConfChangeAddNode,
		NodeID:  r.Peer.ID,
		Context: []byte(r.Peer.Addr.String()),
	})
	n.processReady()
	Logger.Infof("node %d: added node %s", n.cfg.ID, r.Peer)
	r.done.resolve(Result{Term: n.rn.BasicStatus().Term, Index: n.lastIndex()})
}

// addConnection registers a peer and starts connecting to it
func (n *Node) addConnection(p cluster.PeerRecord) error {
	if p.ID == 0 || p.ID == n.cfg.ID || p.Addr.IsZero() {
		return fmt.Errorf("%w: %s", ErrInvalidNode, p)
	}
	if _, ok := n.peers[p.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateNode, p.ID)
	}
	conn := newNodeConnection(p, n.transport)
	n.peers[p.ID] = conn
	n.peerOrder = append(n.peerOrder, p.ID)
	conn.Connect()
	return nil
}

func (n *Node) handleRaftMessage(source uint64, msg raftpb.Message, done *Completion) {
	if msg.From != source || msg.To != n.cfg.ID {
		done.resolve(Result{Err: fmt.Errorf("%w: tagged %d, from %d to %d", ErrUnknownPeer, source, msg.From, msg.To)})
		return
	}
	if err := n.rn.Step(msg); err != nil {
		Logger.Debugf("node %d: step of %s from %d failed: %v", n.cfg.ID, msg.Type, source, err)
		done.resolve(Result{Err: err})
		return
	}
	n.processReady()
	done.resolve(Result{Term: n.rn.BasicStatus().Term, Index: n.lastIndex()})
}

func (n *Node) handleCommand(r *CommandRequest) {
	cmd := internal.Command{Args: r.Args}
	if err := n.rn.Propose(cmd.Serialize()); err != nil {
		if errors.Is(err, raft.ErrProposalDropped) {
			notLeaderTotal.Inc()
			r.done.resolve(Result{Err: &NotLeaderError{Leader: n.rn.BasicStatus().Lead}})
			return
		}
		r.done.resolve(Result{Err: err})
		return
	}

	// the proposal is the last entry of the next ready
	rd := n.rn.Ready()
	if len(rd.Entries) == 0 {
		Logger.Errorf("node %d: proposal of %s produced no entry", n.cfg.ID, cmd.String())
		n.handleReady(rd)
		r.done.resolve(Result{Err: errors.New("proposal was not appended")})
		return
	}
	last := rd.Entries[len(rd.Entries)-1]
	n.tracker.Track(last.Index, last.Term, r)
	n.handleReady(rd)
	n.processReady()
}

// --------------------------------------------------------------------------
// Ready handling
// --------------------------------------------------------------------------

func (n *Node) processReady() {
	for n.rn.HasReady() {
		n.handleReady(n.rn.Ready())
	}
}

func (n *Node) handleReady(rd raft.Ready) {
	if !raft.IsEmptySnap(rd.Snapshot) {
		if err := n.storage.ApplySnapshot(rd.Snapshot); err != nil {
			Logger.Panicf("node %d: failed to apply snapshot: %v", n.cfg.ID, err)
		}
	}
	if len(rd.Entries) > 0 {
		n.tracker.Truncate(rd.Entries)
		if err := n.storage.Append(rd.Entries); err != nil {
			Logger.Panicf("node %d: failed to append entries: %v", n.cfg.ID, err)
		}
	}
	if !raft.IsEmptyHardState(rd.HardState) {
		if err := n.storage.SetHardState(rd.HardState); err != nil {
			Logger.Panicf("node %d: failed to store hard state: %v", n.cfg.ID, err)
		}
		gaugeTerm.Store(rd.HardState.Term)
		gaugeCommitIndex.Store(rd.HardState.Commit)
	}
	if rd.SoftState != nil {
		n.updateSoftState(*rd.SoftState)
	}

	for _, m := range rd.Messages {
		n.send(m)
	}
	for _, e := range rd.CommittedEntries {
		n.apply(e)
	}
	n.rn.Advance(rd)
}

func (n *Node) updateSoftState(ss raft.SoftState) {
	if ss.Lead != n.leader {
		if ss.Lead == raft.None {
			Logger.Infof("node %d: lost leader %d", n.cfg.ID, n.leader)
		} else {
			Logger.Infof("node %d: leader is now %d", n.cfg.ID, ss.Lead)
		}
	}
	n.leader = ss.Lead
	n.role = ss.RaftState
	gaugeLeader.Store(ss.RaftState == raft.StateLeader)
}

func (n *Node) send(m raftpb.Message) {
	if m.To == n.cfg.ID {
		return
	}
	conn, ok := n.peers[m.To]
	if !ok {
		peerMessagesDropped.Inc()
		Logger.Debugf("node %d: no connection to node %d, dropped %s", n.cfg.ID, m.To, m.Type)
		return
	}
	conn.Send(m)
}

func (n *Node) apply(e raftpb.Entry) {
	switch e.Type {
	case raftpb.EntryNormal:
		n.tracker.Commit(e)
	case raftpb.EntryConfChange:
		var cc raftpb.ConfChange
		if err := cc.Unmarshal(e.Data); err != nil {
			Logger.Panicf("node %d: corrupt conf change at %d: %v", n.cfg.ID, e.Index, err)
		}
		n.rn.ApplyConfChange(cc)
	case raftpb.EntryConfChangeV2:
		var cc raftpb.ConfChangeV2
		if err := cc.Unmarshal(e.Data); err != nil {
			Logger.Panicf("node %d: corrupt conf change at %d: %v", n.cfg.ID, e.Index, err)
		}
		n.rn.ApplyConfChange(cc)
	}
	n.applied = e.Index
}

func (n *Node) lastIndex() uint64 {
	idx, err := n.storage.LastIndex()
	if err != nil {
		Logger.Panicf("node %d: failed to read last index: %v", n.cfg.ID, err)
	}
	return idx
}
