package lstore

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("store")

// Engine is an in-memory command engine. It is the state machine committed raft
// entries are applied to and implements store.IStore for local use.
type Engine struct {
	data    *xsync.MapOf[string, []byte]
	applied atomic.Uint64
}

// NewLocalStore creates an empty engine
func NewLocalStore() *Engine {
	return &Engine{
		data: xsync.NewMapOf[string, []byte](),
	}
}

// Apply executes a committed command. It implements raftnode.IStateMachine.
func (e *Engine) Apply(index uint64, args [][]byte) ([]byte, error) {
	if prev := e.applied.Load(); index <= prev {
		log.Warningf("applying index %d after %d", index, prev)
	}
	e.applied.Store(index)
	return e.exec(args)
}

// AppliedIndex returns the index of the last applied raft entry
func (e *Engine) AppliedIndex() uint64 {
	return e.applied.Load()
}

// Size returns the number of keys
func (e *Engine) Size() int {
	return e.data.Size()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (e *Engine) Set(key string, value []byte) error {
	e.data.Store(key, bytes.Clone(nonNil(value)))
	return nil
}

func (e *Engine) Delete(key string) error {
	e.data.Delete(key)
	return nil
}

func (e *Engine) Get(key string) ([]byte, bool, error) {
	val, ok := e.data.Load(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(val), true, nil
}

func (e *Engine) Has(key string) (bool, error) {
	_, ok := e.data.Load(key)
	return ok, nil
}

func (e *Engine) Exec(args ...[]byte) ([]byte, error) {
	return e.exec(args)
}

// --------------------------------------------------------------------------
// Command Table
// --------------------------------------------------------------------------

type command struct {
	// arity counts the command name. A negative arity is a minimum.
	arity int
	fn    func(e *Engine, args [][]byte) ([]byte, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"PING":   {arity: -1, fn: (*Engine).ping},
		"SET":    {arity: 3, fn: (*Engine).set},
		"SETNX":  {arity: 3, fn: (*Engine).setnx},
		"MSET":   {arity: -3, fn: (*Engine).mset},
		"GET":    {arity: 2, fn: (*Engine).get},
		"DEL":    {arity: -2, fn: (*Engine).del},
		"EXISTS": {arity: -2, fn: (*Engine).exists},
		"INCR":   {arity: 2, fn: func(e *Engine, args [][]byte) ([]byte, error) { return e.incrBy(args[1], 1) }},
		"DECR":   {arity: 2, fn: func(e *Engine, args [][]byte) ([]byte, error) { return e.incrBy(args[1], -1) }},
		"INCRBY": {arity: 3, fn: (*Engine).incrby},
		"APPEND": {arity: 3, fn: (*Engine).appendCmd},
		"STRLEN": {arity: 2, fn: (*Engine).strlen},
	}
}

// Commands returns the names of all supported commands
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	return names
}

func (e *Engine) exec(args [][]byte) ([]byte, error) {
	if len(args) == 0 {
		return nil, store.NewError(store.RetCInvalidOperation, "empty command")
	}
	name := strings.ToUpper(string(args[0]))
	cmd, ok := commands[name]
	if !ok {
		return nil, store.NewError(store.RetCUnsupportedOperation, fmt.Sprintf("unknown command '%s'", args[0]))
	}
	if (cmd.arity > 0 && len(args) != cmd.arity) || (cmd.arity < 0 && len(args) < -cmd.arity) {
		return nil, wrongArity(name)
	}
	return cmd.fn(e, args)
}

func (e *Engine) ping(args [][]byte) ([]byte, error) {
	switch len(args) {
	case 1:
		return []byte("PONG"), nil
	case 2:
		return bytes.Clone(args[1]), nil
	default:
		return nil, wrongArity("PING")
	}
}

func (e *Engine) set(args [][]byte) ([]byte, error) {
	_ = e.Set(string(args[1]), args[2])
	return okReply(), nil
}

func (e *Engine) setnx(args [][]byte) ([]byte, error) {
	_, loaded := e.data.LoadOrStore(string(args[1]), bytes.Clone(nonNil(args[2])))
	if loaded {
		return integer(0), nil
	}
	return integer(1), nil
}

func (e *Engine) mset(args [][]byte) ([]byte, error) {
	if len(args)%2 != 1 {
		return nil, wrongArity("MSET")
	}
	for i := 1; i < len(args); i += 2 {
		_ = e.Set(string(args[i]), args[i+1])
	}
	return okReply(), nil
}

func (e *Engine) get(args [][]byte) ([]byte, error) {
	val, _, _ := e.Get(string(args[1]))
	return val, nil
}

func (e *Engine) del(args [][]byte) ([]byte, error) {
	var n int64
	for _, key := range args[1:] {
		if _, loaded := e.data.LoadAndDelete(string(key)); loaded {
			n++
		}
	}
	return integer(n), nil
}

func (e *Engine) exists(args [][]byte) ([]byte, error) {
	var n int64
	for _, key := range args[1:] {
		if _, loaded := e.data.Load(string(key)); loaded {
			n++
		}
	}
	return integer(n), nil
}

func (e *Engine) incrby(args [][]byte) ([]byte, error) {
	delta, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return nil, notAnInteger()
	}
	return e.incrBy(args[1], delta)
}

func (e *Engine) incrBy(key []byte, delta int64) ([]byte, error) {
	var result int64
	var cerr error
	e.data.Compute(string(key), func(old []byte, loaded bool) ([]byte, bool) {
		var current int64
		if loaded {
			v, err := strconv.ParseInt(string(old), 10, 64)
			if err != nil {
				cerr = notAnInteger()
				return old, false
			}
			current = v
		}
		if (delta > 0 && current > math.MaxInt64-delta) || (delta < 0 && current < math.MinInt64-delta) {
			cerr = store.NewError(store.RetCInvalidOperation, "increment or decrement would overflow")
			return old, !loaded
		}
		result = current + delta
		return integer(result), false
	})
	if cerr != nil {
		return nil, cerr
	}
	return integer(result), nil
}

func (e *Engine) appendCmd(args [][]byte) ([]byte, error) {
	var length int
	e.data.Compute(string(args[1]), func(old []byte, _ bool) ([]byte, bool) {
		v := make([]byte, len(old)+len(args[2]))
		copy(v, old)
		copy(v[len(old):], args[2])
		length = len(v)
		return v, false
	})
	return integer(int64(length)), nil
}

func (e *Engine) strlen(args [][]byte) ([]byte, error) {
	val, _ := e.data.Load(string(args[1]))
	return integer(int64(len(val))), nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func okReply() []byte {
	return []byte("OK")
}

func integer(n int64) []byte {
	return strconv.AppendInt(nil, n, 10)
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func wrongArity(name string) error {
	return store.NewError(store.RetCInvalidOperation, fmt.Sprintf("wrong number of arguments for '%s' command", strings.ToLower(name)))
}

func notAnInteger() error {
	return store.NewError(store.RetCInvalidOperation, "value is not an integer or out of range")
}
