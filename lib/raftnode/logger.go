package raftnode

import (
	"fmt"

	"github.com/lni/dragonboat/v4/logger"
	"go.etcd.io/raft/v3"
)

var (
	// Logger is used by the execution loop and the commit tracker
	Logger = logger.GetLogger("raftnode")
	// PeerLogger is used by the node connections
	PeerLogger = logger.GetLogger("peer")
)

// --------------------------------------------------------------------------
// raft.Logger adapter
// --------------------------------------------------------------------------

// raftLogger routes the output of the consensus library through the "raft" logger,
// so its level is set by the same --log-level flag as the rest of the node.
type raftLogger struct {
	l logger.ILogger
}

var _ raft.Logger = (*raftLogger)(nil)

func newRaftLogger() *raftLogger {
	return &raftLogger{l: logger.GetLogger("raft")}
}

func (r *raftLogger) Debug(v ...interface{})                   { r.l.Debugf("%s", fmt.Sprint(v...)) }
func (r *raftLogger) Debugf(format string, v ...interface{})   { r.l.Debugf(format, v...) }
func (r *raftLogger) Info(v ...interface{})                    { r.l.Infof("%s", fmt.Sprint(v...)) }
func (r *raftLogger) Infof(format string, v ...interface{})    { r.l.Infof(format, v...) }
func (r *raftLogger) Warning(v ...interface{})                 { r.l.Warningf("%s", fmt.Sprint(v...)) }
func (r *raftLogger) Warningf(format string, v ...interface{}) { r.l.Warningf(format, v...) }
func (r *raftLogger) Error(v ...interface{})                   { r.l.Errorf("%s", fmt.Sprint(v...)) }
func (r *raftLogger) Errorf(format string, v ...interface{})   { r.l.Errorf(format, v...) }

func (r *raftLogger) Fatal(v ...interface{}) { r.Panic(v...) }

func (r *raftLogger) Fatalf(format string, v ...interface{}) { r.Panicf(format, v...) }

// Panic always panics, independent of the configured level
func (r *raftLogger) Panic(v ...interface{}) {
	msg := fmt.Sprint(v...)
	r.l.Errorf("%s", msg)
	panic(msg)
}

func (r *raftLogger) Panicf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	r.l.Errorf("%s", msg)
	panic(msg)
}
