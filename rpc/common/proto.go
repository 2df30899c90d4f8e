package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/rKV/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key   string   `json:"key,omitempty"`   // Used for: Set, Get, Has, Delete
	Value []byte   `json:"value,omitempty"` // Used for: Set (request), Get, Command and Info (response), raft messages (request)
	Args  [][]byte `json:"args,omitempty"`  // Used for: Command (request)

	// Cluster fields
	NodeID uint64 `json:"node_id,omitempty"` // Used for: AddNode (request)
	Addr   string `json:"addr,omitempty"`    // Used for: AddNode (request)
	Term   uint64 `json:"term,omitempty"`    // Used for: raft and AddNode responses
	Index  uint64 `json:"index,omitempty"`   // Used for: raft, AddNode and Command responses

	// Response only fields
	Ok   bool   `json:"ok,omitempty"`   // Used for: Get, Has, Command responses (reply is not nil)
	Code uint64 `json:"code,omitempty"` // store.RetCode of Err, 0 for plain errors
	Err  string `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message
}

// SetError stores err in the message. Store errors keep their return code.
func (m *Message) SetError(err error) {
	if err == nil {
		return
	}
	var se *store.Error
	if errors.As(err, &se) {
		m.Code = uint64(se.Code)
		m.Err = se.Msg
		return
	}
	m.Err = err.Error()
}

// Error returns the error carried by the message, nil if there is none
func (m *Message) Error() error {
	if m.Err == "" && m.Code == 0 {
		return nil
	}
	if m.Code != 0 {
		return store.NewError(store.RetCode(m.Code), m.Err)
	}
	return errors.New(m.Err)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// response creates a response of the given type with err set
func response(t MessageType, err error) *Message {
	msg := &Message{MsgType: t}
	msg.SetError(err)
	return msg
}

// NewSetRequest creates a new Set request
func NewSetRequest(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTKVSet,
		Key:     key,
		Value:   value,
	}
}

// NewSetResponse creates a new Set response
func NewSetResponse(err error) *Message {
	return response(MsgTKVSet, err)
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVDelete,
		Key:     key,
	}
}

// NewDeleteResponse creates a new Delete response
func NewDeleteResponse(err error) *Message {
	return response(MsgTKVDelete, err)
}

// NewGetRequest creates a new Get request
func NewGetRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVGet,
		Key:     key,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, ok bool, err error) *Message {
	msg := response(MsgTKVGet, err)
	msg.Ok = ok
	msg.Value = value
	return msg
}

// NewHasRequest creates a new Has request
func NewHasRequest(key string) *Message {
	return &Message{
		MsgType: MsgTKVHas,
		Key:     key,
	}
}

// NewHasResponse creates a new Has response
func NewHasResponse(ok bool, err error) *Message {
	msg := response(MsgTKVHas, err)
	msg.Ok = ok
	return msg
}

// NewCommandRequest creates a request that executes a raw argument vector
func NewCommandRequest(args [][]byte) *Message {
	return &Message{
		MsgType: MsgTCommand,
		Args:    args,
	}
}

// NewCommandResponse creates a new Command response. Ok tells a nil reply apart from an
// empty one, since serializers may not preserve the difference.
func NewCommandResponse(reply []byte, err error) *Message {
	msg := response(MsgTCommand, err)
	msg.Ok = reply != nil
	msg.Value = reply
	return msg
}

// NewAddNodeRequest creates a request that adds a node to the cluster
func NewAddNodeRequest(id uint64, addr string) *Message {
	return &Message{
		MsgType: MsgTNodeAdd,
		NodeID:  id,
		Addr:    addr,
	}
}

// NewAddNodeResponse creates a new AddNode response
func NewAddNodeResponse(term, index uint64, err error) *Message {
	msg := response(MsgTNodeAdd, err)
	msg.Term = term
	msg.Index = index
	return msg
}

// NewInfoRequest creates a new Info request
func NewInfoRequest() *Message {
	return &Message{MsgType: MsgTNodeInfo}
}

// NewInfoResponse creates a new Info response
func NewInfoResponse(report []byte, err error) *Message {
	msg := response(MsgTNodeInfo, err)
	msg.Value = report
	return msg
}

// NewRaftRequest creates a peer message of type t (MsgTRaftAppendEntries or
// MsgTRaftRequestVote) carrying a marshalled raft message
func NewRaftRequest(t MessageType, data []byte) *Message {
	return &Message{
		MsgType: t,
		Value:   data,
	}
}

// NewRaftResponse creates the reply to a peer message
func NewRaftResponse(t MessageType, term, index uint64, err error) *Message {
	msg := response(t, err)
	msg.Term = term
	msg.Index = index
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var msgTypeNames = map[MessageType]string{
	MsgTSuccess:           "success",
	MsgTError:             "error",
	MsgTKVSet:             "set",
	MsgTKVDelete:          "delete",
	MsgTKVGet:             "get",
	MsgTKVHas:             "has",
	MsgTCommand:           "command",
	MsgTNodeAdd:           "add-node",
	MsgTNodeInfo:          "info",
	MsgTRaftAppendEntries: "raft-append-entries",
	MsgTRaftRequestVote:   "raft-request-vote",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsRaft reports whether the type is a message between cluster members
func (t MessageType) IsRaft() bool {
	return t == MsgTRaftAppendEntries || t == MsgTRaftRequestVote
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	for mt, name := range msgTypeNames {
		if name == s {
			*t = mt
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IStore operations

	MsgTKVSet    // Set a key-value pair
	MsgTKVDelete // Delete a key-value pair
	MsgTKVGet    // Get a value by key
	MsgTKVHas    // Check if a key exists
	MsgTCommand  // Execute a raw command (argument vector)

	// Node administration

	MsgTNodeAdd  // Add a node to the cluster
	MsgTNodeInfo // Report the state of the node

	// Messages between cluster members

	MsgTRaftAppendEntries // Log replication and heartbeats
	MsgTRaftRequestVote   // Elections
)
