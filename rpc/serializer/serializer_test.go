package serializer

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/ValentinKolb/rKV/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Set request
		{
			MsgType: common.MsgTKVSet,
			Key:     "test-key",
			Value:   []byte("test-value"),
		},

		// Get response
		{
			MsgType: common.MsgTKVGet,
			Value:   []byte("test-value"),
			Ok:      true,
		},

		// Command request
		{
			MsgType: common.MsgTCommand,
			Args:    [][]byte{[]byte("INCRBY"), []byte("counter"), []byte("-5")},
		},

		// Raft request and response
		{
			MsgType: common.MsgTRaftAppendEntries,
			Value:   []byte{0x08, 0x03, 0x10, 0x02},
		},
		{
			MsgType: common.MsgTRaftRequestVote,
			Term:    7,
			Index:   42,
		},

		// Add node request
		{
			MsgType: common.MsgTNodeAdd,
			NodeID:  3,
			Addr:    "10.0.0.3:6379",
		},

		// Error responses
		{
			MsgType: common.MsgTError,
			Err:     "test error message",
		},
		{
			MsgType: common.MsgTKVSet,
			NodeID:  2,
			Code:    4,
			Err:     "not the leader, leader is node 2",
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				var result common.Message
				if err := serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// MsgTUnknown is skipped, the JSON serializer rejects it
			for msgType := common.MsgTSuccess; msgType <= common.MsgTRaftRequestVote; msgType++ {
				msg := common.Message{MsgType: msgType}

				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType, err)
					continue
				}

				var result common.Message
				if err := serializer.Deserialize(data, &result); err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType, err)
					continue
				}

				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s", msgType, result.MsgType)
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests edge cases only the binary format preserves
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Empty value slice but not nil",
			msg:  common.Message{MsgType: common.MsgTKVSet, Key: "test", Value: []byte{}},
		},
		{
			name: "Ok without value",
			msg:  common.Message{MsgType: common.MsgTKVGet, Ok: true},
		},
		{
			name: "Empty argument vector",
			msg:  common.Message{MsgType: common.MsgTCommand, Args: [][]byte{}},
		},
		{
			name: "Empty and binary arguments",
			msg: common.Message{
				MsgType: common.MsgTCommand,
				Args:    [][]byte{[]byte("SET"), {}, {0x00, 0xff, '\r', '\n'}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if tc.msg.MsgType != result.MsgType || tc.msg.Key != result.Key || tc.msg.Ok != result.Ok {
				t.Errorf("header mismatch: expected %+v, got %+v", tc.msg, result)
			}

			// nil and empty slices must survive the round trip
			if (tc.msg.Value == nil) != (result.Value == nil) || !bytes.Equal(tc.msg.Value, result.Value) {
				t.Errorf("Value mismatch: expected %#v, got %#v", tc.msg.Value, result.Value)
			}
			if (tc.msg.Args == nil) != (result.Args == nil) || len(tc.msg.Args) != len(result.Args) {
				t.Fatalf("Args mismatch: expected %#v, got %#v", tc.msg.Args, result.Args)
			}
			for i := range tc.msg.Args {
				if result.Args[i] == nil || !bytes.Equal(tc.msg.Args[i], result.Args[i]) {
					t.Errorf("Args[%d] mismatch: expected %#v, got %#v", i, tc.msg.Args[i], result.Args[i])
				}
			}
		})
	}
}

// TestBinaryDeserializeResetsMessage checks that no field of a reused message survives
func TestBinaryDeserializeResetsMessage(t *testing.T) {
	serializer := NewBinarySerializer()
	data, _ := serializer.Serialize(common.Message{MsgType: common.MsgTSuccess})

	msg := common.Message{Key: "old", Value: []byte("old"), Term: 3, Err: "old"}
	if err := serializer.Deserialize(data, &msg); err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if !reflect.DeepEqual(msg, common.Message{MsgType: common.MsgTSuccess}) {
		t.Errorf("Deserialize() left stale fields: %+v", msg)
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0}, // type and half the flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0},
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // claims 5 bytes, has 3
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 2, 0, 0, 0, 10},
			expectError: true,
		},
		{
			name:        "Argument count larger than the data",
			data:        []byte{5, 0, 4, 0xff, 0xff, 0xff, 0xff},
			expectError: true,
		},
		{
			name:        "Truncated term",
			data:        []byte{10, 0, 32, 0, 0, 0, 1},
			expectError: true,
		},
		{
			name:        "Trailing bytes",
			data:        []byte{1, 0, 0, 42},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
