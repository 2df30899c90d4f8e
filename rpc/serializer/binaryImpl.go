package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/rKV/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: 1 byte MsgType, 2 bytes flags (big endian), then every present field in flag
// order. Strings and byte slices are prefixed with a uint32 length, Args with a uint32
// count followed by length prefixed arguments. Ok is carried by its flag alone.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey    uint16 = 1 << 0
	hasValue  uint16 = 1 << 1
	hasArgs   uint16 = 1 << 2
	hasNodeID uint16 = 1 << 3
	hasAddr   uint16 = 1 << 4
	hasTerm   uint16 = 1 << 5
	hasIndex  uint16 = 1 << 6
	hasOk     uint16 = 1 << 7
	hasCode   uint16 = 1 << 8
	hasErr    uint16 = 1 << 9
)

const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	w := writer{buf: make([]byte, b.sizeBytes(msg)), pos: headerSize}
	w.buf[0] = byte(msg.MsgType)

	var flags uint16
	if msg.Key != "" {
		flags |= hasKey
		w.bytes([]byte(msg.Key))
	}
	if msg.Value != nil {
		flags |= hasValue
		w.bytes(msg.Value)
	}
	if msg.Args != nil {
		flags |= hasArgs
		w.uint32(uint32(len(msg.Args)))
		for _, arg := range msg.Args {
			w.bytes(arg)
		}
	}
	if msg.NodeID != 0 {
		flags |= hasNodeID
		w.uint64(msg.NodeID)
	}
	if msg.Addr != "" {
		flags |= hasAddr
		w.bytes([]byte(msg.Addr))
	}
	if msg.Term != 0 {
		flags |= hasTerm
		w.uint64(msg.Term)
	}
	if msg.Index != 0 {
		flags |= hasIndex
		w.uint64(msg.Index)
	}
	if msg.Ok {
		flags |= hasOk
	}
	if msg.Code != 0 {
		flags |= hasCode
		w.uint64(msg.Code)
	}
	if msg.Err != "" {
		flags |= hasErr
		w.bytes([]byte(msg.Err))
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(w.buf[1:3], flags)
	return w.buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := binary.BigEndian.Uint16(data[1:3])
	r := reader{data: data, pos: headerSize}

	if flags&hasKey != 0 {
		msg.Key = string(r.bytes("key"))
	}
	if flags&hasValue != 0 {
		msg.Value = r.bytes("value")
	}
	if flags&hasArgs != 0 {
		argc := r.uint32("argument count")
		// every argument needs at least its length prefix
		if r.err == nil && uint64(argc)*4 > uint64(len(data)-r.pos) {
			r.err = fmt.Errorf("data too short for %d arguments", argc)
		}
		if r.err == nil {
			msg.Args = make([][]byte, argc)
			for i := range msg.Args {
				msg.Args[i] = r.bytes("argument")
			}
		}
	}
	if flags&hasNodeID != 0 {
		msg.NodeID = r.uint64("node id")
	}
	if flags&hasAddr != 0 {
		msg.Addr = string(r.bytes("addr"))
	}
	if flags&hasTerm != 0 {
		msg.Term = r.uint64("term")
	}
	if flags&hasIndex != 0 {
		msg.Index = r.uint64("index")
	}
	msg.Ok = flags&hasOk != 0
	if flags&hasCode != 0 {
		msg.Code = r.uint64("code")
	}
	if flags&hasErr != 0 {
		msg.Err = string(r.bytes("error"))
	}

	if r.err != nil {
		return r.err
	}
	if r.pos != len(data) {
		return fmt.Errorf("%d trailing bytes after message", len(data)-r.pos)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Args != nil {
		size += 4
		for _, arg := range msg.Args {
			size += 4 + len(arg)
		}
	}
	if msg.NodeID != 0 {
		size += 8
	}
	if msg.Addr != "" {
		size += 4 + len(msg.Addr)
	}
	if msg.Term != 0 {
		size += 8
	}
	if msg.Index != 0 {
		size += 8
	}
	if msg.Code != 0 {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	return size
}

// writer fills a buffer sized by sizeBytes
type writer struct {
	buf []byte
	pos int
}

func (w *writer) uint32(v uint32) {
	binary.BigEndian.PutUint32(w.buf[w.pos:], v)
	w.pos += 4
}

func (w *writer) uint64(v uint64) {
	binary.BigEndian.PutUint64(w.buf[w.pos:], v)
	w.pos += 8
}

func (w *writer) bytes(b []byte) {
	w.uint32(uint32(len(b)))
	w.pos += copy(w.buf[w.pos:], b)
}

// reader consumes fields and keeps the first error, later reads are no-ops
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) need(n int, field string) bool {
	if r.err != nil {
		return false
	}
	if n > len(r.data)-r.pos {
		r.err = fmt.Errorf("data too short for %s", field)
		return false
	}
	return true
}

func (r *reader) uint32(field string) uint32 {
	if !r.need(4, field) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) uint64(field string) uint64 {
	if !r.need(8, field) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

// bytes reads a length prefixed field. The result is a copy and never nil.
func (r *reader) bytes(field string) []byte {
	n := r.uint32(field + " length")
	if !r.need(int(n), field+" data") {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:])
	r.pos += int(n)
	return b
}
