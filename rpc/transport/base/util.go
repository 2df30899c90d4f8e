package base

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	// HeaderSize is the size of a frame header
	HeaderSize = 20
	// MaxFrameSize bounds the payload of a frame read from the wire
	MaxFrameSize = 64 << 20
)

// ErrFrameTooLarge is returned by ReadFrame for a header announcing more than MaxFrameSize bytes
var ErrFrameTooLarge = errors.New("frame too large")

// EncodeFrame returns a complete frame with the format:
// - 8 bytes: senderID (uint64, big endian), 0 for clients
// - 8 bytes: requestID (uint64, big endian)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func EncodeFrame(senderID, requestID uint64, data []byte) []byte {
	frame := make([]byte, HeaderSize+len(data))
	putHeader(frame, senderID, requestID, len(data))
	copy(frame[HeaderSize:], data)
	return frame
}

func putHeader(header []byte, senderID, requestID uint64, size int) {
	binary.BigEndian.PutUint64(header[:8], senderID)
	binary.BigEndian.PutUint64(header[8:16], requestID)
	binary.BigEndian.PutUint32(header[16:20], uint32(size))
}

// writeFrame writes header and payload with a single vectored write
func writeFrame(conn net.Conn, senderID, requestID uint64, data []byte) error {
	header := make([]byte, HeaderSize)
	putHeader(header, senderID, requestID, len(data))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// ReadFrame reads a frame using the provided buffer
// If the buffer is too small, it will allocate a new temporary buffer for the data
func ReadFrame(r io.Reader, buf []byte) (senderID, requestID uint64, data []byte, err error) {
	if len(buf) < HeaderSize {
		buf = make([]byte, HeaderSize)
	}

	if _, err := io.ReadFull(r, buf[:HeaderSize]); err != nil {
		return 0, 0, nil, err
	}

	senderID = binary.BigEndian.Uint64(buf[:8])
	requestID = binary.BigEndian.Uint64(buf[8:16])
	contentLength := binary.BigEndian.Uint32(buf[16:20])

	if contentLength == 0 {
		return senderID, requestID, []byte{}, nil
	}
	if contentLength > MaxFrameSize {
		// the stream cannot be resynchronized, the caller drops the connection
		return senderID, requestID, nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, contentLength, MaxFrameSize)
	}

	if len(buf) < int(contentLength) {
		buf = make([]byte, contentLength)
	}

	if _, err := io.ReadFull(r, buf[:contentLength]); err != nil {
		// the connection is broken, the ids are reported for logging
		return senderID, requestID, nil, err
	}

	return senderID, requestID, buf[:contentLength], nil
}
