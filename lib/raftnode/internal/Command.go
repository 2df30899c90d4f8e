package internal

import (
	"encoding/binary"
	"fmt"
)

// Command is the payload of a single raft log entry: the argument vector of a client
// command (e.g. SET k v). Arguments are binary safe and may be empty.
type Command struct {
	Args [][]byte
}

// NewCommand creates a command from string arguments
func NewCommand(args ...string) Command {
	c := Command{Args: make([][]byte, len(args))}
	for i, a := range args {
		c.Args[i] = []byte(a)
	}
	return c
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := 4 // argc
	for _, arg := range command.Args {
		size += 4 + len(arg) // length prefix + data
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 4 bytes for the argument count (big endian),
// then for every argument:
// 4 bytes for the argument length (big endian),
// N bytes for the argument data
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	binary.BigEndian.PutUint32(result[0:4], uint32(len(command.Args)))
	pos := 4

	for _, arg := range command.Args {
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(arg)))
		pos += 4
		copy(result[pos:pos+len(arg)], arg)
		pos += len(arg)
	}

	return result
}

// Deserialize extracts the argument vector from a byte array.
// Truncated input, impossible argument counts and trailing bytes are rejected.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("data too short for command header")
	}

	argc := binary.BigEndian.Uint32(data[0:4])
	pos := 4

	// every argument needs at least its length prefix
	if uint64(argc)*4 > uint64(len(data)-pos) {
		return fmt.Errorf("argument count %d exceeds payload size %d", argc, len(data))
	}

	args := make([][]byte, argc)
	for i := range args {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for length of argument %d", i)
		}
		// compared unsigned, a length above MaxInt32 must not wrap on 32 bit platforms
		argLen := binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4

		if uint64(argLen) > uint64(len(data)-pos) {
			return fmt.Errorf("data too short for argument %d of length %d", i, argLen)
		}
		end := pos + int(argLen)
		args[i] = make([]byte, argLen)
		copy(args[i], data[pos:end])
		pos = end
	}

	if pos != len(data) {
		return fmt.Errorf("%d trailing bytes after command", len(data)-pos)
	}

	command.Args = args
	return nil
}

// String returns a printable form of the command used in logs
func (command *Command) String() string {
	if len(command.Args) == 0 {
		return "<empty>"
	}
	return fmt.Sprintf("%q (%d args)", command.Args[0], len(command.Args))
}
