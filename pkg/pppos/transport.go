package pppos

import "io"

// Transport is the serial byte stream, already opened and configured.
// Available and ReadByte must not block.
type Transport interface {
	io.ByteReader
	io.Writer
	// Available returns the number of bytes which can be read without blocking.
	Available() int
}
