package serial

import (
	"errors"
	"io"
	"sync"

	"github.com/golang/glog"
	"go.uber.org/atomic"
)

// DefaultBufferSize is the default RX buffer size of Stream.
const DefaultBufferSize = 2048

// ErrNoData indicates no byte is buffered for ReadByte.
var ErrNoData = errors.New("no data available")

// Stream buffers bytes received from a blocking connection so they can
// be consumed without blocking.
type Stream struct {
	conn io.ReadWriteCloser

	lock sync.Mutex
	buf  []byte
	head int
	size int
	err  error

	writeLock sync.Mutex
	dropped   atomic.Uint64
	received  atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
}

// NewStream wraps conn and starts reading it in the background.
// bufSize <= 0 uses DefaultBufferSize.
func NewStream(conn io.ReadWriteCloser, bufSize int) *Stream {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	s := &Stream{
		conn: conn,
		buf:  make([]byte, bufSize),
		done: make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Available implements pppos.Transport.
func (s *Stream) Available() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.size
}

// ReadByte implements io.ByteReader. It returns ErrNoData when nothing
// is buffered.
func (s *Stream) ReadByte() (byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.size == 0 {
		return 0, ErrNoData
	}
	c := s.buf[s.head]
	s.head = (s.head + 1) % len(s.buf)
	s.size--
	return c, nil
}

// Write implements io.Writer.
func (s *Stream) Write(p []byte) (int, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	return s.conn.Write(p)
}

// Err returns the error stopped the background reader.
func (s *Stream) Err() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.err
}

// Dropped returns the number of bytes discarded because the buffer was full.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Received returns the number of bytes read from the connection.
func (s *Stream) Received() uint64 {
	return s.received.Load()
}

// Done is closed when the background reader stopped.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close implements io.Closer.
func (s *Stream) Close() (err error) {
	s.closeOnce.Do(func() {
		err = s.conn.Close()
		<-s.done
	})
	return
}

func (s *Stream) readLoop() {
	defer close(s.done)
	chunk := make([]byte, 256)
	for {
		n, err := s.conn.Read(chunk)
		if n > 0 {
			s.received.Add(uint64(n))
			if dropped := s.push(chunk[:n]); dropped > 0 {
				s.dropped.Add(uint64(dropped))
				glog.Warningf("serial: RX buffer full, dropped %d bytes", dropped)
			}
		}
		if err != nil {
			s.lock.Lock()
			s.err = err
			s.lock.Unlock()
			if err != io.EOF {
				glog.Warningf("serial: read error: %v", err)
			}
			return
		}
	}
}

func (s *Stream) push(p []byte) (dropped int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, c := range p {
		if s.size == len(s.buf) {
			dropped++
			continue
		}
		s.buf[(s.head+s.size)%len(s.buf)] = c
		s.size++
	}
	return
}
