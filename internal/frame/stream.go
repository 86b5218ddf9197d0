package frame

import (
	"bufio"
	"io"
	"sync"
)

// Stream wraps a connection in a buffered reader/writer pair so repeated
// frame reads don't each pay a syscall, mirroring the buffered-reader
// shape of the teacher's delimiter reader.
type Stream struct {
	mu sync.Mutex
	r  *bufio.Reader
	w  io.Writer
	c  io.Closer
}

// NewStream wraps rwc for framed reads and writes.
func NewStream(rwc interface {
	io.Reader
	io.Writer
	io.Closer
}) *Stream {
	return &Stream{
		r: bufio.NewReader(rwc),
		w: rwc,
		c: rwc,
	}
}

// ReadFrame decodes the next frame from the stream.
func (s *Stream) ReadFrame() (Bag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Read(s.r)
}

// WriteFrame encodes and writes b to the stream.
func (s *Stream) WriteFrame(b Bag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Write(s.w, b)
}

// Close closes the underlying connection.
func (s *Stream) Close() error {
	return s.c.Close()
}
