// Package transport adapts byte streams to arm.Transport.
package transport

import (
	"bytes"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/w1xm/scara_interface/arm"
)

// Stream buffers everything read from a connection so that callers can poll
// for available bytes without blocking.
type Stream struct {
	rwc io.ReadWriteCloser
	// idleEOF is set for connections that report io.EOF when a read times out.
	idleEOF bool

	mu     sync.Mutex
	buf    bytes.Buffer
	err    error
	closed chan struct{}
	once   sync.Once
	g      errgroup.Group
}

var _ arm.Transport = (*Stream)(nil)

func New(rwc io.ReadWriteCloser) *Stream {
	return newStream(rwc, false)
}

func newStream(rwc io.ReadWriteCloser, idleEOF bool) *Stream {
	s := &Stream{
		rwc:     rwc,
		idleEOF: idleEOF,
		closed:  make(chan struct{}),
	}
	s.g.Go(s.pump)
	return s
}

func (s *Stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Stream) pump() error {
	b := make([]byte, 256)
	for {
		n, err := s.rwc.Read(b)
		s.mu.Lock()
		s.buf.Write(b[:n])
		if err == io.EOF && s.idleEOF && !s.isClosed() {
			s.mu.Unlock()
			continue
		}
		if err != nil {
			s.err = err
			s.mu.Unlock()
			return err
		}
		s.mu.Unlock()
	}
}

func (s *Stream) Write(p []byte) (int, error) {
	return s.rwc.Write(p)
}

func (s *Stream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// ReadAvailable returns the buffered bytes. Once the buffer is empty it
// returns the error that ended the connection, if any.
func (s *Stream) ReadAvailable() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		return nil, s.err
	}
	out := append([]byte(nil), s.buf.Bytes()...)
	s.buf.Reset()
	return out, nil
}

// Err returns the error that ended the connection, or nil while it is open.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.rwc.Close()
		// The pump exits with a read error once rwc is closed.
		s.g.Wait()
	})
	return err
}
