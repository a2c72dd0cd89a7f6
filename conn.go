package clamd

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// maxReplySize caps how much of a reply is buffered.
const maxReplySize = 64 * 1024

// session is one connection to clamd, owned by a single call. The timeout
// applies to each read and write, not to the exchange as a whole.
type session struct {
	conn    net.Conn
	timeout time.Duration
	log     logrus.FieldLogger
	stop    func() bool

	mu       sync.Mutex
	canceled bool
}

// dial opens a connection bounded by timeout and ties its lifetime to ctx.
func dial(ctx context.Context, network, address string, timeout time.Duration, log logrus.FieldLogger) (*session, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, classify("failed to connect to "+address, err)
	}

	s := &session{conn: conn, timeout: timeout, log: log}
	// Unblock pending I/O when the caller gives up.
	s.stop = context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.canceled = true
		_ = conn.SetDeadline(time.Now())
	})
	return s, nil
}

// extend pushes the read or write deadline timeout past now. Once ctx is done
// the deadline stays in the past.
func (s *session) extend(set func(time.Time) error) {
	if s.timeout <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canceled {
		_ = set(time.Now().Add(s.timeout))
	}
}

// Write implements io.Writer with a fresh write deadline per call, so a slow
// but steady upload never times out.
func (s *session) Write(p []byte) (int, error) {
	s.extend(s.conn.SetWriteDeadline)
	return s.conn.Write(p)
}

// send writes all of p.
func (s *session) send(p []byte) error {
	if _, err := s.Write(p); err != nil {
		return classify("write failed", err)
	}
	return nil
}

// closeWrite half-closes the connection when the transport supports it.
func (s *session) closeWrite() error {
	type writeCloser interface{ CloseWrite() error }
	if wc, ok := s.conn.(writeCloser); ok {
		if err := wc.CloseWrite(); err != nil {
			return classify("half-close failed", err)
		}
	}
	return nil
}

// receive reads one reply: up to and including the first NUL or newline, or until the
// peer closes. A deadline that fires after some bytes arrived still yields those bytes.
func (s *session) receive() (string, error) {
	buf := make([]byte, 4096)
	out := make([]byte, 0, 256)
	for len(out) < maxReplySize {
		s.extend(s.conn.SetReadDeadline)
		n, err := s.conn.Read(buf)
		for i := 0; i < n; i++ {
			out = append(out, buf[i])
			if buf[i] == 0 || buf[i] == '\n' {
				return string(out), nil
			}
		}
		if err == nil {
			continue
		}
		if len(out) > 0 && (err == io.EOF || isTimeout(err)) {
			return string(out), nil
		}
		if err == io.EOF {
			return "", NewTransportError("connection closed before reply", err)
		}
		return "", classify("read failed", err)
	}
	return string(out), nil
}

// close releases the connection. Failures are logged, never returned: the outcome
// of the call has already been decided.
func (s *session) close() {
	if s.stop != nil {
		s.stop()
	}
	if err := s.conn.Close(); err != nil {
		s.log.WithError(err).Warn("transmission errors encountered while closing connection")
	}
}

// classify maps net errors onto the error taxonomy.
func classify(msg string, err error) error {
	if isTimeout(err) {
		return NewTimeoutError(msg+": timed out", err)
	}
	return NewTransportError(msg, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
