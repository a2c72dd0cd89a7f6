// Package testutil provides test helpers for the clamd-go client.
package testutil

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// Request is one command received by the fake daemon.
type Request struct {
	// Command is the command word without its z/n prefix, e.g. "INSTREAM".
	Command string
	// Arg is the text after the command word, e.g. the path of a SCAN.
	Arg string
	// Payload is the concatenated INSTREAM chunk data.
	Payload []byte
	// Chunks counts INSTREAM chunks, terminator excluded.
	Chunks int
	// Terminated is true when the zero-length INSTREAM chunk was received.
	Terminated bool
}

// Responder returns the reply for a request. An empty reply leaves the
// connection silent until the server is closed.
type Responder func(req Request) string

// Server is a fake clamd listening on TCP or a Unix domain socket.
type Server struct {
	Network string
	Address string

	ln       net.Listener
	respond  Responder
	wg       sync.WaitGroup
	mu       sync.Mutex
	requests []Request
	conns    map[net.Conn]struct{}
	silent   []net.Conn
	quit     chan struct{}
	once     sync.Once
}

// NewTCPServer starts a fake clamd on a loopback TCP port.
func NewTCPServer(t testing.TB, respond Responder) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen tcp: %v", err)
	}
	return start(t, ln, respond)
}

// NewUnixServer starts a fake clamd on a Unix domain socket.
func NewUnixServer(t testing.TB, respond Responder) *Server {
	t.Helper()
	// Keep the path short; socket paths are limited to ~100 bytes.
	dir, err := os.MkdirTemp("", "clamd")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	ln, err := net.Listen("unix", filepath.Join(dir, "clamd.sock"))
	if err != nil {
		t.Fatalf("listen unix: %v", err)
	}
	return start(t, ln, respond)
}

func start(t testing.TB, ln net.Listener, respond Responder) *Server {
	s := &Server{
		Network: ln.Addr().Network(),
		Address: ln.Addr().String(),
		ln:      ln,
		respond: respond,
		conns:   map[net.Conn]struct{}{},
		quit:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Close stops the listener and drops open connections.
func (s *Server) Close() {
	s.once.Do(func() { close(s.quit) })
	s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Dropped reports how many unanswered connections the client has closed.
// It writes to each of them, so call it only once the client has given up on
// the reply. A TCP peer may need a second call before its reset is seen.
func (s *Server) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for _, c := range s.silent {
		c.SetWriteDeadline(time.Now().Add(50 * time.Millisecond)) //nolint:errcheck
		if _, err := c.Write([]byte{0}); err != nil {
			dropped++
		}
	}
	return dropped
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			conn.Close()
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	r := bufio.NewReader(conn)
	req, err := ReadRequest(r)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	reply := s.respond(req)
	if reply == "" {
		s.mu.Lock()
		s.silent = append(s.silent, conn)
		s.mu.Unlock()
		<-s.quit
		return
	}
	conn.Write([]byte(reply)) //nolint:errcheck
}

// ReadRequest decodes one clamd command, including INSTREAM chunks.
func ReadRequest(r *bufio.Reader) (Request, error) {
	first, err := r.Peek(1)
	if err != nil {
		return Request{}, err
	}

	var line string
	switch first[0] {
	case 'z':
		line, err = r.ReadString(0)
		line = strings.TrimSuffix(line, "\x00")
	case 'n':
		line, err = r.ReadString('\n')
		line = strings.TrimSuffix(line, "\n")
	default:
		line, err = r.ReadString('\n')
		line = strings.TrimSuffix(line, "\n")
		if err == io.EOF && line != "" {
			err = nil
		}
	}
	if err != nil {
		return Request{}, err
	}
	if first[0] == 'z' || first[0] == 'n' {
		line = line[1:]
	}

	cmd, arg, _ := strings.Cut(line, " ")
	req := Request{Command: cmd, Arg: arg}
	if cmd == "INSTREAM" {
		req.Payload, req.Chunks, req.Terminated, err = ReadChunks(r)
	}
	return req, err
}

// ReadChunks decodes INSTREAM frames until the zero-length terminator.
func ReadChunks(r io.Reader) ([]byte, int, bool, error) {
	var payload []byte
	chunks := 0
	var size [4]byte
	for {
		if _, err := io.ReadFull(r, size[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return payload, chunks, false, nil
			}
			return payload, chunks, false, err
		}
		n := binary.BigEndian.Uint32(size[:])
		if n == 0 {
			return payload, chunks, true, nil
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return payload, chunks, false, err
		}
		payload = append(payload, buf...)
		chunks++
	}
}

// Reply returns a Responder answering every request with reply.
func Reply(reply string) Responder {
	return func(Request) string { return reply }
}

// Silent returns a Responder that never answers.
func Silent() Responder {
	return func(Request) string { return "" }
}

// Clamd returns a Responder that behaves like a healthy daemon: PONG for PING,
// a version string for VERSION, and a FOUND reply for any scan containing EICAR.
func Clamd() Responder {
	return func(req Request) string {
		switch req.Command {
		case "PING":
			return "PONG\n"
		case "VERSION":
			return "ClamAV 1.0.5/27186/Wed Feb 14 08:35:41 2024\x00"
		case "INSTREAM":
			if strings.Contains(string(req.Payload), "EICAR-STANDARD-ANTIVIRUS-TEST-FILE") {
				return "stream: Eicar-Test-Signature FOUND\x00"
			}
			return "stream: OK\x00"
		case "SCAN":
			data, err := os.ReadFile(req.Arg)
			if err != nil {
				return req.Arg + ": lstat() failed: No such file or directory. ERROR\n"
			}
			if strings.Contains(string(data), "EICAR-STANDARD-ANTIVIRUS-TEST-FILE") {
				return req.Arg + ": Eicar-Test-Signature FOUND\n"
			}
			return req.Arg + ": OK\n"
		}
		return "UNKNOWN COMMAND\n"
	}
}
