package clamd

import (
	"context"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// SocketScanner scans over the clamd Unix domain socket. Path targets are scanned
// in place by the daemon with SCAN, so the daemon must be able to read them.
// Stream targets fall back to INSTREAM over the same socket.
type SocketScanner struct {
	cfg Config
	log logrus.FieldLogger
}

// NewSocketScanner returns a scanner for the socket in cfg.
func NewSocketScanner(cfg Config, log logrus.FieldLogger) *SocketScanner {
	if log == nil {
		log = discardLogger()
	}
	return &SocketScanner{cfg: cfg.withDefaults(), log: log}
}

// Transport returns TransportSocket.
func (s *SocketScanner) Transport() Transport {
	return TransportSocket
}

// Scan asks clamd to scan the target and parses the reply.
func (s *SocketScanner) Scan(ctx context.Context, target Target) (ScanResult, error) {
	log := s.log.WithFields(logrus.Fields{"transport": TransportSocket, "target": target.String()})

	if target.IsStream() {
		return instream(ctx, "unix", s.cfg.Socket, target.Reader, s.cfg, log)
	}
	if target.Path == "" {
		return ScanResult{}, NewConfigurationError("file is required", nil)
	}

	path := target.Path
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return ScanResult{}, NewConfigurationError("failed to resolve path: "+path, err)
		}
		path = abs
	}

	sess, err := dial(ctx, "unix", s.cfg.Socket, s.cfg.Timeout, log)
	if err != nil {
		return ScanResult{}, err
	}
	defer sess.close()

	if err := sess.send([]byte("SCAN " + path)); err != nil {
		return ScanResult{}, err
	}
	if err := sess.closeWrite(); err != nil {
		return ScanResult{}, err
	}

	reply, err := sess.receive()
	if err != nil {
		return ScanResult{}, err
	}
	return interpret(s.cfg.Name, reply)
}
