package clamd

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

const cmdInstream = "zINSTREAM\x00"

// StreamScanner scans over TCP using the INSTREAM command, so the engine never
// needs access to the caller's filesystem.
type StreamScanner struct {
	cfg Config
	log logrus.FieldLogger
}

// NewStreamScanner returns a scanner for the TCP listener in cfg.
func NewStreamScanner(cfg Config, log logrus.FieldLogger) *StreamScanner {
	if log == nil {
		log = discardLogger()
	}
	return &StreamScanner{cfg: cfg.withDefaults(), log: log}
}

// Transport returns TransportTCP.
func (s *StreamScanner) Transport() Transport {
	return TransportTCP
}

// Scan streams the target to clamd and parses the reply.
func (s *StreamScanner) Scan(ctx context.Context, target Target) (ScanResult, error) {
	r, closeFn, err := openTarget(target)
	if err != nil {
		return ScanResult{}, err
	}
	defer closeFn()

	log := s.log.WithFields(logrus.Fields{"transport": TransportTCP, "target": target.String()})
	return instream(ctx, "tcp", s.cfg.TCP.Address(), r, s.cfg, log)
}

// instream runs one INSTREAM exchange: preamble, framed chunks, half-close, reply.
func instream(ctx context.Context, network, address string, r io.Reader, cfg Config, log logrus.FieldLogger) (ScanResult, error) {
	sess, err := dial(ctx, network, address, cfg.Timeout, log)
	if err != nil {
		return ScanResult{}, err
	}
	defer sess.close()

	w := bufio.NewWriter(sess)
	if _, err := w.WriteString(cmdInstream); err != nil {
		return ScanResult{}, classify("failed to send INSTREAM", err)
	}
	n, err := NewFramer(r, cfg.ChunkSize).WriteTo(w)
	if err != nil {
		return ScanResult{}, classify("failed to stream data", err)
	}
	if err := w.Flush(); err != nil {
		return ScanResult{}, classify("failed to stream data", err)
	}
	log.WithField("bytes", n).Debug("stream sent")

	if err := sess.closeWrite(); err != nil {
		return ScanResult{}, err
	}

	reply, err := sess.receive()
	if err != nil {
		return ScanResult{}, err
	}
	return interpret(cfg.Name, reply)
}

// openTarget returns the byte source for target and a func releasing it.
func openTarget(target Target) (io.Reader, func(), error) {
	if target.IsStream() {
		return target.Reader, func() {}, nil
	}
	if target.Path == "" {
		return nil, nil, NewConfigurationError("file is required", nil)
	}
	f, err := os.Open(target.Path)
	if err != nil {
		return nil, nil, NewConfigurationError("failed to open file: "+target.Path, err)
	}
	return f, func() { _ = f.Close() }, nil
}
