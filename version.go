package clamd

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

const cmdVersion = "zVERSION\x00"

// ParseVersion parses a reply such as "ClamAV 1.0.5/27186/Wed Feb 14 08:35:41 2024".
// Engines started without a signature database omit the last two fields.
func ParseVersion(reply string) (*VersionResult, error) {
	line := strings.TrimRight(reply, "\x00\r\n")
	rest, ok := strings.CutPrefix(line, "ClamAV ")
	if !ok || rest == "" {
		return nil, NewProtocolError("unexpected version reply", reply)
	}

	parts := strings.SplitN(rest, "/", 3)
	v := &VersionResult{ClamAVVersion: parts[0], Raw: reply}
	if len(parts) > 1 {
		v.SignatureVersion = parts[1]
	}
	if len(parts) > 2 {
		v.SignatureDate = parts[2]
	}
	return v, nil
}

// queryVersion sends VERSION over a socket transport.
func queryVersion(ctx context.Context, network, address string, cfg Config, log logrus.FieldLogger) (*VersionResult, error) {
	sess, err := dial(ctx, network, address, cfg.Timeout, log)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	if err := sess.send([]byte(cmdVersion)); err != nil {
		return nil, err
	}
	reply, err := sess.receive()
	if err != nil {
		return nil, err
	}
	return ParseVersion(reply)
}

// Version runs the binary with --version.
func (s *CommandScanner) Version(ctx context.Context) (*VersionResult, error) {
	stdout, stderr, code, err := s.run(ctx, Target{}, "--version")
	if err != nil {
		return nil, err
	}
	if code != 0 || stderr != "" {
		return nil, NewEngineError("version query failed: "+strings.TrimSpace(stderr), stderr)
	}
	return ParseVersion(stdout)
}

// Version queries the daemon over TCP.
func (s *StreamScanner) Version(ctx context.Context) (*VersionResult, error) {
	return queryVersion(ctx, "tcp", s.cfg.TCP.Address(), s.cfg, s.log.WithField("transport", TransportTCP))
}

// Version queries the daemon over the Unix socket.
func (s *SocketScanner) Version(ctx context.Context) (*VersionResult, error) {
	return queryVersion(ctx, "unix", s.cfg.Socket, s.cfg, s.log.WithField("transport", TransportSocket))
}
