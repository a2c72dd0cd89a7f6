package clamd

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	cmdPing   = "PING\n"
	replyPong = "PONG\n"
)

// Ping checks that a clamd listener answers PING with PONG. network is "tcp" or "unix".
// It returns true only for the exact reply "PONG\n"; any other reply is a protocol
// error, a silent listener a timeout error. The connection is always closed.
func Ping(ctx context.Context, network, address string, timeout time.Duration, log logrus.FieldLogger) (bool, error) {
	if log == nil {
		log = discardLogger()
	}
	log = log.WithFields(logrus.Fields{"network": network, "address": address})

	s, err := dial(ctx, network, address, timeout, log)
	if err != nil {
		return false, err
	}
	defer s.close()

	if err := s.send([]byte(cmdPing)); err != nil {
		return false, err
	}

	reply, err := s.receive()
	if err != nil {
		return false, err
	}
	if reply != replyPong {
		return false, NewProtocolError("unexpected: "+reply, reply)
	}

	log.Debug("clamd answered PONG")
	return true, nil
}
