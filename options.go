package clamd

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithLogger sets the logger used for anomalies such as unexpected exit codes
// and failed connection closes. By default nothing is logged.
func WithLogger(l logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTimeout overrides the shared socket timeout from Config.
// Non-positive durations are ignored (no-op).
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.cfg.Timeout = d
		}
	}
}

// WithChunkSize sets the INSTREAM chunk size (default: 64KB).
func WithChunkSize(size int) ClientOption {
	return func(c *Client) {
		if size > 0 {
			c.cfg.ChunkSize = size
		}
	}
}

// WithPrimary designates the transport Scan dispatches to.
func WithPrimary(t Transport) ClientOption {
	return func(c *Client) {
		c.cfg.Primary = t
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
