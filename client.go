package clamd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultName      = "clamav"
	defaultBin       = "clamdscan"
	defaultHost      = "0.0.0.0"
	defaultPort      = 3310
	defaultSocket    = "clamd.socket"
	defaultTimeout   = 30 * time.Second
	defaultChunkSize = 64 * 1024 // 64KB
)

// preference is the order used when no primary transport is configured.
var preference = []Transport{TransportSocket, TransportTCP, TransportCommand}

// Scanner is implemented by each transport.
type Scanner interface {
	Transport() Transport
	Scan(ctx context.Context, target Target) (ScanResult, error)
	Version(ctx context.Context) (*VersionResult, error)
}

// Client dispatches scans to the transport scanners.
// It is safe for concurrent use from multiple goroutines.
type Client struct {
	cfg      Config
	avail    Availability
	log      logrus.FieldLogger
	scanners map[Transport]Scanner
}

// NewClient creates a client. avail records which transports the host offers;
// transports whose flag is false are never contacted.
func NewClient(cfg Config, avail Availability, opts ...ClientOption) (*Client, error) {
	c := &Client{
		cfg:   cfg.withDefaults(),
		avail: avail,
		log:   discardLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if _, err := ParseTransport(string(c.cfg.Primary)); err != nil {
		return nil, err
	}

	c.scanners = map[Transport]Scanner{
		TransportCommand: NewCommandScanner(c.cfg, c.log),
		TransportTCP:     NewStreamScanner(c.cfg, c.log),
		TransportSocket:  NewSocketScanner(c.cfg, c.log),
	}

	return c, nil
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Primary returns the transport Scan would use, or a configuration error when none is available.
func (c *Client) Primary() (Transport, error) {
	if c.cfg.Primary != "" {
		if !c.avail.Has(c.cfg.Primary) {
			return "", notDetected(c.cfg.Primary)
		}
		return c.cfg.Primary, nil
	}
	for _, t := range preference {
		if c.avail.Has(t) {
			return t, nil
		}
	}
	return "", NewConfigurationError("no transport available", nil)
}

// Scan scans target over the primary transport.
func (c *Client) Scan(ctx context.Context, target Target) (ScanResult, error) {
	t, err := c.Primary()
	if err != nil {
		return ScanResult{}, err
	}
	return c.ScanWith(ctx, t, target)
}

// ScanWith scans target over the given transport.
func (c *Client) ScanWith(ctx context.Context, t Transport, target Target) (ScanResult, error) {
	s, err := c.scanner(t)
	if err != nil {
		return ScanResult{}, err
	}
	return s.Scan(ctx, target)
}

// ScanFile scans a file on disk over the primary transport.
func (c *Client) ScanFile(ctx context.Context, path string) (ScanResult, error) {
	return c.Scan(ctx, PathTarget(path))
}

// ScanReader scans a byte stream over the primary transport.
func (c *Client) ScanReader(ctx context.Context, r io.Reader, name string) (ScanResult, error) {
	return c.Scan(ctx, ReaderTarget(r, name))
}

// Ping probes a socket transport. The command transport has no liveness probe.
func (c *Client) Ping(ctx context.Context, t Transport) (bool, error) {
	if _, err := c.scanner(t); err != nil {
		return false, err
	}
	switch t {
	case TransportTCP:
		return Ping(ctx, "tcp", c.cfg.TCP.Address(), c.cfg.Timeout, c.log)
	case TransportSocket:
		return Ping(ctx, "unix", c.cfg.Socket, c.cfg.Timeout, c.log)
	}
	return false, NewConfigurationError(fmt.Sprintf("%s transport does not support PING", t), nil)
}

// Version reports the engine version over the given transport.
func (c *Client) Version(ctx context.Context, t Transport) (*VersionResult, error) {
	s, err := c.scanner(t)
	if err != nil {
		return nil, err
	}
	return s.Version(ctx)
}

// scanner returns the scanner for t if the host offers it.
func (c *Client) scanner(t Transport) (Scanner, error) {
	s, ok := c.scanners[t]
	if !ok {
		return nil, NewConfigurationError(fmt.Sprintf("unknown transport %q", t), nil)
	}
	if !c.avail.Has(t) {
		return nil, notDetected(t)
	}
	return s, nil
}

func notDetected(t Transport) error {
	return NewConfigurationError(fmt.Sprintf("%s transport not detected", t), nil)
}
