package clamd

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// Transport names one of the ways the engine can be reached.
type Transport string

const (
	// TransportCommand runs the scanning binary as a local subprocess.
	TransportCommand Transport = "cli"
	// TransportTCP streams data to clamd over TCP.
	TransportTCP Transport = "tcp"
	// TransportSocket talks to clamd over a Unix domain socket.
	TransportSocket Transport = "socket"
)

// ParseTransport converts a configuration string into a Transport.
func ParseTransport(s string) (Transport, error) {
	switch Transport(s) {
	case TransportCommand, TransportTCP, TransportSocket:
		return Transport(s), nil
	case "":
		return "", nil
	}
	return "", NewConfigurationError(fmt.Sprintf("unknown transport %q", s), nil)
}

// Availability records which transports host discovery found usable.
type Availability struct {
	CLI    bool `json:"cli" yaml:"cli"`
	TCP    bool `json:"tcp" yaml:"tcp"`
	Socket bool `json:"socket" yaml:"socket"`
}

// Has reports whether t was detected.
func (a Availability) Has(t Transport) bool {
	switch t {
	case TransportCommand:
		return a.CLI
	case TransportTCP:
		return a.TCP
	case TransportSocket:
		return a.Socket
	}
	return false
}

// CommandConfig holds the scanning binary and its static arguments.
type CommandConfig struct {
	Bin  string
	Args []string
}

// TCPConfig holds the clamd TCP listener address.
type TCPConfig struct {
	Host string
	Port int
}

// Address returns host:port.
func (c TCPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Config holds per-transport connection parameters. It is read-only once a Client is built.
type Config struct {
	// Name identifies the scanner in every ScanResult.
	Name    string
	Command CommandConfig
	TCP     TCPConfig
	// Socket is the path of the clamd Unix domain socket.
	Socket string
	// Timeout bounds every socket operation.
	Timeout time.Duration
	// ChunkSize is the INSTREAM payload size per chunk.
	ChunkSize int
	// Primary designates the transport Scan uses. Empty means first available.
	Primary Transport
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Name:      defaultName,
		Command:   CommandConfig{Bin: defaultBin},
		TCP:       TCPConfig{Host: defaultHost, Port: defaultPort},
		Socket:    defaultSocket,
		Timeout:   defaultTimeout,
		ChunkSize: defaultChunkSize,
	}
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.Command.Bin == "" {
		c.Command.Bin = d.Command.Bin
	}
	if c.TCP.Host == "" {
		c.TCP.Host = d.TCP.Host
	}
	if c.TCP.Port == 0 {
		c.TCP.Port = d.TCP.Port
	}
	if c.Socket == "" {
		c.Socket = d.Socket
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	return c
}

// Target is the subject of one scan: a filesystem path or an open byte stream.
type Target struct {
	// Path is the file to scan. Ignored when Reader is set.
	Path string
	// Reader supplies the bytes to scan.
	Reader io.Reader
	// Name labels a reader target in logs and results.
	Name string
}

// PathTarget returns a Target for a file on disk.
func PathTarget(path string) Target {
	return Target{Path: path, Name: path}
}

// ReaderTarget returns a Target for a byte stream.
func ReaderTarget(r io.Reader, name string) Target {
	if name == "" {
		name = "stream"
	}
	return Target{Reader: r, Name: name}
}

// IsStream reports whether the target is a byte stream rather than a path.
func (t Target) IsStream() bool {
	return t.Reader != nil
}

func (t Target) String() string {
	if t.IsStream() {
		return t.Name
	}
	return t.Path
}

// ScanResult is the normalized outcome of one scan.
type ScanResult struct {
	// Pass holds "OK" for a clean reply.
	Pass []string `json:"pass" yaml:"pass"`
	// Fail holds the detected signature names.
	Fail []string `json:"fail" yaml:"fail"`
	// Error holds raw error text reported by the engine.
	Error []string `json:"error" yaml:"error"`
	// Name identifies the scanner that produced the result.
	Name string `json:"name" yaml:"name"`
	// Raw is the reply exactly as received.
	Raw string `json:"raw" yaml:"raw"`
}

// IsClean returns true if the engine reported no infection.
func (r ScanResult) IsClean() bool {
	return len(r.Pass) > 0 && len(r.Fail) == 0
}

// IsInfected returns true if the engine reported at least one signature.
func (r ScanResult) IsInfected() bool {
	return len(r.Fail) > 0
}

// HasError returns true if the engine reported an ERROR condition.
func (r ScanResult) HasError() bool {
	return len(r.Error) > 0
}

// IsIndeterminate returns true when the reply matched no known shape.
func (r ScanResult) IsIndeterminate() bool {
	return len(r.Pass) == 0 && len(r.Fail) == 0 && len(r.Error) == 0
}

// Status maps the result onto the clamd verdict words OK, FOUND and ERROR.
func (r ScanResult) Status() string {
	switch {
	case r.IsInfected():
		return "FOUND"
	case r.IsClean():
		return "OK"
	}
	return "ERROR"
}

// VersionResult holds the engine and signature database versions.
type VersionResult struct {
	// ClamAVVersion is the engine version, e.g. "1.0.5".
	ClamAVVersion string `json:"clamav_version" yaml:"clamav_version"`
	// SignatureVersion is the signature database version, e.g. "27186".
	SignatureVersion string `json:"signature_version" yaml:"signature_version"`
	// SignatureDate is the database build date as printed by the engine.
	SignatureDate string `json:"signature_date" yaml:"signature_date"`
	// Raw is the reply exactly as received.
	Raw string `json:"raw" yaml:"raw"`
}

// BatchResult is one entry produced by ScanMany.
type BatchResult struct {
	Path   string
	Result ScanResult
	Err    error
}
