package clamd

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// exitInfected is the exit status clamdscan uses when a signature matched.
	exitInfected = 1
	// waitDelay bounds how long output pipes are drained after the process is killed.
	waitDelay = time.Second
)

// CommandScanner runs the scanning binary as a local subprocess.
type CommandScanner struct {
	cfg Config
	log logrus.FieldLogger
}

// NewCommandScanner returns a scanner invoking cfg.Command.
func NewCommandScanner(cfg Config, log logrus.FieldLogger) *CommandScanner {
	if log == nil {
		log = discardLogger()
	}
	return &CommandScanner{cfg: cfg.withDefaults(), log: log}
}

// Transport returns TransportCommand.
func (s *CommandScanner) Transport() Transport {
	return TransportCommand
}

// Scan runs the binary against the target. Stream targets are piped to the
// binary's standard input and "-" is passed in place of a path.
//
// Any output on standard error fails the scan, even though some engines print
// harmless diagnostics there.
func (s *CommandScanner) Scan(ctx context.Context, target Target) (ScanResult, error) {
	arg := target.Path
	if target.IsStream() {
		arg = "-"
	} else if arg == "" {
		return ScanResult{}, NewConfigurationError("file is required", nil)
	}

	stdout, stderr, code, err := s.run(ctx, target, arg)
	if err != nil {
		return ScanResult{}, err
	}

	log := s.log.WithFields(logrus.Fields{"transport": TransportCommand, "target": target.String()})
	if code != 0 && code != exitInfected {
		log.WithField("exit_code", code).Error("scanner exited abnormally")
	}
	if stderr != "" {
		log.Error("stderr: " + stderr)
		return ScanResult{}, NewEngineError("scanner wrote to stderr: "+strings.TrimSpace(stderr), stderr)
	}
	if stdout == "" {
		return ScanResult{}, NewProtocolError("no output produced", "")
	}

	return interpret(s.cfg.Name, stdout)
}

// run executes the binary with extra arguments and returns its output and exit status.
func (s *CommandScanner) run(ctx context.Context, target Target, extra ...string) (string, string, int, error) {
	args := append(append([]string{}, s.cfg.Command.Args...), extra...)
	cmd := exec.CommandContext(ctx, s.cfg.Command.Bin, args...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if target.IsStream() {
		cmd.Stdin = target.Reader
	}

	err := cmd.Run()
	code := 0
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", 0, NewTimeoutError("scanner did not finish", ctxErr)
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", "", 0, NewTransportError("failed to run "+s.cfg.Command.Bin, err)
		}
		code = exitErr.ExitCode()
	}
	return stdout.String(), stderr.String(), code, nil
}
