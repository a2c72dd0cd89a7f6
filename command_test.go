package clamd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinary writes a shell script standing in for clamdscan.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "clamdscan")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func commandScanner(t *testing.T, body string, args ...string) *CommandScanner {
	cfg := DefaultConfig()
	cfg.Command = CommandConfig{Bin: fakeBinary(t, body), Args: args}
	return NewCommandScanner(cfg, nil)
}

func TestCommandScanner(t *testing.T) {
	t.Run("clean", func(t *testing.T) {
		s := commandScanner(t, `echo "$1: OK"`)

		res, err := s.Scan(context.Background(), PathTarget("/tmp/clean.eml"))
		require.NoError(t, err)
		assert.Equal(t, []string{"OK"}, res.Pass)
		assert.Empty(t, res.Fail)
		assert.Equal(t, "clamav", res.Name)
		assert.Equal(t, "/tmp/clean.eml: OK\n", res.Raw)
	})

	t.Run("infected exit code is not an error", func(t *testing.T) {
		s := commandScanner(t, `echo "$1: Eicar-Test-Signature FOUND"; exit 1`)

		res, err := s.Scan(context.Background(), PathTarget("/tmp/eicar.eml"))
		require.NoError(t, err)
		assert.Equal(t, []string{"Eicar-Test-Signature"}, res.Fail)
	})

	t.Run("static args precede the path", func(t *testing.T) {
		s := commandScanner(t, `echo "$*: OK"`, "--no-summary", "--fdpass")

		res, err := s.Scan(context.Background(), PathTarget("/tmp/a"))
		require.NoError(t, err)
		assert.Equal(t, "--no-summary --fdpass /tmp/a: OK\n", res.Raw)
	})

	t.Run("other exit code with output is still parsed", func(t *testing.T) {
		s := commandScanner(t, `echo "$1: OK"; exit 2`)

		res, err := s.Scan(context.Background(), PathTarget("/tmp/a"))
		require.NoError(t, err)
		assert.True(t, res.IsClean())
	})

	t.Run("stderr is fatal", func(t *testing.T) {
		s := commandScanner(t, `echo "$1: OK"; echo "WARNING: config mismatch" >&2`)

		_, err := s.Scan(context.Background(), PathTarget("/tmp/a"))
		require.Error(t, err)
		assert.True(t, IsEngineError(err))
		assert.Contains(t, err.Error(), "config mismatch")
	})

	// Empty stdout fails whatever the exit code.
	t.Run("no output", func(t *testing.T) {
		for _, code := range []string{"0", "1", "2"} {
			s := commandScanner(t, "exit "+code)

			_, err := s.Scan(context.Background(), PathTarget("/tmp/a"))
			require.Error(t, err, "exit %s", code)
			assert.True(t, IsProtocolError(err))
			assert.Contains(t, err.Error(), "no output produced")
		}
	})

	t.Run("stream piped to stdin", func(t *testing.T) {
		s := commandScanner(t, `if grep -q EICAR; then echo "$1: Eicar-Test-Signature FOUND"; exit 1; fi; echo "$1: OK"`)

		res, err := s.Scan(context.Background(), ReaderTarget(bytes.NewReader(EICAR), "eicar"))
		require.NoError(t, err)
		assert.Equal(t, []string{"Eicar-Test-Signature"}, res.Fail)
		assert.Equal(t, "-: Eicar-Test-Signature FOUND\n", res.Raw)
	})

	t.Run("file required", func(t *testing.T) {
		s := NewCommandScanner(DefaultConfig(), nil)

		_, err := s.Scan(context.Background(), Target{})
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
	})

	t.Run("missing binary", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Command.Bin = filepath.Join(t.TempDir(), "nope")
		s := NewCommandScanner(cfg, nil)

		_, err := s.Scan(context.Background(), PathTarget("/tmp/a"))
		require.Error(t, err)
		assert.True(t, IsTransportError(err))
	})

	t.Run("context deadline", func(t *testing.T) {
		s := commandScanner(t, `exec sleep 5`)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		_, err := s.Scan(ctx, PathTarget("/tmp/a"))
		require.Error(t, err)
		assert.True(t, IsTimeoutError(err))
	})

	t.Run("context expiring after a clean exit keeps the reply", func(t *testing.T) {
		s := commandScanner(t, `echo "$1: OK"`)

		res, err := s.Scan(expiredContext{context.Background()}, PathTarget("/tmp/a"))
		require.NoError(t, err)
		assert.True(t, res.IsClean())
	})
}

// expiredContext reports an error but never signals Done, so the process is
// not killed and only finishes with the context already expired.
type expiredContext struct {
	context.Context
}

func (expiredContext) Err() error { return context.DeadlineExceeded }

func TestCommandScannerVersion(t *testing.T) {
	s := commandScanner(t, `echo "ClamAV 1.0.5/27186/Wed Feb 14 08:35:41 2024"`)

	v, err := s.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0.5", v.ClamAVVersion)
	assert.Equal(t, "27186", v.SignatureVersion)
	assert.Equal(t, "Wed Feb 14 08:35:41 2024", v.SignatureDate)
}
