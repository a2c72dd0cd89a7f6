package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	"github.com/DevHatRo/clamd-go"
	"github.com/DevHatRo/clamd-go/internal/testutil"
)

// execute runs clamdctl against a fake clamd reachable over TCP.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	srv := testutil.NewTCPServer(t, testutil.Clamd())
	host, port, err := net.SplitHostPort(srv.Address)
	require.NoError(t, err)

	cfgFile := filepath.Join(t.TempDir(), "clamdctl.yaml")
	body := "net:\n  host: " + host + "\n  port: " + port + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(body), 0o600))

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", cfgFile, "--tcp"}, args...))

	err = root.Execute()
	return out.String(), err
}

func exitStatus(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if err != nil {
		return exitFailure
	}
	return exitClean
}

func TestScanCommand(t *testing.T) {
	dir := t.TempDir()
	clean := filepath.Join(dir, "clean.txt")
	eicar := filepath.Join(dir, "eicar.com")
	require.NoError(t, os.WriteFile(clean, []byte("hello"), 0o600))
	require.NoError(t, os.WriteFile(eicar, clamd.EICAR, 0o600))

	t.Run("stdin clean", func(t *testing.T) {
		out, err := execute(t, "hello", "scan")
		require.NoError(t, err)
		assert.Contains(t, out, "stream: ")
		assert.Contains(t, out, "OK")
	})

	t.Run("stdin infected", func(t *testing.T) {
		out, err := execute(t, string(clamd.EICAR), "scan", "-")
		assert.Equal(t, exitInfected, exitStatus(err))
		assert.Contains(t, out, "Eicar-Test-Signature FOUND")
	})

	t.Run("files as json", func(t *testing.T) {
		out, err := execute(t, "", "-o", "json", "scan", clean, eicar)
		assert.Equal(t, exitInfected, exitStatus(err))

		var got []report
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Len(t, got, 2)
		assert.Equal(t, report{Target: clean, Status: "OK"}, got[0])
		assert.Equal(t, report{Target: eicar, Status: "FOUND", Viruses: []string{"Eicar-Test-Signature"}}, got[1])
	})

	t.Run("missing file is an error", func(t *testing.T) {
		out, err := execute(t, "", "-o", "yaml", "scan", filepath.Join(dir, "nope"))
		assert.Equal(t, exitFailure, exitStatus(err))

		var got []report
		require.NoError(t, yaml.Unmarshal([]byte(out), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "ERROR", got[0].Status)
		assert.Contains(t, got[0].Error, "failed to open file")
	})
}

func TestPingCommand(t *testing.T) {
	out, err := execute(t, "", "ping")
	require.NoError(t, err)
	assert.Contains(t, out, "PONG")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "-o", "json", "version")
	require.NoError(t, err)

	var got clamd.VersionResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "1.0.5", got.ClamAVVersion)
	assert.Equal(t, "27186", got.SignatureVersion)
}

func TestSelfTestCommand(t *testing.T) {
	out, err := execute(t, "", "selftest")
	require.NoError(t, err)
	assert.Contains(t, out, "self test passed")
}

func TestBadOutputFormat(t *testing.T) {
	_, err := execute(t, "", "-o", "xml", "ping")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name    string
		reports []report
		want    int
	}{
		{name: "empty", want: exitClean},
		{name: "clean", reports: []report{{Status: "OK"}}, want: exitClean},
		{name: "infected", reports: []report{{Status: "OK"}, {Status: "FOUND"}}, want: exitInfected},
		{name: "error wins", reports: []report{{Status: "FOUND"}, {Status: "ERROR"}}, want: exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.reports))
		})
	}
}
