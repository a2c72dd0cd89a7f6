package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevHatRo/clamd-go"
	"github.com/DevHatRo/clamd-go/internal/testutil"
)

// stubEngine answers from fixed values instead of a scanning engine.
type stubEngine struct {
	primary    clamd.Transport
	primaryErr error
	pingErr    error
	version    *clamd.VersionResult
	versionErr error
	result     clamd.ScanResult
	scanErr    error

	scanned []byte
	name    string
}

func (s *stubEngine) Primary() (clamd.Transport, error) { return s.primary, s.primaryErr }

func (s *stubEngine) Ping(context.Context, clamd.Transport) (bool, error) {
	return s.pingErr == nil, s.pingErr
}

func (s *stubEngine) Version(context.Context, clamd.Transport) (*clamd.VersionResult, error) {
	return s.version, s.versionErr
}

func (s *stubEngine) ScanReader(_ context.Context, r io.Reader, name string) (clamd.ScanResult, error) {
	s.scanned, _ = io.ReadAll(r)
	s.name = name
	return s.result, s.scanErr
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func serve(t *testing.T, engine Engine) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(engine, quietLogger(), 1024).Router())
	t.Cleanup(srv.Close)
	return srv
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func multipartBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		engine  *stubEngine
		status  int
		message string
	}{
		{name: "healthy", engine: &stubEngine{primary: clamd.TransportTCP}, status: http.StatusOK, message: "ok"},
		{
			name:    "ping fails",
			engine:  &stubEngine{primary: clamd.TransportSocket, pingErr: clamd.NewTransportError("refused", nil)},
			status:  http.StatusBadGateway,
			message: "Clamd service unavailable",
		},
		{
			name:    "no transport",
			engine:  &stubEngine{primaryErr: clamd.NewConfigurationError("no transport available", nil)},
			status:  http.StatusBadGateway,
			message: "Clamd service unavailable",
		},
		{
			name:    "command transport probed by version",
			engine:  &stubEngine{primary: clamd.TransportCommand, version: &clamd.VersionResult{ClamAVVersion: "1.0.5"}},
			status:  http.StatusOK,
			message: "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.engine)
			resp, err := http.Get(srv.URL + "/api/health-check")
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body messageResponse
			decode(t, resp, &body)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

func TestVersion(t *testing.T) {
	srv := serve(t, &stubEngine{
		primary: clamd.TransportTCP,
		version: &clamd.VersionResult{ClamAVVersion: "1.0.5", SignatureVersion: "27186", SignatureDate: "Wed Feb 14 08:35:41 2024"},
	})

	resp, err := http.Get(srv.URL + "/api/version")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body versionResponse
	decode(t, resp, &body)
	assert.Equal(t, versionResponse{Version: "1.0.5", Commit: "27186", Build: "Wed Feb 14 08:35:41 2024"}, body)
}

func TestScan(t *testing.T) {
	t.Run("infected upload", func(t *testing.T) {
		engine := &stubEngine{result: clamd.ScanResult{Fail: []string{"Eicar-Test-Signature"}}}
		srv := serve(t, engine)

		body, ct := multipartBody(t, "eicar.com", clamd.EICAR)
		resp, err := http.Post(srv.URL+"/api/scan", ct, body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got scanResponse
		decode(t, resp, &got)
		assert.Equal(t, "FOUND", got.Status)
		assert.Equal(t, "Eicar-Test-Signature", got.Message)
		assert.Equal(t, "eicar.com", got.Filename)
		assert.Equal(t, clamd.EICAR, engine.scanned)
		assert.Equal(t, "eicar.com", engine.name)
	})

	t.Run("clean upload", func(t *testing.T) {
		srv := serve(t, &stubEngine{result: clamd.ScanResult{Pass: []string{"clamav"}}})

		body, ct := multipartBody(t, "clean.txt", []byte("hello"))
		resp, err := http.Post(srv.URL+"/api/scan", ct, body)
		require.NoError(t, err)

		var got scanResponse
		decode(t, resp, &got)
		assert.Equal(t, "OK", got.Status)
		assert.Empty(t, got.Message)
	})

	t.Run("missing file field", func(t *testing.T) {
		srv := serve(t, &stubEngine{})
		resp, err := http.Post(srv.URL+"/api/scan", "text/plain", strings.NewReader("x"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("too large", func(t *testing.T) {
		srv := serve(t, &stubEngine{})
		body, ct := multipartBody(t, "big.bin", bytes.Repeat([]byte("a"), 4096))
		resp, err := http.Post(srv.URL+"/api/scan", ct, body)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("wrong method", func(t *testing.T) {
		srv := serve(t, &stubEngine{})
		resp, err := http.Get(srv.URL + "/api/scan")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestScanErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "configuration", err: clamd.NewConfigurationError("no transport available", nil), status: http.StatusBadRequest},
		{name: "timeout", err: clamd.NewTimeoutError("read failed: timed out", nil), status: http.StatusGatewayTimeout},
		{name: "transport", err: clamd.NewTransportError("refused", nil), status: http.StatusBadGateway},
		{name: "protocol", err: clamd.NewProtocolError("unrecognized reply", "??"), status: http.StatusBadGateway},
		{name: "engine", err: clamd.NewEngineError("engine reported an error", "x: ERROR"), status: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, &stubEngine{scanErr: tt.err})
			resp, err := http.Post(srv.URL+"/api/stream-scan", "application/octet-stream", strings.NewReader("data"))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body messageResponse
			decode(t, resp, &body)
			assert.Equal(t, "ERROR", body.Status)
			assert.Equal(t, tt.err.Error(), body.Message)
		})
	}
}

func TestStreamScanThroughClient(t *testing.T) {
	fake := testutil.NewTCPServer(t, testutil.Clamd())
	cfg := clamd.DefaultConfig()
	cfg.TCP.Host, cfg.TCP.Port = splitAddr(t, fake.Address)
	client, err := clamd.NewClient(cfg, clamd.Availability{TCP: true})
	require.NoError(t, err)

	srv := serve(t, client)
	resp, err := http.Post(srv.URL+"/api/stream-scan", "application/octet-stream", bytes.NewReader(clamd.EICAR))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got scanResponse
	decode(t, resp, &got)
	assert.Equal(t, "FOUND", got.Status)
	assert.Equal(t, "Eicar-Test-Signature", got.Message)
	require.Len(t, fake.Requests(), 1)
	assert.Equal(t, clamd.EICAR, fake.Requests()[0].Payload)
}

func TestStreamScanEmptyBody(t *testing.T) {
	srv := serve(t, &stubEngine{})
	resp, err := http.Post(srv.URL+"/api/stream-scan", "application/octet-stream", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
