// Package server exposes a clamd client over HTTP and the gRPC health protocol.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/DevHatRo/clamd-go"
)

const (
	pathHealthCheck = "/api/health-check"
	pathVersion     = "/api/version"
	pathScan        = "/api/scan"
	pathStreamScan  = "/api/stream-scan"

	defaultMaxUpload = 100 << 20
)

// Engine is the part of *clamd.Client the gateway depends on.
type Engine interface {
	Primary() (clamd.Transport, error)
	Ping(ctx context.Context, t clamd.Transport) (bool, error)
	Version(ctx context.Context, t clamd.Transport) (*clamd.VersionResult, error)
	ScanReader(ctx context.Context, r io.Reader, name string) (clamd.ScanResult, error)
}

// scanResponse is the JSON body returned by the scan endpoints.
type scanResponse struct {
	Status   string  `json:"status"`
	Message  string  `json:"message"`
	ScanTime float64 `json:"time"`
	Filename string  `json:"filename,omitempty"`
}

type versionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Build   string `json:"build"`
}

type messageResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
}

// Handler serves the HTTP API.
type Handler struct {
	engine    Engine
	log       logrus.FieldLogger
	maxUpload int64
}

// NewHandler returns a handler backed by engine. maxUpload caps request
// bodies in bytes; non-positive values use 100MB.
func NewHandler(engine Engine, log logrus.FieldLogger, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Handler{engine: engine, log: log, maxUpload: maxUpload}
}

// Router returns the routes of the API.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(pathHealthCheck, h.healthCheck).Methods(http.MethodGet)
	r.HandleFunc(pathVersion, h.version).Methods(http.MethodGet)
	r.HandleFunc(pathScan, h.scan).Methods(http.MethodPost)
	r.HandleFunc(pathStreamScan, h.streamScan).Methods(http.MethodPost)
	r.Use(h.logRequests)
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("request served")
	})
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := probe(r.Context(), h.engine); err != nil {
		h.log.WithError(err).Warn("health check failed")
		writeJSON(w, http.StatusBadGateway, messageResponse{Message: "Clamd service unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (h *Handler) version(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.Primary()
	if err != nil {
		h.writeError(w, err)
		return
	}
	v, err := h.engine.Version(r.Context(), t)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versionResponse{
		Version: v.ClamAVVersion,
		Commit:  v.SignatureVersion,
		Build:   v.SignatureDate,
	})
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUpload {
		writeJSON(w, http.StatusRequestEntityTooLarge, messageResponse{Status: "ERROR", Message: "file too large"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, messageResponse{Status: "ERROR", Message: "file too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, messageResponse{Status: "ERROR", Message: "Provide a single file"})
		return
	}
	defer file.Close()

	h.runScan(w, r, file, header.Filename)
}

func (h *Handler) streamScan(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength == 0 {
		writeJSON(w, http.StatusBadRequest, messageResponse{Status: "ERROR", Message: "Content-Length is required"})
		return
	}
	h.runScan(w, r, http.MaxBytesReader(w, r.Body, h.maxUpload), "")
}

func (h *Handler) runScan(w http.ResponseWriter, r *http.Request, body io.Reader, filename string) {
	start := time.Now()
	res, err := h.engine.ScanReader(r.Context(), body, filename)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := scanResponse{Status: res.Status(), ScanTime: elapsed, Filename: filename}
	if res.IsInfected() {
		resp.Message = res.Fail[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	h.log.WithError(err).WithField("status", status).Error("request failed")
	writeJSON(w, status, messageResponse{Status: "ERROR", Message: err.Error()})
}

// statusFor maps client errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case clamd.IsConfigurationError(err):
		return http.StatusBadRequest
	case clamd.IsTimeoutError(err):
		return http.StatusGatewayTimeout
	case clamd.IsTransportError(err), clamd.IsProtocolError(err), clamd.IsEngineError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// probe checks the primary transport. The command transport has no PING, so
// it is probed by asking for the engine version.
func probe(ctx context.Context, engine Engine) error {
	t, err := engine.Primary()
	if err != nil {
		return err
	}
	if t == clamd.TransportCommand {
		_, err = engine.Version(ctx, t)
		return err
	}
	_, err = engine.Ping(ctx, t)
	return err
}
