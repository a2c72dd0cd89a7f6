package server

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for clamd.
const ServiceName = "clamd"

// HealthWatcher keeps a gRPC health server in step with the scanning engine.
type HealthWatcher struct {
	engine   Engine
	health   *health.Server
	interval time.Duration
	log      logrus.FieldLogger
}

// NewHealthWatcher returns a watcher probing engine every interval.
// Both ServiceName and the overall ("") status start as NOT_SERVING.
func NewHealthWatcher(engine Engine, interval time.Duration, log logrus.FieldLogger) *HealthWatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthWatcher{engine: engine, health: hs, interval: interval, log: log}
}

// Server returns the health service to register on a gRPC server.
func (w *HealthWatcher) Server() healthpb.HealthServer {
	return w.health
}

// Check probes the engine once and updates the reported status.
func (w *HealthWatcher) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := probe(ctx, w.engine); err != nil {
		w.log.WithError(err).Warn("clamd probe failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	w.health.SetServingStatus("", status)
	w.health.SetServingStatus(ServiceName, status)
	return status
}

// Run probes immediately and then on every tick until ctx is done, after
// which all statuses are switched to NOT_SERVING.
func (w *HealthWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			w.health.Shutdown()
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}
