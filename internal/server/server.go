package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const shutdownTimeout = 10 * time.Second

// Options configures Run.
type Options struct {
	HTTPAddr       string
	GRPCAddr       string
	HealthInterval time.Duration
	MaxUpload      int64
}

// Run serves the HTTP API and the gRPC health service until ctx is canceled
// or one of the listeners fails.
func Run(ctx context.Context, engine Engine, opts Options, log logrus.FieldLogger) error {
	httpLis, err := net.Listen("tcp", opts.HTTPAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", opts.HTTPAddr)
	}
	grpcLis, err := net.Listen("tcp", opts.GRPCAddr)
	if err != nil {
		httpLis.Close()
		return errors.Wrapf(err, "failed to listen on %s", opts.GRPCAddr)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcher := NewHealthWatcher(engine, opts.HealthInterval, log)
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, watcher.Server())
	reflection.Register(gs)

	hs := &http.Server{
		Handler:           NewHandler(engine, log, opts.MaxUpload).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go watcher.Run(ctx)
	go func() {
		log.WithField("addr", httpLis.Addr().String()).Info("http api listening")
		if err := hs.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			errc <- errors.Wrap(err, "http server")
		}
	}()
	go func() {
		log.WithField("addr", grpcLis.Addr().String()).Info("grpc health listening")
		if err := gs.Serve(grpcLis); err != nil {
			errc <- errors.Wrap(err, "grpc server")
		}
	}()

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errc:
	}

	log.Info("shutting down")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if serr := hs.Shutdown(shutdownCtx); serr != nil {
		log.WithError(serr).Warn("http shutdown")
	}
	gs.GracefulStop()
	return err
}
