// Command solver-server serves a registered propagation model over gRPC so
// channel builds on other hosts can use it through solverrpc.Client.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/acoustic-scene-sim/internal/logging"
	"github.com/signalsfoundry/acoustic-scene-sim/internal/observability"
	"github.com/signalsfoundry/acoustic-scene-sim/internal/solverrpc"
	"github.com/signalsfoundry/acoustic-scene-sim/propagation"
)

// Config holds the server settings parsed from flags.
type Config struct {
	ListenAddress  string
	MetricsAddress string
	Model          string
	LogLevel       string
	LogFormat      string
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.ListenAddress, "grpc-addr", ":50061", "TCP address the solver gRPC server listens on")
	flag.StringVar(&cfg.MetricsAddress, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics (empty disables)")
	flag.StringVar(&cfg.Model, "model", propagation.ImageModel, "registered propagation model to serve")
	flag.StringVar(&cfg.LogLevel, "log-level", os.Getenv("LOG_LEVEL"), "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", os.Getenv("LOG_FORMAT"), "log format (text or json)")
	flag.Parse()

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.ListenAddress), logging.Err(err))
		os.Exit(1)
	}
	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "solver server failed", logging.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then stops gracefully.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	log = logging.OrNoop(log)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	solver, err := propagation.DefaultRegistry().Lookup(cfg.Model)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collector, err := observability.NewRPCCollector(reg)
	if err != nil {
		return err
	}
	metricsSrv := serveMetrics(ctx, cfg.MetricsAddress, collector, log)

	server := solverrpc.NewGRPCServer(solverrpc.NewServer(solver, log), log, collector)

	serveErr := make(chan error, 1)
	log.Info(ctx, "starting solver gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.String("model", solver.Name()),
	)
	go func() {
		serveErr <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	log.Info(context.Background(), "shutting down solver server")
	server.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, collector *observability.RPCCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
