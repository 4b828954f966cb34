package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/dynpool/internal/logging"
	"github.com/signalsfoundry/dynpool/internal/observability"
	"github.com/signalsfoundry/dynpool/model"
	"github.com/signalsfoundry/dynpool/pipeline"
)

func main() {
	configPath := flag.String("config", "configs/run.toml", "Path to the TOML run configuration")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (empty disables the listener)")
	artifactDir := flag.String("artifact-dir", "", "Override the configured artifact directory")
	runID := flag.String("run-id", "", "Override the configured run identifier")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	settings, err := Configure(*configPath)
	if err != nil {
		log.Error(ctx, "failed to read run configuration",
			logging.String("path", *configPath),
			logging.String("error", err.Error()))
		os.Exit(2)
	}
	if *artifactDir != "" {
		settings.ArtifactDir = *artifactDir
	}
	if *runID != "" {
		settings.RunID = *runID
	}

	cfg, err := settings.Pipeline()
	if err != nil {
		log.Error(ctx, "invalid run configuration",
			logging.String("path", *configPath),
			logging.String("error", err.Error()))
		os.Exit(2)
	}

	collector, err := observability.NewCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}

	runner, err := pipeline.NewRunner(cfg, log, collector)
	if err != nil {
		log.Error(ctx, "invalid pipeline configuration", logging.String("error", err.Error()))
		os.Exit(2)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	res, runErr := runner.Run(runCtx)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if shutdownTracing != nil {
		_ = shutdownTracing(shutdownCtx)
	}

	if runErr != nil {
		log.Error(ctx, "run failed", logging.String("error", runErr.Error()))
		switch {
		case errors.Is(runErr, model.ErrConfiguration):
			os.Exit(2)
		case errors.Is(runErr, model.ErrTimeout):
			os.Exit(3)
		default:
			os.Exit(1)
		}
	}

	if !res.Report.Pool.Feasible {
		// A completed run with an infeasible pool is a structured
		// non-success: artifacts are written, the exit code says no.
		log.Warn(ctx, "pool selection infeasible",
			logging.Int("constellations", len(res.Report.Pool.Infeasible)))
		os.Exit(4)
	}
}

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
