// Command node runs one node runner process: it loads its handler plugin,
// connects to the bus, subscribes to its configured input subjects, and
// dispatches every delivered message to the resolved handler until
// SIGINT/SIGTERM.
//
// Called by: external processes (CLI, containers, orchestration systems)
// Calls: internal/config, internal/bus, internal/registry, internal/dispatch
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/boliri/kre-runners/internal/bus"
	"github.com/boliri/kre-runners/internal/config"
	"github.com/boliri/kre-runners/internal/dispatch"
	"github.com/boliri/kre-runners/internal/docstore"
	"github.com/boliri/kre-runners/internal/handlerctx"
	"github.com/boliri/kre-runners/internal/lifecycle"
	"github.com/boliri/kre-runners/internal/metrics"
	"github.com/boliri/kre-runners/internal/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Configuration failures are fatal per spec.md §7; there's no
		// logger yet, so report to stderr directly.
		os.Stderr.WriteString("node: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := cfg.RequireNodeFields(); err != nil {
		os.Stderr.WriteString("node: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	name := cfg.KrtVersion + "-" + cfg.KrtNodeName
	tracker := lifecycle.NewTracker()

	busClient, err := bus.Connect(cfg.NatsServer, cfg.NatsCredsFile, name, logger)
	if err != nil {
		logger.Fatal("failed to connect to bus", zap.Error(err))
	}
	defer busClient.Close()

	// A node's output subject is used two ways: bare, for a direct hop into
	// the next node's input subject, and channel-suffixed with the current
	// request's tracking_id, when replying to the entrypoint bridge's
	// per-call reply subject (see internal/handlerctx.Context.TrackingID and
	// internal/entrypoint.Bridge). Declare both forms so the stream this
	// node ensures is compatible with whichever the entrypoint bridge
	// declares, regardless of which process starts first.
	outputSubjects := append(append([]string{}, cfg.NatsInputs...), cfg.NatsOutput, cfg.NatsOutput+".>")
	if err := busClient.EnsureStream(cfg.NatsStream, outputSubjects); err != nil {
		logger.Fatal("failed to ensure stream", zap.Error(err))
	}

	reg := registry.LoadFatal(cfg.BasePath, cfg.HandlerPath, logger)

	store := docstore.Store(docstore.NewMemoryStore())
	if cfg.MongoURI != "" {
		store = docstore.NewHTTPStore(cfg.MongoURI)
	}
	sink := metrics.Sink(metrics.NewLoggingSink(logger))

	baseCtx := handlerctx.New(cfg, busClient, store, sink, logger)

	if reg.Init != nil {
		logger.Info("running handler init")
		if err := reg.Init(baseCtx); err != nil {
			logger.Fatal("handler init failed", zap.Error(err))
		}
	}

	loop := dispatch.New(cfg, busClient, reg, baseCtx, logger, tracker)
	if err := loop.Start(); err != nil {
		logger.Fatal("failed to start dispatch loop", zap.Error(err))
	}

	healthSrv := startHealthServer(tracker, logger)

	logger.Info("node runner ready", zap.String("node_name", cfg.KrtNodeName))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	loop.Stop()
	if healthSrv != nil {
		healthSrv.Close()
	}
}

func newLogger(level string) *zap.Logger {
	var zapLevel zap.AtomicLevel
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

// startHealthServer serves the supplemented /healthz-equivalent (§ Supplemented
// feature: health/readiness). Listening is best-effort: a failure to bind
// logs and continues without it, since health reporting is not on the
// critical path for message processing.
func startHealthServer(tracker *lifecycle.Tracker, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if tracker.Healthy() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(tracker.Snapshot().String()))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(tracker.Snapshot().String()))
	})

	srv := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server stopped", zap.Error(err))
		}
	}()
	return srv
}
