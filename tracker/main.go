package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prestec-labs/floortrack/internal/device"
	"github.com/prestec-labs/floortrack/internal/platform/auditlog"
	"github.com/prestec-labs/floortrack/internal/platform/env"
	"github.com/prestec-labs/floortrack/internal/platform/httpserver"
	"github.com/prestec-labs/floortrack/internal/platform/objectstore"
	"github.com/prestec-labs/floortrack/internal/platform/postgres"
	repopg "github.com/prestec-labs/floortrack/internal/repo/postgres"
	"github.com/prestec-labs/floortrack/internal/runexport"
	"github.com/prestec-labs/floortrack/internal/service/runledger"
	"github.com/prestec-labs/floortrack/internal/service/setupstation"
	"github.com/prestec-labs/floortrack/internal/service/skidtracker"
	"github.com/prestec-labs/floortrack/internal/service/stagegate"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("FLOORTRACK_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("FLOORTRACK_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	deviceTimeout, err := env.Duration("FLOORTRACK_DEVICE_TIMEOUT", 5*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	registryPath := env.String("FLOORTRACK_DEVICE_MAP", "devices.yaml")
	registry, err := device.LoadRegistry(registryPath)
	if err != nil {
		logger.Error("invalid device map", "path", registryPath, "error", err)
		os.Exit(2)
	}
	logger.Info("device map loaded", "path", registryPath, "machines", len(registry.Machines()))

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBucket(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	counter := device.NewCounterClient(registry, deviceTimeout, logger)
	audit := auditlog.NewDBAppender(db)

	runStore := repopg.NewRunStore(db)
	skidStore := repopg.NewSkidStore(db)
	setupStore := repopg.NewSetupStore(db)
	scheduleStore := repopg.NewScheduleStore(db)
	flagStore := repopg.NewStageFlagStore(db)

	gate := stagegate.New(flagStore, logger)
	runs := runledger.New(runStore, skidStore, setupStore, counter, gate, audit, logger)
	skids := skidtracker.New(runStore, skidStore, counter, gate, audit, logger)
	setups := setupstation.New(setupStore, scheduleStore, audit, logger)
	exporter := runexport.New(runStore, skidStore, storeClient, storeCfg.BucketExports, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("tracker"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"tracker",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
		),
	)

	api := newTrackerAPI(logger, runs, skids, setups, counter, exporter)
	api.register(mux)

	cfg := httpserver.Config{
		Service:         "tracker",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "tracker", mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
