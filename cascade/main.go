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

	"github.com/animus-labs/cascade/internal/catalog"
	"github.com/animus-labs/cascade/internal/deletespec"
	"github.com/animus-labs/cascade/internal/platform/auditlog"
	"github.com/animus-labs/cascade/internal/platform/auth"
	"github.com/animus-labs/cascade/internal/platform/httpserver"
	"github.com/animus-labs/cascade/internal/platform/metrics"
	"github.com/animus-labs/cascade/internal/platform/objectstore"
	"github.com/animus-labs/cascade/internal/platform/postgres"
	"github.com/animus-labs/cascade/internal/service/deletes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const serviceName = "cascade"

func main() {
	cfg, err := serviceConfigFromEnv()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("invalid env", "error", err)
		os.Exit(2)
	}
	logger := newLogger(os.Stdout, cfg.LogFormat)

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpCfg, err := httpserver.ConfigFromEnv(serviceName)
	if err != nil {
		logger.Error("invalid http config", "error", err)
		os.Exit(2)
	}

	md, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("invalid catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(2)
	}
	registry, err := deletespec.LoadRegistry(cfg.SpecsPath, md, logger)
	if err != nil {
		logger.Error("invalid delete specifications", "path", cfg.SpecsPath, "error", err)
		os.Exit(2)
	}

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

	readiness := []httpserver.ReadinessCheck{{
		Name:  "postgres",
		Check: db.PingContext,
	}}

	var backups deletes.BackupStore
	if cfg.BackupEnabled {
		storeCfg, err := objectstore.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid object store config", "error", err)
			os.Exit(2)
		}
		minioClient, err := objectstore.NewMinIOClient(storeCfg)
		if err != nil {
			logger.Error("object store unavailable", "error", err)
			os.Exit(1)
		}
		if err := objectstore.EnsureBucket(ctx, minioClient, storeCfg); err != nil {
			logger.Error("backup bucket unavailable", "bucket", storeCfg.BucketBackups, "error", err)
			os.Exit(1)
		}
		store, err := objectstore.NewBackupStore(minioClient, storeCfg)
		if err != nil {
			logger.Error("invalid backup store", "error", err)
			os.Exit(2)
		}
		backups = store
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name:    "minio",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				return objectstore.CheckBucket(ctx, minioClient, storeCfg)
			},
		})
	}

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	authenticator, err := auth.NewAuthenticator(ctx, authCfg)
	if err != nil {
		logger.Error("auth unavailable", "mode", authCfg.Mode, "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, err := deletes.New(deletes.Config{
		Registry:      registry,
		Transactor:    deletes.PostgresTransactor{DB: db, StatementTimeout: dbCfg.StatementTimeout},
		Backups:       backups,
		Metrics:       collector,
		Logger:        logger,
		RunTimeout:    cfg.RunTimeout,
		BackupDefault: cfg.BackupEnabled,
	})
	if err != nil {
		logger.Error("invalid delete service", "error", err)
		os.Exit(2)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("GET /readyz", httpserver.ReadyzWithChecks(serviceName, readiness...))
	mux.Handle("GET /metrics", metrics.Handler(reg))
	newCascadeAPI(logger, svc, cfg.MaxBodyBytes).register(mux)

	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		Authorize:     auth.RoleAuthorizer(),
		Audit: func(ctx context.Context, event auth.DenyEvent) error {
			auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
			defer cancel()
			return auditlog.InsertAuthDeny(auditCtx, db, serviceName, event)
		},
		SkipPrefixes: []string{"/healthz", "/readyz", "/metrics"},
	}.Wrap(collector.Middleware(mux))

	logger.Info("delete specifications loaded", "specs", registry.Names(), "backup", cfg.BackupEnabled)
	if err := httpserver.Run(ctx, logger, httpCfg, httpserver.Wrap(logger, serviceName, handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
