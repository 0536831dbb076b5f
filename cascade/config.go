package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/animus-labs/cascade/internal/platform/env"
)

type serviceConfig struct {
	CatalogPath   string
	SpecsPath     string
	RunTimeout    time.Duration
	BackupEnabled bool
	LogFormat     string
	MaxBodyBytes  int64
}

func serviceConfigFromEnv() (serviceConfig, error) {
	runTimeout, err := env.Duration("CASCADE_RUN_TIMEOUT", 5*time.Minute)
	if err != nil {
		return serviceConfig{}, err
	}
	backupEnabled, err := env.Bool("CASCADE_BACKUP_ENABLED", true)
	if err != nil {
		return serviceConfig{}, err
	}
	maxBody, err := env.Int64("CASCADE_MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return serviceConfig{}, err
	}
	cfg := serviceConfig{
		CatalogPath:   strings.TrimSpace(env.String("CASCADE_CATALOG_PATH", "config/catalog.yaml")),
		SpecsPath:     strings.TrimSpace(env.String("CASCADE_SPECS_PATH", "config/specs.yaml")),
		RunTimeout:    runTimeout,
		BackupEnabled: backupEnabled,
		LogFormat:     strings.ToLower(strings.TrimSpace(env.String("CASCADE_LOG_FORMAT", "json"))),
		MaxBodyBytes:  maxBody,
	}
	if err := cfg.Validate(); err != nil {
		return serviceConfig{}, err
	}
	return cfg, nil
}

func (c serviceConfig) Validate() error {
	if c.CatalogPath == "" {
		return errors.New("CASCADE_CATALOG_PATH is required")
	}
	if c.SpecsPath == "" {
		return errors.New("CASCADE_SPECS_PATH is required")
	}
	if c.RunTimeout < 0 {
		return errors.New("CASCADE_RUN_TIMEOUT must be >= 0")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("CASCADE_MAX_BODY_BYTES must be > 0")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("CASCADE_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

func newLogger(w io.Writer, format string) *slog.Logger {
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, nil))
	}
	return slog.New(slog.NewJSONHandler(w, nil))
}
