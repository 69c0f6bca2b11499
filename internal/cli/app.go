package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"fishercore/internal/config"
	"fishercore/internal/core"
	"fishercore/internal/logging"

	"github.com/prometheus/client_golang/prometheus"
)

// app is the service stack one command invocation works against.
type app struct {
	cfg         config.Config
	logger      *slog.Logger
	svc         *core.Service
	registry    *prometheus.Registry
	metricsFile string
}

func openApp(ctx context.Context, opts *RootOptions, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return nil, err
	}
	logging.SetLogger(logger)
	logger.Debug("opening store", "driver", cfg.Storage.Driver, "sqlite_path", cfg.Storage.SQLitePath, "postgres_dsn", config.RedactDSN(cfg.Storage.PostgresDSN))

	registry := prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetrics(registry, cfg.Metrics.Namespace)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	store, err := core.OpenPersistentStore(cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	archive, err := core.OpenCatchArchive(ctx, cfg)
	if err != nil {
		if c, ok := store.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}

	l := core.NewSlogLogger(logger)
	svc := core.NewService(store,
		core.WithLogger(l),
		core.WithAuditRecorder(core.NewLogAuditRecorder(l)),
		core.WithMetricsRecorder(metrics),
		core.WithEventSink(metrics),
		core.WithEventSink(core.NewLogEventSink(l)),
		core.WithCatchArchive(archive),
	)
	return &app{cfg: cfg, logger: logger, svc: svc, registry: registry, metricsFile: opts.MetricsFile}, nil
}

// Close flushes metrics (when requested) and releases the store.
func (a *app) Close() error {
	var errs []error
	if a.metricsFile != "" {
		if err := prometheus.WriteToTextfile(a.metricsFile, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if err := a.svc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// withApp opens the stack, runs fn and closes it, keeping fn's error first.
func withApp(ctx context.Context, opts *RootOptions, stderr io.Writer, fn func(*app) error) (err error) {
	a, err := openApp(ctx, opts, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a)
}
