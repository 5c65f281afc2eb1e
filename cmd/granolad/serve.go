package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KarlRaf/granola-linear-integration/internal/config"
	"github.com/KarlRaf/granola-linear-integration/internal/extraction"
	"github.com/KarlRaf/granola-linear-integration/internal/granola"
	"github.com/KarlRaf/granola-linear-integration/internal/linear"
	"github.com/KarlRaf/granola-linear-integration/internal/logging"
	"github.com/KarlRaf/granola-linear-integration/internal/metrics"
	"github.com/KarlRaf/granola-linear-integration/internal/processor"
	"github.com/KarlRaf/granola-linear-integration/internal/server"
	"github.com/KarlRaf/granola-linear-integration/internal/store"
	"github.com/KarlRaf/granola-linear-integration/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon: watch the cache, extract, serve the review API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

// deps holds everything the daemon wires together.
type deps struct {
	cfg       *config.Config
	logger    *logging.Logger
	store     *store.Store
	processor *processor.Processor
	linear    *linear.Client
	metrics   *metrics.Metrics
	registry  *prometheus.Registry
}

// initDeps loads configuration and builds the processing pipeline
// shared by serve and run.
func initDeps() (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	provider := cfg.Extraction.Provider
	pc := cfg.Extraction.Providers[provider]
	extractor, err := extraction.New(provider, extraction.Config{
		APIKey:  pc.APIKey.Value(),
		Model:   pc.Model,
		BaseURL: pc.BaseURL,
		Timeout: pc.Timeout.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize extractor: %w", err)
	}

	var lc *linear.Client
	if cfg.Linear.APIKey != "" {
		lc, err = linear.NewClient(linear.Config{
			APIKey:  cfg.Linear.APIKey.Value(),
			BaseURL: cfg.Linear.BaseURL,
			Timeout: cfg.Linear.Timeout.Duration(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize linear client: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	registry.MustRegister(metrics.NewItemStatusCollector(st.Stats))

	reader := granola.NewReader(cfg.Cache.Path, logger)
	proc, err := processor.New(reader, st, extractor, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize processor: %w", err)
	}

	return &deps{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		processor: proc,
		linear:    lc,
		metrics:   m,
		registry:  registry,
	}, nil
}

// loadConfig reads the YAML file (the --config flag or the default
// ~/.config/granolad/config.yaml when it exists) with environment
// variables layered on top.
func loadConfig() (*config.Config, error) {
	return config.LoadWithFile(configPath)
}

func serve() error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer func() {
		_ = d.logger.Sync()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.logger.Info(ctx, "starting granolad",
		zap.String("version", version),
		zap.String("cache_path", d.cfg.Cache.Path),
		zap.String("store_path", d.cfg.Store.Path),
		zap.Duration("poll_interval", d.cfg.Cache.PollInterval.Duration()),
		zap.Bool("http_enabled", d.cfg.Server.Enabled),
		zap.Bool("linear_enabled", d.linear != nil),
	)

	w, err := watcher.New(watcher.Config{
		CachePath:    d.cfg.Cache.Path,
		PollInterval: d.cfg.Cache.PollInterval.Duration(),
		Debounce:     d.cfg.Cache.Debounce.Duration(),
	}, d.processor, d.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()

	var srv *server.Server
	serverErr := make(chan error, 1)
	if d.cfg.Server.Enabled {
		// The interface values must stay nil when the clients are nil,
		// so build them conditionally.
		var issues server.IssueCreator
		if d.linear != nil {
			issues = d.linear
		}
		srv, err = server.NewServer(d.store, issues, w, d.metrics, d.registry, d.logger.Named("http"), &server.Config{
			Host:          d.cfg.Server.Host,
			Port:          d.cfg.Server.Port,
			DefaultTeamID: d.cfg.Linear.TeamID,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize http server: %w", err)
		}
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		d.logger.Info(ctx, "received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		d.logger.Error(ctx, "http server failed", zap.Error(err))
		return err
	}

	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout.Duration())
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn(shutdownCtx, "http shutdown incomplete", zap.Error(err))
		}
	}

	d.logger.Info(context.Background(), "shutdown complete")
	return nil
}
