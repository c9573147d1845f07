package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperjump/shikibetsu/internal/extract"
	"github.com/hyperjump/shikibetsu/internal/indexer"
	"github.com/hyperjump/shikibetsu/internal/intent"
	"github.com/hyperjump/shikibetsu/internal/server"
	"github.com/hyperjump/shikibetsu/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewServerCmd starts the HTTP API and the seed file watcher.
func NewServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server over local storage. Seed files listed under watch.files
are imported on start and reimported whenever they change.`,
		Args: cobra.NoArgs,
		RunE: runServer,
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if url, _ := cmd.Flags().GetString("server"); url != "" {
		return errors.New("server runs on local storage; drop --server")
	}
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := s.logger
	defer func() { _ = logger.Sync() }()
	cfg := s.cfg
	logger.Info("config loaded",
		zap.String("config_path", s.configPath),
		zap.Bool("debug", s.debug),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Close()

	if len(cfg.Watch.Files) > 0 {
		if components.Pipeline.Mode() == intent.ModeClassifier {
			logger.Warn("watch.files ignored in classifier mode")
		} else if err := startWatcher(ctx, s, components.Pipeline); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
	}

	srv := server.NewServer(components.Pipeline, components.Engine, cfg, logger)
	errc := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// startWatcher imports the configured seed files and reimports them on change.
// It stops when ctx is cancelled.
func startWatcher(ctx context.Context, s *settings, target indexer.BatchAdder) error {
	cfg, logger := s.cfg, s.logger
	idx := indexer.NewIndexer(target, extract.NewExtractor(), cfg.Watch.ExistOKOrDefault(), indexer.WithLogger(logger))
	opts := []watcher.WatcherOption{watcher.WithDebounce(cfg.Watch.Debounce)}
	if s.debug {
		opts = append(opts, watcher.WithLogger(logger))
	}
	w := watcher.NewWatcher(cfg.Watch.Files,
		func(path string) {
			if _, err := idx.IndexFile(ctx, path); err != nil {
				logger.Warn("seed import failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(path string) {
			idx.Forget(path)
			logger.Info("seed file removed; its examples stay stored", zap.String("path", path))
		},
		opts...,
	)
	if err := w.Start(ctx); err != nil {
		return err
	}
	if err := w.SyncExistingFiles(); err != nil {
		logger.Warn("initial seed import incomplete", zap.Error(err))
	}
	return nil
}
