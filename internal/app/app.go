// Package app assembles the marketplace process: it wires the configured
// backends, then runs the node, the indexer or both until the context ends.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/config"
)

// runner is the body of one run mode.
type runner func(a *App, ctx context.Context, deps *Dependencies) error

var runners = map[string]runner{
	config.ModeNode:    (*App).NodeMode,
	config.ModeIndexer: (*App).IndexerMode,
	config.ModeFull:    (*App).FullMode,
}

// App runs one process lifetime.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	cleanup func()
}

// New creates an App. Nothing is started until Run.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies and blocks in the configured mode until ctx is
// cancelled or a component fails. Resources stay open until Close.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	run, ok := runners[mode]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	started := time.Now()
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.mu.Lock()
	a.cleanup = cleanup
	a.mu.Unlock()
	a.logger.InfoContext(ctx, "dependencies ready",
		slog.String("mode", mode),
		slog.Duration("took", time.Since(started)),
	)

	return run(a, ctx, deps)
}

// Close releases what Run wired. Calling it again, or before Run, is a
// no-op.
func (a *App) Close() {
	a.mu.Lock()
	cleanup := a.cleanup
	a.cleanup = nil
	a.mu.Unlock()
	if cleanup == nil {
		return
	}
	a.logger.Info("releasing resources")
	cleanup()
}
