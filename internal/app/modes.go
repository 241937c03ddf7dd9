package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/nftmarket/internal/server"
	"github.com/alanyoungcy/nftmarket/internal/server/handler"
	"github.com/alanyoungcy/nftmarket/internal/server/ws"
	"github.com/alanyoungcy/nftmarket/internal/service"
)

// NodeMode executes transactions, fans committed events out to the bus,
// Kafka and notification sinks, takes periodic snapshots and serves the API.
func (a *App) NodeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting node mode")

	g, ctx := errgroup.WithContext(ctx)

	handlers := a.startNode(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, handlers)
	}

	return g.Wait()
}

// IndexerMode consumes the event stream into the Postgres read model and
// serves list queries from it. No transactions are executed.
func (a *App) IndexerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting indexer mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startIndexer(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, server.Handlers{
			Health: handler.NewHealthHandler(a.cfg.Mode, deps.Probes, a.logger),
			Index:  handler.NewIndexHandler(deps.OrderIndex, a.logger),
		})
	}

	return g.Wait()
}

// FullMode runs the node and the indexer in one process behind a single
// HTTP server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	handlers := a.startNode(ctx, g, deps)
	a.startIndexer(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, handlers)
	}

	return g.Wait()
}

// startNode launches the event dispatcher and the snapshot loop and returns
// the handlers backed by the live world state.
func (a *App) startNode(ctx context.Context, g *errgroup.Group, deps *Dependencies) server.Handlers {
	sinks := []service.EventSink{service.NewBusSink(deps.SignalBus)}
	if deps.Exporter != nil {
		sinks = append(sinks, service.NewSink("kafka", deps.Exporter.Export))
	}
	if deps.Notifier != nil {
		sinks = append(sinks, service.NewSink("notify", deps.Notifier.NotifyEvent))
	}
	dispatcher := service.NewDispatcher(sinks, deps.Metrics, a.logger)
	deps.Env.OnCommit(dispatcher.Enqueue)
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	var snapshots handler.Snapshotter
	if deps.Snapshots != nil {
		snapshots = deps.Snapshots
		if a.cfg.Snapshot.Enabled {
			interval := a.cfg.Snapshot.Interval.Duration
			g.Go(func() error {
				return deps.Snapshots.Run(ctx, interval)
			})
		}
	}

	txSvc := service.NewTxService(deps.Env, deps.RateLimiter, deps.Receipts, deps.Metrics, service.TxConfig{
		ChainID:    a.cfg.Chain.ChainID,
		RateLimit:  a.cfg.Server.TxRateLimit,
		RateWindow: a.cfg.Server.TxRateWindow.Duration,
	}, a.logger)
	query := service.NewQueryService(deps.Env, deps.Deployments, deps.OrderIndex)

	a.logger.InfoContext(ctx, "marketplace deployed",
		slog.String("proxy", deps.Deployments.Proxy.Hex()),
		slog.String("registry", deps.Deployments.Registry.Hex()),
	)

	return server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode, deps.Probes, a.logger),
		Market: handler.NewMarketHandler(query, a.logger),
		Index:  handler.NewIndexHandler(query, a.logger),
		Tx:     handler.NewTxHandler(txSvc, a.logger),
		Admin:  handler.NewAdminHandler(snapshots, deps.AuditStore, a.logger),
	}
}

// startIndexer launches the stream consumer that projects events into the
// read model.
func (a *App) startIndexer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	ix := service.NewIndexer(deps.SignalBus, deps.OrderIndex, deps.Cursors, deps.AuditStore, deps.Metrics, a.logger)
	g.Go(func() error {
		return ix.Run(ctx)
	})
}

// startHTTPServer registers the API server, the WebSocket relay and a
// graceful shutdown hook with the errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, handlers server.Handlers) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Channel:   service.EventChannel,
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
		Origins:   a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:           a.cfg.Server.Port,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		AdminToken:     a.cfg.Server.AdminToken,
		TxRateLimit:    a.cfg.Server.TxRateLimit,
		TxRateWindow:   a.cfg.Server.TxRateWindow.Duration,
		TrustedProxies: a.cfg.Server.TrustedProxies,
	}, handlers, deps.RateLimiter, hub, deps.Metrics, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
