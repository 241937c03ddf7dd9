package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/metrics"
)

const (
	indexerCursor    = "indexer"
	indexerBatchSize = 100
)

// Indexer projects events from the durable stream into the read model.
// Delivery is at-least-once; OrderIndex.ApplyEvent is idempotent per
// event id.
type Indexer struct {
	bus     domain.SignalBus
	index   domain.OrderIndex
	cursors domain.CursorStore
	audit   domain.AuditStore
	metrics *metrics.Metrics
	poll    time.Duration
	logger  *slog.Logger
}

// NewIndexer creates an Indexer. audit and m may be nil.
func NewIndexer(bus domain.SignalBus, index domain.OrderIndex, cursors domain.CursorStore, audit domain.AuditStore, m *metrics.Metrics, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		bus:     bus,
		index:   index,
		cursors: cursors,
		audit:   audit,
		metrics: m,
		poll:    time.Second,
		logger:  logger.With(slog.String("component", "indexer")),
	}
}

// Step processes one batch and returns how many stream entries it
// consumed. The cursor only advances past entries that were applied or
// are unreadable.
func (ix *Indexer) Step(ctx context.Context) (int, error) {
	cursor, err := ix.cursors.GetCursor(ctx, indexerCursor)
	if err != nil {
		return 0, fmt.Errorf("indexer: get cursor: %w", err)
	}
	if cursor == "" {
		cursor = "0"
	}

	msgs, err := ix.bus.StreamRead(ctx, EventStream, cursor, indexerBatchSize)
	if err != nil {
		return 0, fmt.Errorf("indexer: read stream: %w", err)
	}

	done := 0
	for _, msg := range msgs {
		var ev domain.MarketEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil || ev.ID == "" {
			ix.logger.WarnContext(ctx, "skipping malformed stream entry", slog.String("stream_id", msg.ID))
		} else {
			if err := ix.index.ApplyEvent(ctx, ev); err != nil {
				return done, fmt.Errorf("indexer: apply %s: %w", ev.ID, err)
			}
			ix.metrics.EventIndexed()
			ix.auditAdmin(ctx, ev)
		}
		if err := ix.cursors.SetCursor(ctx, indexerCursor, msg.ID); err != nil {
			return done, fmt.Errorf("indexer: set cursor: %w", err)
		}
		done++
	}
	return done, nil
}

// Run calls Step until ctx is cancelled, sleeping when the stream is idle
// or a step fails.
func (ix *Indexer) Run(ctx context.Context) error {
	ix.logger.InfoContext(ctx, "indexer started")
	for {
		n, err := ix.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			ix.logger.ErrorContext(ctx, "indexer step failed", slog.String("error", err.Error()))
		}
		if err != nil || n == 0 {
			select {
			case <-ctx.Done():
				ix.logger.Info("indexer stopped")
				return nil
			case <-time.After(ix.poll):
			}
		}
	}
}

func (ix *Indexer) auditAdmin(ctx context.Context, ev domain.MarketEvent) {
	if ix.audit == nil {
		return
	}
	detail := map[string]any{
		"tx":       ev.TxHash.Hex(),
		"height":   ev.Height,
		"contract": ev.Contract.Hex(),
	}
	switch ev.Name {
	case domain.EventUpgraded:
		detail["implementation"] = ev.Implementation.Hex()
	case domain.EventAdminChanged, domain.EventOwnershipTransferred:
		detail["previous"] = ev.PreviousAdmin.Hex()
		detail["new"] = ev.NewAdmin.Hex()
	case domain.EventInitialized:
		detail["version"] = ev.Version
	default:
		return
	}
	if err := ix.audit.Log(ctx, "chain."+ev.Name, detail); err != nil {
		ix.logger.WarnContext(ctx, "audit log failed", slog.String("event", ev.Name), slog.String("error", err.Error()))
	}
}
