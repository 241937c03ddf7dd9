package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/nftmarket/internal/blob/s3"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/metrics"
)

const snapshotLock = "snapshot"

// SnapshotStore persists world-state snapshots.
type SnapshotStore interface {
	Export(ctx context.Context, src s3blob.StateSource) (s3blob.SnapshotInfo, error)
	Latest(ctx context.Context) (string, error)
	Restore(ctx context.Context, path string, dst s3blob.StateSink) (s3blob.SnapshotInfo, error)
}

// WorldState is what snapshots are taken from and restored into.
type WorldState interface {
	s3blob.StateSource
	s3blob.StateSink
}

// SnapshotService takes periodic and on-demand state snapshots. A
// distributed lock keeps replicas from exporting concurrently.
type SnapshotService struct {
	store   SnapshotStore
	state   WorldState
	locks   domain.LockManager
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewSnapshotService creates a SnapshotService. locks and m may be nil.
func NewSnapshotService(store SnapshotStore, st WorldState, locks domain.LockManager, m *metrics.Metrics, logger *slog.Logger) *SnapshotService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotService{
		store:   store,
		state:   st,
		locks:   locks,
		metrics: m,
		logger:  logger.With(slog.String("component", "snapshot_service")),
	}
}

// Take exports the current state. It returns domain.ErrLockHeld when
// another replica is exporting.
func (s *SnapshotService) Take(ctx context.Context) (s3blob.SnapshotInfo, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, snapshotLock, 10*time.Minute)
		if err != nil {
			return s3blob.SnapshotInfo{}, fmt.Errorf("snapshot_service: lock: %w", err)
		}
		defer unlock()
	}
	info, err := s.store.Export(ctx, s.state)
	s.metrics.SnapshotTaken(err)
	if err != nil {
		return s3blob.SnapshotInfo{}, fmt.Errorf("snapshot_service: %w", err)
	}
	return info, nil
}

// RestoreLatest loads the newest snapshot into an empty state. It returns
// false without error when there is nothing to restore.
func (s *SnapshotService) RestoreLatest(ctx context.Context) (bool, error) {
	path, err := s.store.Latest(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("snapshot_service: latest: %w", err)
	}
	if _, err := s.store.Restore(ctx, path, s.state); err != nil {
		return false, fmt.Errorf("snapshot_service: %w", err)
	}
	return true, nil
}

// Run takes a snapshot every interval until ctx is cancelled.
func (s *SnapshotService) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "snapshot loop started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			info, err := s.Take(ctx)
			switch {
			case errors.Is(err, domain.ErrLockHeld):
				s.logger.DebugContext(ctx, "snapshot skipped, lock held elsewhere")
			case err != nil:
				s.logger.ErrorContext(ctx, "snapshot failed", slog.String("error", err.Error()))
			default:
				s.logger.InfoContext(ctx, "snapshot taken", slog.String("path", info.Path), slog.Uint64("height", info.Height))
			}
		}
	}
}
