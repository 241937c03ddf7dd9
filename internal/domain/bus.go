package domain

import (
	"context"
	"time"
)

// SignalBus carries decoded market events between replicas. The dispatcher
// appends every event to a durable stream for the indexer and publishes the
// same payload on a channel for live WebSocket subscribers.
type SignalBus interface {
	// Publish fans payload out to current subscribers of channel. Nothing
	// is retained for late joiners.
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	// StreamAppend and StreamRead back the indexer cursor. lastID is the
	// last entry already projected; "0" reads from the start.
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// StreamMessage is one event payload read back from the event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// RateLimiter budgets transaction submissions per sender address and per
// client IP, shared across API replicas.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager serialises state snapshots so one replica writes a given
// snapshot at a time. unlock is safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
