package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/eventlog"
	"github.com/alanyoungcy/nftmarket/internal/metrics"
)

// Bus names shared by the node and the indexer.
const (
	EventStream  = "nftmarket:events"
	EventChannel = "nftmarket.events"
)

const flushTimeout = 10 * time.Second

// EventSink receives committed marketplace events.
type EventSink interface {
	Name() string
	Deliver(ctx context.Context, ev domain.MarketEvent) error
}

type funcSink struct {
	name string
	fn   func(context.Context, domain.MarketEvent) error
}

func (s funcSink) Name() string { return s.name }

func (s funcSink) Deliver(ctx context.Context, ev domain.MarketEvent) error { return s.fn(ctx, ev) }

// NewSink adapts a function to EventSink.
func NewSink(name string, fn func(context.Context, domain.MarketEvent) error) EventSink {
	return funcSink{name: name, fn: fn}
}

// BusSink appends events to the durable stream and publishes them for
// live subscribers.
type BusSink struct {
	bus domain.SignalBus
}

// NewBusSink creates a BusSink.
func NewBusSink(bus domain.SignalBus) *BusSink {
	return &BusSink{bus: bus}
}

func (b *BusSink) Name() string { return "redis" }

// Deliver writes ev to EventStream and EventChannel.
func (b *BusSink) Deliver(ctx context.Context, ev domain.MarketEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("bus_sink: marshal: %w", err)
	}
	if err := b.bus.StreamAppend(ctx, EventStream, payload); err != nil {
		return fmt.Errorf("bus_sink: stream append: %w", err)
	}
	if err := b.bus.Publish(ctx, EventChannel, payload); err != nil {
		return fmt.Errorf("bus_sink: publish: %w", err)
	}
	return nil
}

// Dispatcher fans committed receipts out to sinks. Enqueue never blocks,
// so it is safe to register with chain.Env.OnCommit.
type Dispatcher struct {
	sinks   []EventSink
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	queue  []*chain.Receipt
	signal chan struct{}
}

// NewDispatcher creates a Dispatcher delivering to sinks in order.
func NewDispatcher(sinks []EventSink, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sinks:   sinks,
		metrics: m,
		logger:  logger.With(slog.String("component", "dispatcher")),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue schedules rcpt for delivery.
func (d *Dispatcher) Enqueue(rcpt *chain.Receipt) {
	if rcpt == nil || len(rcpt.Logs) == 0 {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, rcpt)
	d.mu.Unlock()
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Pending reports how many receipts await delivery.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Run delivers queued receipts until ctx is cancelled, then flushes what
// is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.InfoContext(ctx, "dispatcher started", slog.Int("sinks", len(d.sinks)))
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			d.drain(flushCtx)
			cancel()
			d.logger.Info("dispatcher stopped")
			return nil
		case <-d.signal:
			d.drain(ctx)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, rcpt := range batch {
			for _, ev := range eventlog.Decode(rcpt) {
				d.deliver(ctx, ev)
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev domain.MarketEvent) {
	for _, s := range d.sinks {
		err := s.Deliver(ctx, ev)
		d.metrics.EventPublished(s.Name(), err)
		if err != nil {
			d.logger.WarnContext(ctx, "event delivery failed",
				slog.String("sink", s.Name()),
				slog.String("event", ev.Name),
				slog.String("id", ev.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
