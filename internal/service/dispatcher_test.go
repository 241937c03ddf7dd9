package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/cache/redis"
	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/metrics"
)

type recordingSink struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingSink) deliver(_ context.Context, ev domain.MarketEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, ev.Name)
	return nil
}

func (r *recordingSink) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func TestDispatcherDeliversCommittedEvents(t *testing.T) {
	tc := newTestChain(t)
	m := metrics.New()
	rec := &recordingSink{}
	failing := NewSink("broken", func(context.Context, domain.MarketEvent) error { return errBoom })
	d := NewDispatcher([]EventSink{failing, NewSink("recorder", rec.deliver)}, m, nil)
	tc.env.OnCommit(d.Enqueue)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	tx := NewTxService(tc.env, nil, nil, nil, TxConfig{ChainID: testChainID}, nil)
	listToken(t, context.Background(), tx, tc)

	// Approval logs are not tracked, so mint and createOrder yield one event each.
	require.Eventually(t, func() bool { return len(rec.seen()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{domain.EventTransfer, domain.EventOrderCreated}, rec.seen())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("broken", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("recorder", "success")))

	cancel()
	require.NoError(t, <-done)
}

func TestDispatcherFlushesOnShutdown(t *testing.T) {
	rec := &recordingSink{}
	d := NewDispatcher([]EventSink{NewSink("recorder", rec.deliver)}, nil, nil)

	tc := newTestChain(t)
	tc.env.OnCommit(d.Enqueue)
	tx := NewTxService(tc.env, nil, nil, nil, TxConfig{ChainID: testChainID}, nil)
	listToken(t, context.Background(), tx, tc)
	assert.Equal(t, 3, d.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))
	assert.Zero(t, d.Pending())
	assert.Contains(t, rec.seen(), domain.EventOrderCreated)
}

func TestDispatcherSkipsEmptyReceipts(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	d.Enqueue(nil)
	d.Enqueue(&chain.Receipt{})
	assert.Zero(t, d.Pending())
}

func TestBusSinkWritesStreamAndChannel(t *testing.T) {
	ctx := context.Background()
	rc := newTestRedis(t)
	bus := redis.NewSignalBus(rc)

	sub, err := bus.Subscribe(ctx, EventChannel)
	require.NoError(t, err)

	ev := domain.MarketEvent{ID: "0xabc-0", Name: domain.EventOrderCancelled, OrderID: 7}
	require.NoError(t, NewBusSink(bus).Deliver(ctx, ev))

	msgs, err := bus.StreamRead(ctx, EventStream, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var got domain.MarketEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
	assert.Equal(t, uint64(7), got.OrderID)

	select {
	case payload := <-sub:
		assert.Contains(t, string(payload), domain.EventOrderCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("no pub/sub message")
	}
}
