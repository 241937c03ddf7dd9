package service

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/cache/redis"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/metrics"
)

func TestIndexerStep(t *testing.T) {
	ctx := context.Background()
	bus := redis.NewSignalBus(newTestRedis(t))
	sink := NewBusSink(bus)

	require.NoError(t, sink.Deliver(ctx, domain.MarketEvent{ID: "a-0", Name: domain.EventOrderCreated, OrderID: 1}))
	require.NoError(t, bus.StreamAppend(ctx, EventStream, []byte("not json")))
	require.NoError(t, sink.Deliver(ctx, domain.MarketEvent{
		ID: "b-0", Name: domain.EventUpgraded, Implementation: common.HexToAddress("0x02"),
	}))

	index := &memIndex{}
	cursors := &memCursors{}
	audit := &memAudit{}
	m := metrics.New()
	ix := NewIndexer(bus, index, cursors, audit, m, nil)

	n, err := ix.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, index.applied, 2)
	assert.Equal(t, "a-0", index.applied[0].ID)
	assert.Equal(t, []string{"chain.Upgraded"}, audit.events)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsIndexed))
	assert.NotEmpty(t, cursors.m[indexerCursor])

	n, err = ix.Step(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIndexerStopsAtFailedApply(t *testing.T) {
	ctx := context.Background()
	bus := redis.NewSignalBus(newTestRedis(t))
	sink := NewBusSink(bus)
	require.NoError(t, sink.Deliver(ctx, domain.MarketEvent{ID: "a-0", Name: domain.EventOrderCreated, OrderID: 1}))

	index := &memIndex{fail: errBoom}
	cursors := &memCursors{}
	ix := NewIndexer(bus, index, cursors, nil, nil, nil)

	n, err := ix.Step(ctx)
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, n)
	assert.Empty(t, cursors.m[indexerCursor])

	index.fail = nil
	n, err = ix.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, index.applied, 1)
}

func TestIndexerRunStopsOnCancel(t *testing.T) {
	bus := redis.NewSignalBus(newTestRedis(t))
	ix := NewIndexer(bus, &memIndex{}, &memCursors{}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, ix.Run(ctx))
}
