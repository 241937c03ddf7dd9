package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/cache/redis"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/market"
	"github.com/alanyoungcy/nftmarket/internal/metrics"
	"github.com/alanyoungcy/nftmarket/internal/registry"
)

func TestSubmitBuyFlow(t *testing.T) {
	ctx := context.Background()
	tc := newTestChain(t)
	rc := newTestRedis(t)
	m := metrics.New()
	tx := NewTxService(tc.env, redis.NewRateLimiter(rc), redis.NewReceiptCache(rc), m,
		TxConfig{ChainID: testChainID, RateLimit: 100, RateWindow: time.Minute}, nil)

	listToken(t, ctx, tx, tc)
	assert.Equal(t, 1.0, counter(t, m, "createOrder", "success"))

	buy := must(t)(market.BuyData(1))
	rcpt, err := tx.Submit(ctx, signed(t, tc.buyer, tc.deps.Proxy, oneEther, buy, 0))
	require.NoError(t, err)
	assert.Equal(t, 1.0, counter(t, m, "buy", "success"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SettlementVolume.WithLabelValues("buy")))

	got, err := tx.Receipt(ctx, rcpt.TxHash)
	require.NoError(t, err)
	assert.Equal(t, rcpt.Height, got.Height)

	owner, err := registry.OwnerOf(ctx, tc.env, tc.deps.Registry, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, tc.buyer.Address(), owner)
}

func TestSubmitRejectsBadEnvelopes(t *testing.T) {
	ctx := context.Background()
	tc := newTestChain(t)
	m := metrics.New()
	tx := NewTxService(tc.env, nil, nil, m, TxConfig{ChainID: testChainID}, nil)
	mint := must(t)(registry.MintData(big.NewInt(9)))

	t.Run("tampered", func(t *testing.T) {
		env := signed(t, tc.seller, tc.deps.Registry, nil, mint, 0)
		env.Nonce++
		_, err := tx.Submit(ctx, env)
		assert.ErrorIs(t, err, domain.ErrBadSignature)
	})

	t.Run("wrong chain", func(t *testing.T) {
		env := signed(t, tc.seller, tc.deps.Registry, nil, mint, 0)
		other := NewTxService(tc.env, nil, nil, nil, TxConfig{ChainID: 1}, nil)
		_, err := other.Submit(ctx, env)
		assert.ErrorIs(t, err, domain.ErrBadSignature)
	})

	t.Run("replay", func(t *testing.T) {
		env := signed(t, tc.seller, tc.deps.Registry, nil, mint, 0)
		_, err := tx.Submit(ctx, env)
		require.NoError(t, err)
		_, err = tx.Submit(ctx, env)
		assert.ErrorIs(t, err, domain.ErrBadNonce)
		assert.Equal(t, 1.0, counter(t, m, "mint", "error"))
	})

	t.Run("nil", func(t *testing.T) {
		_, err := tx.Submit(ctx, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("no receipt store", func(t *testing.T) {
		_, err := tx.Receipt(ctx, [32]byte{1})
		assert.ErrorIs(t, err, domain.ErrUnavailable)
	})
}

func TestSubmitRateLimited(t *testing.T) {
	ctx := context.Background()
	tc := newTestChain(t)
	tx := NewTxService(tc.env, fixedLimiter{allow: false}, nil, nil,
		TxConfig{ChainID: testChainID, RateLimit: 1, RateWindow: time.Second}, nil)

	mint := must(t)(registry.MintData(big.NewInt(3)))
	_, err := tx.Submit(ctx, signed(t, tc.seller, tc.deps.Registry, nil, mint, 0))
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	nonce, err := tc.env.Nonce(tc.seller.Address())
	require.NoError(t, err)
	assert.Zero(t, nonce)
}

func TestSubmitProceedsWhenLimiterDown(t *testing.T) {
	ctx := context.Background()
	tc := newTestChain(t)
	down := fixedLimiter{err: errors.New("redis: connection refused")}
	tx := NewTxService(tc.env, down, nil, nil,
		TxConfig{ChainID: testChainID, RateLimit: 1, RateWindow: time.Second}, nil)

	mint := must(t)(registry.MintData(big.NewInt(3)))
	rcpt, err := tx.Submit(ctx, signed(t, tc.seller, tc.deps.Registry, nil, mint, 0))
	require.NoError(t, err)
	assert.NotZero(t, rcpt.Height)

	owner, err := registry.OwnerOf(ctx, tc.env, tc.deps.Registry, big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, tc.seller.Address(), owner)
}

func TestSubmitMarketplaceFailure(t *testing.T) {
	ctx := context.Background()
	tc := newTestChain(t)
	tx := NewTxService(tc.env, nil, nil, nil, TxConfig{ChainID: testChainID}, nil)
	next := listToken(t, ctx, tx, tc)

	half := new(big.Int).Div(oneEther, big.NewInt(2))
	buy := must(t)(market.BuyData(1))
	_, err := tx.Submit(ctx, signed(t, tc.buyer, tc.deps.Proxy, half, buy, 0))
	assert.ErrorIs(t, err, domain.ErrInsufficientPayment)

	cancel := must(t)(market.CancelOrderData(1))
	_, err = tx.Submit(ctx, signed(t, tc.buyer, tc.deps.Proxy, nil, cancel, 0))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = tx.Submit(ctx, signed(t, tc.seller, tc.deps.Proxy, nil, cancel, next))
	require.NoError(t, err)
}
