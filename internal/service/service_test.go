package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/cache/redis"
	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/crypto"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/genesis"
	"github.com/alanyoungcy/nftmarket/internal/market"
	"github.com/alanyoungcy/nftmarket/internal/metrics"
	"github.com/alanyoungcy/nftmarket/internal/registry"
	"github.com/alanyoungcy/nftmarket/internal/state"
)

const (
	testChainID = 31337
	// Hardhat accounts #0 and #1.
	sellerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	buyerKey  = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

var (
	adminOwner = common.HexToAddress("0x000000000000000000000000000000000000ad01")
	oneEther   = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

type testChain struct {
	env    *chain.Env
	deps   genesis.Deployments
	seller *crypto.Signer
	buyer  *crypto.Signer
}

func newTestChain(t *testing.T) *testChain {
	t.Helper()
	seller, err := crypto.NewSigner(sellerKey, testChainID)
	require.NoError(t, err)
	buyer, err := crypto.NewSigner(buyerKey, testChainID)
	require.NoError(t, err)

	env := chain.NewEnv(state.NewMemory(), big.NewInt(testChainID), nil)
	genesis.RegisterCodes(env)
	deps, err := genesis.Ensure(context.Background(), env, genesis.Config{
		AdminOwner: adminOwner,
		Accounts: []genesis.Account{
			{Address: seller.Address(), Balance: new(big.Int).Mul(oneEther, big.NewInt(10))},
			{Address: buyer.Address(), Balance: new(big.Int).Mul(oneEther, big.NewInt(10))},
		},
	}, nil)
	require.NoError(t, err)
	return &testChain{env: env, deps: deps, seller: seller, buyer: buyer}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redis.Wrap(rdb, 1000)
}

func signed(t *testing.T, s *crypto.Signer, to common.Address, value *big.Int, data []byte, nonce uint64) *crypto.CallEnvelope {
	t.Helper()
	env := &crypto.CallEnvelope{To: to, Data: data, Nonce: hexutil.Uint64(nonce)}
	if value != nil {
		env.Value = (*hexutil.Big)(value)
	}
	require.NoError(t, s.SignCall(env))
	return env
}

func must(t *testing.T) func([]byte, error) []byte {
	return func(b []byte, err error) []byte {
		t.Helper()
		require.NoError(t, err)
		return b
	}
}

// listToken mints token 1 to the seller, approves the marketplace and
// lists it for one ether. It returns the seller's next nonce.
func listToken(t *testing.T, ctx context.Context, tx *TxService, tc *testChain) uint64 {
	t.Helper()
	pack := must(t)
	tokenID := big.NewInt(1)
	calls := []struct {
		to   common.Address
		data []byte
	}{
		{tc.deps.Registry, pack(registry.MintData(tokenID))},
		{tc.deps.Registry, pack(registry.ApproveData(tc.deps.Proxy, tokenID))},
		{tc.deps.Proxy, pack(market.CreateOrderData(tc.deps.Registry, tokenID, oneEther, true))},
	}
	for i, c := range calls {
		_, err := tx.Submit(ctx, signed(t, tc.seller, c.to, nil, c.data, uint64(i)))
		require.NoError(t, err)
	}
	return uint64(len(calls))
}

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fixedLimiter struct {
	allow bool
	err   error
}

func (l fixedLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return l.allow, l.err
}

type memIndex struct {
	mu      sync.Mutex
	applied []domain.MarketEvent
	fail    error
}

func (m *memIndex) ApplyEvent(_ context.Context, ev domain.MarketEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.applied = append(m.applied, ev)
	return nil
}

func (m *memIndex) ListOrders(context.Context, domain.OrderFilter) ([]domain.IndexedOrder, error) {
	return []domain.IndexedOrder{{Order: domain.Order{ID: 1}, Outcome: domain.OutcomeOpen}}, nil
}

func (m *memIndex) ListProposals(context.Context, uint64) ([]domain.Proposal, error) { return nil, nil }

func (m *memIndex) RecentEvents(context.Context, domain.ListOpts) ([]domain.MarketEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.MarketEvent(nil), m.applied...), nil
}

type memCursors struct{ m map[string]string }

func (c *memCursors) GetCursor(_ context.Context, name string) (string, error) { return c.m[name], nil }

func (c *memCursors) SetCursor(_ context.Context, name, id string) error {
	if c.m == nil {
		c.m = map[string]string{}
	}
	c.m[name] = id
	return nil
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) { return nil, nil }

var errBoom = errors.New("boom")

func counter(t *testing.T, m *metrics.Metrics, labels ...string) float64 {
	t.Helper()
	return testutil.ToFloat64(m.TxTotal.WithLabelValues(labels...))
}
