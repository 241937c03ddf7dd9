package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3blob "github.com/alanyoungcy/nftmarket/internal/blob/s3"
	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/crypto"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/genesis"
	"github.com/alanyoungcy/nftmarket/internal/market"
	"github.com/alanyoungcy/nftmarket/internal/metrics"
	"github.com/alanyoungcy/nftmarket/internal/registry"
	"github.com/alanyoungcy/nftmarket/internal/server/handler"
	"github.com/alanyoungcy/nftmarket/internal/service"
	"github.com/alanyoungcy/nftmarket/internal/state"
)

const (
	testChainID = 31337
	sellerKey   = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	buyerKey    = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	adminToken  = "s3cret"
)

type fixture struct {
	srv    *httptest.Server
	deps   genesis.Deployments
	seller *crypto.Signer
	buyer  *crypto.Signer
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type stubAudit struct{}

func (stubAudit) Log(context.Context, string, map[string]any) error { return nil }

func (stubAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return []domain.AuditEntry{{ID: 7, Event: "snapshot.export", Detail: map[string]any{"limit": opts.Limit}}}, nil
}

type stubSnapshots struct{}

func (stubSnapshots) Take(context.Context) (s3blob.SnapshotInfo, error) {
	return s3blob.SnapshotInfo{Path: "snapshots/1.jsonl", Height: 1}, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	seller, err := crypto.NewSigner(sellerKey, testChainID)
	require.NoError(t, err)
	buyer, err := crypto.NewSigner(buyerKey, testChainID)
	require.NoError(t, err)

	env := chain.NewEnv(state.NewMemory(), big.NewInt(testChainID), logger)
	genesis.RegisterCodes(env)
	ten := new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))
	deps, err := genesis.Ensure(context.Background(), env, genesis.Config{
		AdminOwner: common.HexToAddress("0xad01"),
		Accounts: []genesis.Account{
			{Address: seller.Address(), Balance: ten},
			{Address: buyer.Address(), Balance: ten},
		},
	}, logger)
	require.NoError(t, err)

	m := metrics.New()
	txs := service.NewTxService(env, nil, nil, m, service.TxConfig{ChainID: testChainID}, logger)
	q := service.NewQueryService(env, deps, nil)
	s := NewServer(Config{AdminToken: adminToken}, Handlers{
		Health: handler.NewHealthHandler("node", map[string]handler.Pinger{
			"redis":    pingFunc(func(context.Context) error { return nil }),
			"postgres": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
		}, logger),
		Market: handler.NewMarketHandler(q, logger),
		Index:  handler.NewIndexHandler(q, logger),
		Tx:     handler.NewTxHandler(txs, logger),
		Admin:  handler.NewAdminHandler(stubSnapshots{}, stubAudit{}, logger),
	}, nil, nil, m, logger)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: ts, deps: deps, seller: seller, buyer: buyer}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) submit(t *testing.T, s *crypto.Signer, to common.Address, value *big.Int, data []byte, nonce uint64) (int, map[string]any) {
	t.Helper()
	env := &crypto.CallEnvelope{To: to, Data: data, Nonce: hexutil.Uint64(nonce)}
	if value != nil {
		env.Value = (*hexutil.Big)(value)
	}
	require.NoError(t, s.SignCall(env))
	body, err := json.Marshal(env)
	require.NoError(t, err)

	resp, err := http.Post(f.srv.URL+"/api/tx", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func pack(t *testing.T) func([]byte, error) []byte {
	return func(b []byte, err error) []byte {
		t.Helper()
		require.NoError(t, err)
		return b
	}
}

func TestHealthAndDeployments(t *testing.T) {
	f := newFixture(t)

	var health map[string]any
	assert.Equal(t, http.StatusOK, f.get(t, "/api/health", &health))
	assert.Equal(t, "ok", health["status"])

	var ready struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/ready", &ready))
	assert.Equal(t, "degraded", ready.Status)
	assert.Equal(t, map[string]string{"redis": "up", "postgres": "down"}, ready.Checks)

	var deps genesis.Deployments
	assert.Equal(t, http.StatusOK, f.get(t, "/api/deployments", &deps))
	assert.Equal(t, f.deps, deps)

	var v service.VersionInfo
	assert.Equal(t, http.StatusOK, f.get(t, "/api/version", &v))
	assert.Equal(t, uint64(1), v.Version)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	p := pack(t)
	token := big.NewInt(42)
	price := big.NewInt(1000)

	code, _ := f.submit(t, f.seller, f.deps.Registry, nil, p(registry.MintData(token)), 0)
	require.Equal(t, http.StatusOK, code)
	code, _ = f.submit(t, f.seller, f.deps.Registry, nil, p(registry.ApproveData(f.deps.Proxy, token)), 1)
	require.Equal(t, http.StatusOK, code)
	code, out := f.submit(t, f.seller, f.deps.Proxy, nil, p(market.CreateOrderData(f.deps.Registry, token, price, true)), 2)
	require.Equal(t, http.StatusOK, code)
	events := out["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderCreated, events[0].(map[string]any)["name"])

	var order domain.Order
	assert.Equal(t, http.StatusOK, f.get(t, "/api/orders/1", &order))
	assert.True(t, order.Active)
	assert.Equal(t, 0, order.Price.Cmp(price))

	// Proposal at or above the price is rejected.
	code, _ = f.submit(t, f.buyer, f.deps.Proxy, nil, p(market.ProposePriceData(1, price)), 0)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.submit(t, f.buyer, f.deps.Proxy, nil, p(market.ProposePriceData(1, big.NewInt(500))), 0)
	require.Equal(t, http.StatusOK, code)

	var props struct {
		Proposals []domain.Proposal `json:"proposals"`
	}
	assert.Equal(t, http.StatusOK, f.get(t, "/api/orders/1/proposals", &props))
	require.Len(t, props.Proposals, 1)
	assert.Equal(t, domain.ProposalPending, props.Proposals[0].Status)

	// Only the seller may accept.
	code, _ = f.submit(t, f.buyer, f.deps.Proxy, nil, p(market.AcceptProposalData(1, 0)), 1)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.submit(t, f.buyer, f.deps.Proxy, big.NewInt(999), p(market.BuyData(1)), 1)
	assert.Equal(t, http.StatusPaymentRequired, code)

	code, _ = f.submit(t, f.buyer, f.deps.Proxy, price, p(market.BuyData(1)), 1)
	require.Equal(t, http.StatusOK, code)

	var owner struct {
		Owner common.Address `json:"owner"`
	}
	assert.Equal(t, http.StatusOK, f.get(t, "/api/tokens/"+f.deps.Registry.Hex()+"/42/owner", &owner))
	assert.Equal(t, f.buyer.Address(), owner.Owner)

	code, _ = f.submit(t, f.buyer, f.deps.Proxy, price, p(market.BuyData(1)), 2)
	assert.Equal(t, http.StatusConflict, code)

	var acct map[string]any
	assert.Equal(t, http.StatusOK, f.get(t, "/api/accounts/"+f.buyer.Address().Hex(), &acct))
	assert.Equal(t, float64(2), acct["nonce"])
}

func TestRequestErrors(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/orders/7", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/orders/abc", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/accounts/nope", nil))
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/orders", nil))

	// Stale nonce.
	p := pack(t)
	code, _ := f.submit(t, f.seller, f.deps.Registry, nil, p(registry.MintData(big.NewInt(1))), 5)
	assert.Equal(t, http.StatusConflict, code)

	resp, err := http.Post(f.srv.URL+"/api/tx", "application/json", strings.NewReader(`{"to":"0x0000000000000000000000000000000000000001","data":"0x","nonce":"0x0"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Post(f.srv.URL+"/api/tx", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminSnapshotRequiresToken(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.srv.URL+"/api/admin/snapshot", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/admin/snapshot", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestAdminAuditLog(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.get(t, "/api/admin/audit", nil))

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/admin/audit?limit=5", nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Token", adminToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "snapshot.export", entries[0]["event"])
	assert.Equal(t, float64(5), entries[0]["detail"].(map[string]any)["limit"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.get(t, "/api/health", nil)

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/tx", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
