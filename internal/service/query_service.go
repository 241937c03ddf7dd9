package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/genesis"
	"github.com/alanyoungcy/nftmarket/internal/market"
	"github.com/alanyoungcy/nftmarket/internal/proxy"
	"github.com/alanyoungcy/nftmarket/internal/registry"
)

// Node is the read surface of the execution environment.
type Node interface {
	market.Backend
	Balance(addr common.Address) (*big.Int, error)
	Nonce(addr common.Address) (uint64, error)
	Height() (uint64, error)
	StorageAt(addr common.Address, key string) ([]byte, error)
}

// Account is an externally owned account as reported by the API.
type Account struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
	Nonce   uint64         `json:"nonce"`
}

// VersionInfo describes the logic currently behind the proxy.
type VersionInfo struct {
	Version        uint64         `json:"version"`
	Proxy          common.Address `json:"proxy"`
	Implementation common.Address `json:"implementation"`
	Admin          common.Address `json:"admin"`
	Height         uint64         `json:"height"`
}

// QueryService answers read requests from live state and the read model.
type QueryService struct {
	node   Node
	deps   genesis.Deployments
	market *market.Client
	index  domain.OrderIndex
}

// NewQueryService creates a QueryService. index may be nil when the read
// model is not configured.
func NewQueryService(node Node, deps genesis.Deployments, index domain.OrderIndex) *QueryService {
	return &QueryService{
		node:   node,
		deps:   deps,
		market: market.NewClient(node, deps.Proxy),
		index:  index,
	}
}

// Deployments returns the address book.
func (q *QueryService) Deployments() genesis.Deployments { return q.deps }

// Version reports the logic version reachable through the proxy.
func (q *QueryService) Version(ctx context.Context) (VersionInfo, error) {
	v, err := q.market.Version(ctx)
	if err != nil {
		return VersionInfo{}, fmt.Errorf("query_service: version: %w", err)
	}
	impl, err := proxy.Implementation(q.node, q.deps.Proxy)
	if err != nil {
		return VersionInfo{}, fmt.Errorf("query_service: implementation: %w", err)
	}
	admin, err := proxy.AdminOf(q.node, q.deps.Proxy)
	if err != nil {
		return VersionInfo{}, fmt.Errorf("query_service: admin: %w", err)
	}
	h, err := q.node.Height()
	if err != nil {
		return VersionInfo{}, fmt.Errorf("query_service: height: %w", err)
	}
	return VersionInfo{Version: v, Proxy: q.deps.Proxy, Implementation: impl, Admin: admin, Height: h}, nil
}

// Account returns the balance and next nonce of addr.
func (q *QueryService) Account(_ context.Context, addr common.Address) (Account, error) {
	bal, err := q.node.Balance(addr)
	if err != nil {
		return Account{}, fmt.Errorf("query_service: balance: %w", err)
	}
	nonce, err := q.node.Nonce(addr)
	if err != nil {
		return Account{}, fmt.Errorf("query_service: nonce: %w", err)
	}
	return Account{Address: addr, Balance: bal, Nonce: nonce}, nil
}

// Order reads an order through the proxy.
func (q *QueryService) Order(ctx context.Context, id uint64) (domain.Order, error) {
	o, err := q.market.Order(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("query_service: order %d: %w", id, err)
	}
	return o, nil
}

// Proposals reads every proposal made on an order.
func (q *QueryService) Proposals(ctx context.Context, id uint64) ([]domain.Proposal, error) {
	if _, err := q.market.Order(ctx, id); err != nil {
		return nil, fmt.Errorf("query_service: order %d: %w", id, err)
	}
	ps, err := q.market.Proposals(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("query_service: proposals %d: %w", id, err)
	}
	return ps, nil
}

// OwnerOf reads the owner of a token from a registry contract.
func (q *QueryService) OwnerOf(ctx context.Context, contract common.Address, tokenID *big.Int) (common.Address, error) {
	owner, err := registry.OwnerOf(ctx, q.node, contract, tokenID)
	if err != nil {
		return common.Address{}, fmt.Errorf("query_service: %w", err)
	}
	return owner, nil
}

// ListOrders lists indexed orders.
func (q *QueryService) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.IndexedOrder, error) {
	if q.index == nil {
		return nil, fmt.Errorf("query_service: list orders: %w", domain.ErrUnavailable)
	}
	return q.index.ListOrders(ctx, f)
}

// RecentEvents lists the latest indexed events.
func (q *QueryService) RecentEvents(ctx context.Context, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	if q.index == nil {
		return nil, fmt.Errorf("query_service: recent events: %w", domain.ErrUnavailable)
	}
	return q.index.RecentEvents(ctx, opts)
}
