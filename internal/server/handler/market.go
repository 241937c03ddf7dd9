package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/genesis"
	"github.com/alanyoungcy/nftmarket/internal/service"
)

// QueryService defines the read operations the market handler requires
// from the service layer.
type QueryService interface {
	Deployments() genesis.Deployments
	Version(ctx context.Context) (service.VersionInfo, error)
	Account(ctx context.Context, addr common.Address) (service.Account, error)
	Order(ctx context.Context, id uint64) (domain.Order, error)
	Proposals(ctx context.Context, id uint64) ([]domain.Proposal, error)
	OwnerOf(ctx context.Context, contract common.Address, tokenID *big.Int) (common.Address, error)
}

// MarketHandler serves marketplace reads.
type MarketHandler struct {
	q      QueryService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(q QueryService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{q: q, logger: logHandler(logger, "market")}
}

// Deployments returns the address book.
// GET /api/deployments
func (h *MarketHandler) Deployments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.q.Deployments())
}

// Version reports the logic version behind the proxy.
// GET /api/version
func (h *MarketHandler) Version(w http.ResponseWriter, r *http.Request) {
	v, err := h.q.Version(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to read version", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetAccount returns balance and next nonce.
// GET /api/accounts/{address}
func (h *MarketHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	acct, err := h.q.Account(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to read account", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": acct.Address,
		"balance": acct.Balance.String(),
		"nonce":   acct.Nonce,
	})
}

// GetOrder reads one order from live state.
// GET /api/orders/{id}
func (h *MarketHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	o, err := h.q.Order(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to read order", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ListProposals reads every proposal on an order.
// GET /api/orders/{id}/proposals
func (h *MarketHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	ps, err := h.q.Proposals(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to read proposals", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": ps})
}

// OwnerOf reads a token's owner from a registry.
// GET /api/tokens/{contract}/{id}/owner
func (h *MarketHandler) OwnerOf(w http.ResponseWriter, r *http.Request) {
	contract, ok := pathAddress(r, "contract")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid contract address")
		return
	}
	tokenID, ok := pathBig(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}
	owner, err := h.q.OwnerOf(r.Context(), contract, tokenID)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to read owner", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contract": contract,
		"tokenId":  tokenID.String(),
		"owner":    owner,
	})
}
