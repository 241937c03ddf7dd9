package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// ReadModel lists projected orders and events.
type ReadModel interface {
	ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.IndexedOrder, error)
	RecentEvents(ctx context.Context, opts domain.ListOpts) ([]domain.MarketEvent, error)
}

// IndexHandler serves list queries from the read model.
type IndexHandler struct {
	index  ReadModel
	logger *slog.Logger
}

// NewIndexHandler creates an IndexHandler.
func NewIndexHandler(index ReadModel, logger *slog.Logger) *IndexHandler {
	return &IndexHandler{index: index, logger: logHandler(logger, "index")}
}

// ListOrders lists indexed orders.
// GET /api/orders?seller=0x...&active=true&limit=50&offset=0
func (h *IndexHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.OrderFilter{ListOpts: parseListOpts(r)}
	if v := q.Get("seller"); v != "" {
		if !common.IsHexAddress(v) {
			writeError(w, http.StatusBadRequest, "invalid seller address")
			return
		}
		seller := common.HexToAddress(v)
		f.Seller = &seller
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "active must be a boolean")
			return
		}
		f.Active = &active
	}

	orders, err := h.index.ListOrders(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list orders", err)
		return
	}
	if orders == nil {
		orders = []domain.IndexedOrder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// RecentEvents lists the latest indexed events.
// GET /api/events?limit=50
func (h *IndexHandler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.index.RecentEvents(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list events", err)
		return
	}
	if events == nil {
		events = []domain.MarketEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
