package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// OrderFilter narrows an indexed order listing.
type OrderFilter struct {
	Seller *common.Address
	Active *bool
	ListOpts
}

// Order outcomes recorded by the read model.
const (
	OutcomeOpen      = "open"
	OutcomeCancelled = "cancelled"
	OutcomeSold      = "sold"
	OutcomeAccepted  = "accepted"
)

// IndexedOrder is an order as projected into the read model.
type IndexedOrder struct {
	Order
	Outcome   string         `json:"outcome"`
	Buyer     common.Address `json:"buyer,omitempty"`
	Height    uint64         `json:"height"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// OrderIndex is the queryable projection of committed marketplace events.
type OrderIndex interface {
	ApplyEvent(ctx context.Context, ev MarketEvent) error
	ListOrders(ctx context.Context, f OrderFilter) ([]IndexedOrder, error)
	ListProposals(ctx context.Context, orderID uint64) ([]Proposal, error)
	RecentEvents(ctx context.Context, opts ListOpts) ([]MarketEvent, error)
}

// CursorStore remembers how far a stream consumer has read.
type CursorStore interface {
	GetCursor(ctx context.Context, name string) (string, error)
	SetCursor(ctx context.Context, name, id string) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
