package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// OrderIndex implements domain.OrderIndex using PostgreSQL. Events are
// applied idempotently: an event id already present in market_events is a
// no-op, so replaying a stream from an older cursor is safe.
type OrderIndex struct {
	pool *pgxpool.Pool
}

// NewOrderIndex creates a new OrderIndex backed by the given connection pool.
func NewOrderIndex(pool *pgxpool.Pool) *OrderIndex {
	return &OrderIndex{pool: pool}
}

// statement is one parameterised write of a projection.
type statement struct {
	sql  string
	args []any
}

// ApplyEvent records ev and updates the order and proposal projections in a
// single database transaction.
func (s *OrderIndex) ApplyEvent(ctx context.Context, ev domain.MarketEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin apply %s: %w", ev.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := resolveRefs(ctx, tx, &ev); err != nil {
		return fmt.Errorf("postgres: resolve %s %s: %w", ev.Name, ev.ID, err)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("postgres: marshal event %s: %w", ev.ID, err)
	}

	const insertEvent = `
		INSERT INTO market_events (id, name, contract, tx_hash, height, log_index, order_id, payload, committed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`
	tag, err := tx.Exec(ctx, insertEvent,
		ev.ID, ev.Name, hexAddr(ev.Contract), ev.TxHash.Hex(),
		int64(ev.Height), int(ev.LogIndex), orderRef(ev), payload, ev.CommittedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert event %s: %w", ev.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	for _, st := range projection(ev) {
		if _, err := tx.Exec(ctx, st.sql, st.args...); err != nil {
			return fmt.Errorf("postgres: project %s %s: %w", ev.Name, ev.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit apply %s: %w", ev.ID, err)
	}
	return nil
}

// resolveRefs fills in what the contract events leave out: the order a
// sale settled and the index of a created or accepted proposal. Both are
// read from the projection itself, so events must arrive in commit order.
// An unmatched lookup leaves the field zero.
func resolveRefs(ctx context.Context, tx pgx.Tx, ev *domain.MarketEvent) error {
	q, ok := refQuery(*ev)
	if !ok {
		return nil
	}
	var v int64
	err := tx.QueryRow(ctx, q.sql, q.args...).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if ev.Name == domain.EventNFTTransferred {
		ev.OrderID = uint64(v)
	} else {
		ev.ProposalIndex = uint64(v)
	}
	return nil
}

// refQuery is the lookup resolveRefs runs for ev, if any.
//
// Proposals are append-only per order, so a new one takes the next index.
// An acceptance matches the oldest pending proposal with the same proposer
// and amount. A sale matches the oldest active listing of the same token by
// the same seller at the same price.
func refQuery(ev domain.MarketEvent) (statement, bool) {
	switch ev.Name {
	case domain.EventNFTTransferred:
		return statement{
			sql: `SELECT id FROM orders
				WHERE market = $1 AND seller = $2 AND asset_contract = $3
					AND token_id = $4::numeric AND price = $5::numeric AND active
				ORDER BY id LIMIT 1`,
			args: []any{hexAddr(ev.Contract), hexAddr(ev.Seller), hexAddr(ev.AssetContract),
				numText(ev.TokenID), numText(ev.Price)},
		}, true
	case domain.EventProposalCreated:
		return statement{
			sql:  `SELECT COALESCE(MAX(idx) + 1, 0) FROM proposals WHERE order_id = $1`,
			args: []any{int64(ev.OrderID)},
		}, true
	case domain.EventProposalAccepted:
		return statement{
			sql: `SELECT idx FROM proposals
				WHERE order_id = $1 AND proposer = $2 AND amount = $3::numeric AND status = $4
				ORDER BY idx LIMIT 1`,
			args: []any{int64(ev.OrderID), hexAddr(ev.Proposer), numText(ev.Amount),
				domain.ProposalPending.String()},
		}, true
	}
	return statement{}, false
}

// projection maps a marketplace event onto read-model writes. Events that
// only live in market_events yield nothing.
func projection(ev domain.MarketEvent) []statement {
	at := ev.CommittedAt
	id := int64(ev.OrderID)

	switch ev.Name {
	case domain.EventOrderCreated:
		return []statement{{
			sql: `INSERT INTO orders (id, market, seller, asset_contract, token_id, price,
					accepts_proposals, active, outcome, height, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, TRUE, $8, $9, $10, $10)
				ON CONFLICT (id) DO NOTHING`,
			args: []any{id, hexAddr(ev.Contract), hexAddr(ev.Seller), hexAddr(ev.AssetContract),
				numText(ev.TokenID), numText(ev.Price), ev.AcceptsProposals,
				domain.OutcomeOpen, int64(ev.Height), at},
		}}
	case domain.EventOrderCancelled:
		return []statement{closeOrder(id, domain.OutcomeCancelled, nil, at)}
	case domain.EventNFTTransferred:
		buyer := hexAddr(ev.Buyer)
		return []statement{closeOrder(id, domain.OutcomeSold, &buyer, at)}
	case domain.EventProposalCreated:
		return []statement{{
			sql: `INSERT INTO proposals (order_id, idx, proposer, amount, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4::numeric, $5, $6, $6)
				ON CONFLICT (order_id, idx) DO NOTHING`,
			args: []any{id, int64(ev.ProposalIndex), hexAddr(ev.Proposer), numText(ev.Amount),
				domain.ProposalPending.String(), at},
		}}
	case domain.EventProposalAccepted:
		buyer := hexAddr(ev.Proposer)
		return []statement{
			proposalStatus(id, ev.ProposalIndex, domain.ProposalAccepted, at),
			closeOrder(id, domain.OutcomeAccepted, &buyer, at),
		}
	case domain.EventProposalRejected:
		return []statement{proposalStatus(id, ev.ProposalIndex, domain.ProposalRejected, at)}
	case domain.EventProposalWithdrawn:
		return []statement{proposalStatus(id, ev.ProposalIndex, domain.ProposalWithdrawn, at)}
	}
	return nil
}

func closeOrder(id int64, outcome string, buyer *string, at any) statement {
	return statement{
		sql: `UPDATE orders SET active = FALSE, outcome = $2, buyer = COALESCE($3, buyer), updated_at = $4
			WHERE id = $1`,
		args: []any{id, outcome, buyer, at},
	}
}

func proposalStatus(orderID int64, idx uint64, status domain.ProposalStatus, at any) statement {
	return statement{
		sql:  `UPDATE proposals SET status = $3, updated_at = $4 WHERE order_id = $1 AND idx = $2`,
		args: []any{orderID, int64(idx), status.String(), at},
	}
}

// orderSelectCols lists the columns selected when reading orders. Numeric
// columns are read as text and parsed into big.Int.
const orderSelectCols = `id, seller, asset_contract, token_id::text, price::text,
	accepts_proposals, active, outcome, COALESCE(buyer, ''), height, created_at, updated_at`

func scanOrder(row pgx.Row) (domain.IndexedOrder, error) {
	var (
		o                                   domain.IndexedOrder
		id, height                          int64
		seller, asset, tokenID, price, buyr string
	)
	err := row.Scan(&id, &seller, &asset, &tokenID, &price,
		&o.AcceptsProposals, &o.Active, &o.Outcome, &buyr, &height, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.IndexedOrder{}, err
	}
	o.ID = uint64(id)
	o.Height = uint64(height)
	o.Seller = common.HexToAddress(seller)
	o.AssetContract = common.HexToAddress(asset)
	o.TokenID = parseNum(tokenID)
	o.Price = parseNum(price)
	if buyr != "" {
		o.Buyer = common.HexToAddress(buyr)
	}
	return o, nil
}

// ListOrders returns indexed orders, newest first.
func (s *OrderIndex) ListOrders(ctx context.Context, f domain.OrderFilter) ([]domain.IndexedOrder, error) {
	query, args := listOrdersQuery(f)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.IndexedOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return out, nil
}

func listOrdersQuery(f domain.OrderFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.Seller != nil {
		args = append(args, hexAddr(*f.Seller))
		where = append(where, fmt.Sprintf("seller = $%d", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}

	query := `SELECT ` + orderSelectCols + ` FROM orders`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

// ListProposals returns the indexed proposals of an order in index order.
func (s *OrderIndex) ListProposals(ctx context.Context, orderID uint64) ([]domain.Proposal, error) {
	const query = `SELECT idx, proposer, amount::text, status FROM proposals
		WHERE order_id = $1 ORDER BY idx`
	rows, err := s.pool.Query(ctx, query, int64(orderID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list proposals %d: %w", orderID, err)
	}
	defer rows.Close()

	var out []domain.Proposal
	for rows.Next() {
		var (
			idx                      int64
			proposer, amount, status string
		)
		if err := rows.Scan(&idx, &proposer, &amount, &status); err != nil {
			return nil, fmt.Errorf("postgres: scan proposal: %w", err)
		}
		st, err := domain.ParseProposalStatus(status)
		if err != nil {
			return nil, fmt.Errorf("postgres: proposal %d/%d: %w", orderID, idx, err)
		}
		out = append(out, domain.Proposal{
			OrderID:  orderID,
			Index:    uint64(idx),
			Proposer: common.HexToAddress(proposer),
			Amount:   parseNum(amount),
			Status:   st,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list proposals rows: %w", err)
	}
	return out, nil
}

// RecentEvents returns recorded events, newest first.
func (s *OrderIndex) RecentEvents(ctx context.Context, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT payload FROM market_events
		ORDER BY height DESC, log_index DESC LIMIT $1 OFFSET $2`
	rows, err := s.pool.Query(ctx, query, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent events: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		var ev domain.MarketEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: recent events rows: %w", err)
	}
	return out, nil
}

// orderRef is the order_id column for events that concern an order.
func orderRef(ev domain.MarketEvent) *int64 {
	switch ev.Name {
	case domain.EventOrderCreated, domain.EventOrderCancelled, domain.EventNFTTransferred,
		domain.EventProposalCreated, domain.EventProposalAccepted,
		domain.EventProposalRejected, domain.EventProposalWithdrawn:
		id := int64(ev.OrderID)
		return &id
	}
	return nil
}

// Addresses are stored lower-case so filters match regardless of checksum.
func hexAddr(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func numText(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func parseNum(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return n
}
