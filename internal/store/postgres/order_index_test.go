package postgres

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

var (
	seller = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	buyer  = common.HexToAddress("0x00000000000000000000000000000000000000B2")
	asset  = common.HexToAddress("0x00000000000000000000000000000000000000C3")
)

func TestProjectionShapes(t *testing.T) {
	at := time.Unix(1_700_000_000, 0).UTC()

	created := projection(domain.MarketEvent{
		Name: domain.EventOrderCreated, OrderID: 7, Seller: seller, AssetContract: asset,
		TokenID: big.NewInt(42), Price: big.NewInt(1000), AcceptsProposals: true, Height: 3, CommittedAt: at,
	})
	require.Len(t, created, 1)
	assert.Contains(t, created[0].sql, "INSERT INTO orders")
	assert.Equal(t, int64(7), created[0].args[0])
	assert.Equal(t, "0x00000000000000000000000000000000000000a1", created[0].args[2])
	assert.Equal(t, "42", created[0].args[4])
	assert.Equal(t, "1000", created[0].args[5])

	sold := projection(domain.MarketEvent{Name: domain.EventNFTTransferred, OrderID: 7, Buyer: buyer, CommittedAt: at})
	require.Len(t, sold, 1)
	assert.Equal(t, domain.OutcomeSold, sold[0].args[1])

	accepted := projection(domain.MarketEvent{Name: domain.EventProposalAccepted, OrderID: 7, ProposalIndex: 1, Proposer: buyer})
	require.Len(t, accepted, 2)
	assert.Contains(t, accepted[0].sql, "UPDATE proposals")
	assert.Equal(t, "accepted", accepted[0].args[2])
	assert.Equal(t, domain.OutcomeAccepted, accepted[1].args[1])

	cancelled := projection(domain.MarketEvent{Name: domain.EventOrderCancelled, OrderID: 7})
	require.Len(t, cancelled, 1)
	assert.Nil(t, cancelled[0].args[2], "cancel keeps buyer unset")

	assert.Empty(t, projection(domain.MarketEvent{Name: domain.EventUpgraded}))
	assert.Nil(t, orderRef(domain.MarketEvent{Name: domain.EventTransfer}))
	require.NotNil(t, orderRef(domain.MarketEvent{Name: domain.EventProposalRejected, OrderID: 9}))
}

func TestRefQueries(t *testing.T) {
	market := common.HexToAddress("0x00000000000000000000000000000000000000D4")

	sale, ok := refQuery(domain.MarketEvent{
		Name: domain.EventNFTTransferred, Contract: market, Seller: seller, Buyer: buyer,
		AssetContract: asset, TokenID: big.NewInt(42), Price: big.NewInt(1000),
	})
	require.True(t, ok)
	assert.Contains(t, sale.sql, "FROM orders")
	assert.Contains(t, sale.sql, "AND active")
	assert.Equal(t, []any{
		"0x00000000000000000000000000000000000000d4",
		"0x00000000000000000000000000000000000000a1",
		"0x00000000000000000000000000000000000000c3",
		"42", "1000",
	}, sale.args)

	created, ok := refQuery(domain.MarketEvent{Name: domain.EventProposalCreated, OrderID: 7})
	require.True(t, ok)
	assert.Contains(t, created.sql, "MAX(idx) + 1")
	assert.Equal(t, []any{int64(7)}, created.args)

	accepted, ok := refQuery(domain.MarketEvent{
		Name: domain.EventProposalAccepted, OrderID: 7, Proposer: buyer, Amount: big.NewInt(80),
	})
	require.True(t, ok)
	assert.Equal(t, []any{int64(7), "0x00000000000000000000000000000000000000b2", "80", "pending"}, accepted.args)

	for _, name := range []string{domain.EventOrderCreated, domain.EventOrderCancelled, domain.EventProposalRejected} {
		_, ok := refQuery(domain.MarketEvent{Name: name, OrderID: 7})
		assert.False(t, ok, name)
	}
}

func TestListOrdersQuery(t *testing.T) {
	q, args := listOrdersQuery(domain.OrderFilter{})
	assert.NotContains(t, q, "WHERE")
	assert.Empty(t, args)

	active := true
	q, args = listOrdersQuery(domain.OrderFilter{
		Seller:   &seller,
		Active:   &active,
		ListOpts: domain.ListOpts{Limit: 10, Offset: 20},
	})
	assert.Contains(t, q, "WHERE seller = $1 AND active = $2")
	assert.Contains(t, q, "LIMIT $3 OFFSET $4")
	assert.Equal(t, []any{"0x00000000000000000000000000000000000000a1", true, 10, 20}, args)
}

// TestOrderIndexRoundTrip runs against a live database when
// NFTMARKET_TEST_POSTGRES_DSN is set.
func TestOrderIndexRoundTrip(t *testing.T) {
	dsn := os.Getenv("NFTMARKET_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NFTMARKET_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Migrate(ctx))

	_, err = c.Pool().Exec(ctx, `TRUNCATE proposals, orders, market_events, indexer_cursor`)
	require.NoError(t, err)

	idx := NewOrderIndex(c.Pool())
	at := time.Now().UTC().Truncate(time.Second)
	market := common.HexToAddress("0x00000000000000000000000000000000000000D4")
	listing := func(id string, order, token, price, height int64) domain.MarketEvent {
		return domain.MarketEvent{ID: id, Name: domain.EventOrderCreated, Contract: market,
			OrderID: uint64(order), Seller: seller, AssetContract: asset, TokenID: big.NewInt(token),
			Price: big.NewInt(price), AcceptsProposals: true, Height: uint64(height), CommittedAt: at}
	}
	// Contract events carry neither the proposal index nor the sold order.
	events := []domain.MarketEvent{
		listing("a-0", 1, 1, 100, 1),
		listing("a-1", 2, 2, 50, 1),
		{ID: "b-0", Name: domain.EventProposalCreated, Contract: market, OrderID: 1, Proposer: buyer,
			Amount: big.NewInt(80), Height: 2, CommittedAt: at},
		{ID: "b-1", Name: domain.EventProposalCreated, Contract: market, OrderID: 1, Proposer: buyer,
			Amount: big.NewInt(90), Height: 3, CommittedAt: at},
		{ID: "c-0", Name: domain.EventProposalAccepted, Contract: market, OrderID: 1, Proposer: buyer,
			Amount: big.NewInt(90), Height: 4, CommittedAt: at},
		{ID: "d-0", Name: domain.EventNFTTransferred, Contract: market, Seller: seller, Buyer: buyer,
			AssetContract: asset, TokenID: big.NewInt(2), Price: big.NewInt(50), Height: 5, CommittedAt: at},
	}
	for _, ev := range events {
		require.NoError(t, idx.ApplyEvent(ctx, ev))
	}
	// Replays are no-ops.
	require.NoError(t, idx.ApplyEvent(ctx, events[4]))
	require.NoError(t, idx.ApplyEvent(ctx, events[5]))

	orders, err := idx.ListOrders(ctx, domain.OrderFilter{Seller: &seller})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	sold, accepted := orders[0], orders[1]

	assert.Equal(t, uint64(2), sold.ID)
	assert.False(t, sold.Active)
	assert.Equal(t, domain.OutcomeSold, sold.Outcome)
	assert.Equal(t, buyer, sold.Buyer)

	assert.False(t, accepted.Active)
	assert.Equal(t, domain.OutcomeAccepted, accepted.Outcome)
	assert.Equal(t, buyer, accepted.Buyer)
	assert.Equal(t, 0, big.NewInt(100).Cmp(accepted.Price))

	props, err := idx.ListProposals(ctx, 1)
	require.NoError(t, err)
	require.Len(t, props, 2)
	assert.Equal(t, uint64(0), props[0].Index)
	assert.Equal(t, domain.ProposalPending, props[0].Status)
	assert.Equal(t, uint64(1), props[1].Index)
	assert.Equal(t, domain.ProposalAccepted, props[1].Status)

	recent, err := idx.RecentEvents(ctx, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "d-0", recent[0].ID)
	assert.Equal(t, uint64(2), recent[0].OrderID, "the stored sale names its order")
	assert.Equal(t, uint64(1), recent[1].ProposalIndex)

	cursors := NewCursorStore(c.Pool())
	got, err := cursors.GetCursor(ctx, "indexer")
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, cursors.SetCursor(ctx, "indexer", "5-0"))
	got, err = cursors.GetCursor(ctx, "indexer")
	require.NoError(t, err)
	assert.Equal(t, "5-0", got)
}
