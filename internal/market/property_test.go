package market_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

type modelOrder struct {
	seller    common.Address
	tokenID   int64
	price     int64
	accepts   bool
	active    bool
	winner    common.Address
	proposals []modelProposal
}

type modelProposal struct {
	proposer common.Address
	amount   int64
	status   domain.ProposalStatus
}

type marketModel struct {
	n         *testNet
	orders    []*modelOrder
	nextToken int64
	total     *big.Int
}

var actors = []common.Address{seller, buyer, proposer, stranger}

func (m *marketModel) drawOrder(t *rapid.T) (uint64, *modelOrder) {
	id := rapid.Uint64Range(1, uint64(len(m.orders))+1).Draw(t, "orderID")
	if id > uint64(len(m.orders)) {
		return id, nil
	}
	return id, m.orders[id-1]
}

func expect(t *rapid.T, err, want error) {
	t.Helper()
	if want == nil {
		require.NoError(t, err)
		return
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func (m *marketModel) list(t *rapid.T) {
	price := rapid.Int64Range(1, 1000).Draw(t, "price")
	accepts := rapid.Bool().Draw(t, "accepts")
	m.nextToken++
	id := m.n.list(m.nextToken, big.NewInt(price), accepts)
	require.Equal(t, uint64(len(m.orders)+1), id)
	m.orders = append(m.orders, &modelOrder{seller: seller, tokenID: m.nextToken, price: price, accepts: accepts, active: true})
}

func (m *marketModel) cancel(t *rapid.T) {
	id, o := m.drawOrder(t)
	caller := rapid.SampledFrom(actors).Draw(t, "caller")
	_, err := m.n.mkt.CancelOrder(m.n.ctx, caller, id)

	var want error
	switch {
	case o == nil:
		want = domain.ErrInvalidState
	case caller != o.seller:
		want = domain.ErrUnauthorized
	case !o.active:
		want = domain.ErrInvalidState
	}
	expect(t, err, want)
	if want == nil {
		o.active = false
	}
}

func (m *marketModel) buy(t *rapid.T) {
	id, o := m.drawOrder(t)
	caller := rapid.SampledFrom([]common.Address{buyer, proposer, stranger}).Draw(t, "buyer")
	value := rapid.Int64Range(0, 1500).Draw(t, "value")
	_, err := m.n.mkt.Buy(m.n.ctx, caller, id, big.NewInt(value))

	var want error
	switch {
	case o == nil, !o.active:
		want = domain.ErrInvalidState
	case value < o.price:
		want = domain.ErrInsufficientPayment
	}
	expect(t, err, want)
	if want == nil {
		o.active = false
		o.winner = caller
	}
}

func (m *marketModel) propose(t *rapid.T) {
	id, o := m.drawOrder(t)
	caller := rapid.SampledFrom([]common.Address{buyer, proposer, stranger}).Draw(t, "proposer")
	amount := rapid.Int64Range(0, 1500).Draw(t, "amount")
	idx, _, err := m.n.mkt.ProposePrice(m.n.ctx, caller, id, big.NewInt(amount))

	var want error
	switch {
	case o == nil, !o.active, !o.accepts:
		want = domain.ErrInvalidState
	case amount >= o.price:
		want = domain.ErrInvalidArgument
	}
	expect(t, err, want)
	if want == nil {
		require.Equal(t, uint64(len(o.proposals)), idx)
		o.proposals = append(o.proposals, modelProposal{proposer: caller, amount: amount})
	}
}

func (m *marketModel) decide(t *rapid.T, accept bool) {
	id, o := m.drawOrder(t)
	caller := rapid.SampledFrom(actors).Draw(t, "caller")
	idx := rapid.Uint64Range(0, 3).Draw(t, "index")

	var err error
	if accept {
		_, err = m.n.mkt.AcceptProposal(m.n.ctx, caller, id, idx)
	} else {
		_, err = m.n.mkt.RejectProposal(m.n.ctx, caller, id, idx)
	}

	var want error
	switch {
	case o == nil:
		want = domain.ErrInvalidState
	case caller != o.seller:
		want = domain.ErrUnauthorized
	case accept && !o.active:
		want = domain.ErrInvalidState
	case idx >= uint64(len(o.proposals)):
		want = domain.ErrInvalidState
	case o.proposals[idx].status != domain.ProposalPending:
		want = domain.ErrInvalidState
	}
	expect(t, err, want)
	if want != nil {
		return
	}
	if accept {
		o.proposals[idx].status = domain.ProposalAccepted
		o.active = false
		o.winner = o.proposals[idx].proposer
	} else {
		o.proposals[idx].status = domain.ProposalRejected
	}
}

func (m *marketModel) check(t *rapid.T) {
	sum := new(big.Int)
	for _, a := range append(actors, admin, m.n.d.Proxy) {
		sum.Add(sum, m.n.balance(a))
	}
	require.Zero(t, sum.Cmp(m.total), "native value must be conserved")
	require.Zero(t, m.n.balance(m.n.d.Proxy).Sign(), "marketplace must not retain value")

	for i, o := range m.orders {
		id := uint64(i + 1)
		got, err := m.n.mkt.Order(m.n.ctx, id)
		require.NoError(t, err)
		require.Equal(t, o.active, got.Active, "order %d active", id)

		owner := m.n.ownerOf(o.tokenID)
		if o.winner != (common.Address{}) {
			require.Equal(t, o.winner, owner, "order %d token", id)
		} else {
			require.Equal(t, o.seller, owner, "order %d token", id)
		}

		count, err := m.n.mkt.ProposalCount(m.n.ctx, id)
		require.NoError(t, err)
		require.Equal(t, uint64(len(o.proposals)), count)
		for j, p := range o.proposals {
			gp, err := m.n.mkt.Proposal(m.n.ctx, id, uint64(j))
			require.NoError(t, err)
			require.Equal(t, p.status, gp.Status)
			require.Equal(t, p.proposer, gp.Proposer)
		}
	}
}

func TestMarketplaceStateMachine(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := newTestNet(t)
		m := &marketModel{n: n, total: new(big.Int)}
		for _, a := range append(actors, admin, n.d.Proxy) {
			m.total.Add(m.total, n.balance(a))
		}
		t.Repeat(map[string]func(*rapid.T){
			"list":    m.list,
			"cancel":  m.cancel,
			"buy":     m.buy,
			"propose": m.propose,
			"accept":  func(t *rapid.T) { m.decide(t, true) },
			"reject":  func(t *rapid.T) { m.decide(t, false) },
			"":        m.check,
		})
	})
}
