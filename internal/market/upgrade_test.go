package market_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/market"
	"github.com/alanyoungcy/nftmarket/internal/proxy"
	"github.com/alanyoungcy/nftmarket/internal/registry"
)

func mustPack(t *testing.T, method string, args ...interface{}) []byte {
	t.Helper()
	data, err := registry.ABI.Pack(method, args...)
	require.NoError(t, err)
	return data
}

func (n *testNet) upgradeToV2() *chain.Receipt {
	n.t.Helper()
	init, err := market.InitializeV2Data()
	require.NoError(n.t, err)
	data, err := proxy.UpgradeAndCallData(n.d.Proxy, n.d.LogicV2, init)
	require.NoError(n.t, err)
	rcpt, err := n.env.Execute(n.ctx, chain.Message{From: admin, To: n.d.ProxyAdmin, Data: data})
	require.NoError(n.t, err)
	return rcpt
}

func TestUpgradePreservesState(t *testing.T) {
	n := newTestNet(t)
	first := n.list(1, ether(10), true)
	second := n.list(2, ether(4), true)
	idx, _, err := n.mkt.ProposePrice(n.ctx, proposer, first, ether(6))
	require.NoError(t, err)
	_, err = n.mkt.CancelOrder(n.ctx, seller, second)
	require.NoError(t, err)

	v, err := n.mkt.Version(n.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	n.upgradeToV2()

	v, err = n.mkt.Version(n.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)

	o, err := n.mkt.Order(n.ctx, first)
	require.NoError(t, err)
	assert.True(t, o.Active)
	assert.Equal(t, ether(10), o.Price)
	o, err = n.mkt.Order(n.ctx, second)
	require.NoError(t, err)
	assert.False(t, o.Active)

	p, err := n.mkt.Proposal(n.ctx, first, idx)
	require.NoError(t, err)
	assert.Equal(t, proposer, p.Proposer)
	assert.Equal(t, domain.ProposalPending, p.Status)

	// ids keep counting from where v1 stopped
	third := n.list(3, ether(1), false)
	assert.Equal(t, uint64(3), third)

	// and v2 behaviour is available on v1 data
	_, err = n.mkt.WithdrawProposal(n.ctx, stranger, first, idx)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = n.mkt.WithdrawProposal(n.ctx, proposer, first, idx)
	require.NoError(t, err)
	p, err = n.mkt.Proposal(n.ctx, first, idx)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalWithdrawn, p.Status)
	_, err = n.mkt.AcceptProposal(n.ctx, seller, first, idx)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = n.mkt.Buy(n.ctx, buyer, first, ether(10))
	require.NoError(t, err)
	assert.Equal(t, buyer, n.ownerOf(1))
}

func TestReinitializerRunsOnce(t *testing.T) {
	n := newTestNet(t)
	n.upgradeToV2()

	init, err := market.InitializeV2Data()
	require.NoError(t, err)
	_, err = n.env.Execute(n.ctx, chain.Message{From: stranger, To: n.d.Proxy, Data: init})
	require.ErrorIs(t, err, domain.ErrInvalidState)

	init, err = market.InitializeData()
	require.NoError(t, err)
	_, err = n.env.Execute(n.ctx, chain.Message{From: stranger, To: n.d.Proxy, Data: init})
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestImplementationCannotBeInitializedDirectly(t *testing.T) {
	n := newTestNet(t)
	init, err := market.InitializeData()
	require.NoError(t, err)
	_, err = n.env.Execute(n.ctx, chain.Message{From: stranger, To: n.d.LogicV1, Data: init})
	require.ErrorIs(t, err, domain.ErrInvalidState)
}
