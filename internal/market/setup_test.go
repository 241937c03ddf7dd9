package market_test

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/genesis"
	"github.com/alanyoungcy/nftmarket/internal/market"
	"github.com/alanyoungcy/nftmarket/internal/registry"
	"github.com/alanyoungcy/nftmarket/internal/state"
)

var (
	admin    = common.HexToAddress("0x000000000000000000000000000000000000ad01")
	seller   = common.HexToAddress("0x0000000000000000000000000000000000005e11")
	buyer    = common.HexToAddress("0x000000000000000000000000000000000000b001")
	proposer = common.HexToAddress("0x000000000000000000000000000000000000b002")
	stranger = common.HexToAddress("0x000000000000000000000000000000000000dead")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// testingT is satisfied by *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

type testNet struct {
	t   testingT
	ctx context.Context
	env *chain.Env
	d   genesis.Deployments
	mkt *market.Client
}

func newTestNet(t testingT) *testNet {
	t.Helper()
	ctx := context.Background()
	env := chain.NewEnv(state.NewMemory(), big.NewInt(31337), nil)
	genesis.RegisterCodes(env)

	var accounts []genesis.Account
	for _, a := range []common.Address{admin, seller, buyer, proposer, stranger} {
		accounts = append(accounts, genesis.Account{Address: a, Balance: ether(100)})
	}
	d, err := genesis.Ensure(ctx, env, genesis.Config{AdminOwner: admin, Accounts: accounts}, nil)
	require.NoError(t, err)

	return &testNet{t: t, ctx: ctx, env: env, d: d, mkt: market.NewClient(env, d.Proxy)}
}

func (n *testNet) token(from common.Address, method string, args ...interface{}) error {
	n.t.Helper()
	data, err := registry.ABI.Pack(method, args...)
	require.NoError(n.t, err)
	_, err = n.env.Execute(n.ctx, chain.Message{From: from, To: n.d.Registry, Data: data})
	return err
}

// mintApproved mints tokenID to owner and approves the marketplace for it.
func (n *testNet) mintApproved(owner common.Address, tokenID int64) {
	n.t.Helper()
	require.NoError(n.t, n.token(owner, "mint", big.NewInt(tokenID)))
	require.NoError(n.t, n.token(owner, "approve", n.d.Proxy, big.NewInt(tokenID)))
}

func (n *testNet) ownerOf(tokenID int64) common.Address {
	n.t.Helper()
	data, err := registry.ABI.Pack("ownerOf", big.NewInt(tokenID))
	require.NoError(n.t, err)
	out, err := n.env.View(n.ctx, chain.Message{To: n.d.Registry, Data: data})
	require.NoError(n.t, err)
	vals, err := registry.ABI.Unpack("ownerOf", out)
	require.NoError(n.t, err)
	return vals[0].(common.Address)
}

func (n *testNet) balance(a common.Address) *big.Int {
	n.t.Helper()
	b, err := n.env.Balance(a)
	require.NoError(n.t, err)
	return b
}

// list mints, approves and lists a token for seller.
func (n *testNet) list(tokenID int64, price *big.Int, acceptsProposals bool) uint64 {
	n.t.Helper()
	n.mintApproved(seller, tokenID)
	id, _, err := n.mkt.CreateOrder(n.ctx, seller, n.d.Registry, big.NewInt(tokenID), price, acceptsProposals)
	require.NoError(n.t, err)
	return id
}

func eventNames(rcpt *chain.Receipt) []string {
	var out []string
	for _, l := range rcpt.Logs {
		for name, ev := range market.ABI.Events {
			if len(l.Topics) > 0 && l.Topics[0] == ev.ID {
				out = append(out, name)
			}
		}
	}
	return out
}
