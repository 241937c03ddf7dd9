package genesis

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/market"
	"github.com/alanyoungcy/nftmarket/internal/state"
)

func TestEnsureIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := state.NewMemory()
	owner := common.HexToAddress("0x000000000000000000000000000000000000ad01")
	user := common.HexToAddress("0x0000000000000000000000000000000000000001")
	cfg := Config{
		AdminOwner: owner,
		Accounts:   []Account{{Address: user, Balance: big.NewInt(1000)}},
	}

	env := chain.NewEnv(backend, big.NewInt(1), nil)
	RegisterCodes(env)
	first, err := Ensure(ctx, env, cfg, nil)
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, first.Proxy)
	assert.NotEqual(t, first.LogicV1, first.LogicV2)

	// reopening the same state must not redeploy or refund
	env2 := chain.NewEnv(backend, big.NewInt(1), nil)
	RegisterCodes(env2)
	second, err := Ensure(ctx, env2, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	bal, err := env2.Balance(user)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), bal)

	cl := market.NewClient(env2, second.Proxy)
	next, err := cl.NextOrderID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)
}

func TestEnsureRequiresOwner(t *testing.T) {
	env := chain.NewEnv(state.NewMemory(), big.NewInt(1), nil)
	RegisterCodes(env)
	_, err := Ensure(context.Background(), env, Config{}, nil)
	require.Error(t, err)

	_, ok, err := Load(env)
	require.NoError(t, err)
	assert.False(t, ok)
}
