package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/state"
)

type contractFunc func(c *Call, input []byte) ([]byte, error)

func (f contractFunc) Run(c *Call, input []byte) ([]byte, error) { return f(c, input) }

type ctorContract struct {
	contractFunc
	construct func(c *Call, args []byte) error
}

func (c ctorContract) Construct(call *Call, args []byte) error { return c.construct(call, args) }

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func newEnv(t *testing.T) *Env {
	t.Helper()
	return NewEnv(state.NewMemory(), big.NewInt(31337), nil)
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func deploy(t *testing.T, env *Env, code string) common.Address {
	t.Helper()
	rcpt, err := env.Deploy(context.Background(), DeployMessage{From: alice, Code: code})
	require.NoError(t, err)
	return rcpt.ContractAddress
}

func TestPlainTransfer(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	require.NoError(t, env.Fund(ctx, alice, ether(10)))

	var seen []*Receipt
	env.OnCommit(func(r *Receipt) { seen = append(seen, r) })

	nonce := uint64(0)
	rcpt, err := env.Execute(ctx, Message{From: alice, To: bob, Value: ether(3), Nonce: &nonce})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rcpt.Height)
	assert.Equal(t, uint64(0), rcpt.Nonce)

	bal, err := env.Balance(alice)
	require.NoError(t, err)
	assert.Equal(t, ether(7), bal)
	bal, err = env.Balance(bob)
	require.NoError(t, err)
	assert.Equal(t, ether(3), bal)

	n, err := env.Nonce(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
	require.Len(t, seen, 1)
	assert.Equal(t, rcpt.TxHash, seen[0].TxHash)
}

func TestFailedTransactionCommitsNothing(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	require.NoError(t, env.Fund(ctx, alice, ether(1)))

	committed := 0
	env.OnCommit(func(*Receipt) { committed++ })

	_, err := env.Execute(ctx, Message{From: alice, To: bob, Value: ether(2)})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	stale := uint64(5)
	_, err = env.Execute(ctx, Message{From: alice, To: bob, Value: ether(1), Nonce: &stale})
	require.ErrorIs(t, err, domain.ErrBadNonce)

	n, err := env.Nonce(alice)
	require.NoError(t, err)
	assert.Zero(t, n)
	h, err := env.Height()
	require.NoError(t, err)
	assert.Zero(t, h)
	assert.Zero(t, committed)
}

func TestNestedRevertIsScoped(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	boom := errors.New("boom")

	env.Register("inner", contractFunc(func(c *Call, _ []byte) ([]byte, error) {
		c.Storage().Set("touched", []byte("yes"))
		c.Emit([]common.Hash{{0x01}}, nil)
		return nil, boom
	}))
	inner := deploy(t, env, "inner")

	env.Register("outer", contractFunc(func(c *Call, _ []byte) ([]byte, error) {
		c.Storage().Set("before", []byte("1"))
		c.Emit([]common.Hash{{0x02}}, nil)
		_, err := c.CallContract(inner, nil, []byte{0xde, 0xad, 0xbe, 0xef})
		if !errors.Is(err, boom) {
			return nil, errors.New("expected inner failure")
		}
		return nil, nil
	}))
	outer := deploy(t, env, "outer")

	rcpt, err := env.Execute(ctx, Message{From: alice, To: outer, Data: []byte{1, 2, 3, 4}})
	require.NoError(t, err)
	require.Len(t, rcpt.Logs, 1)
	assert.Equal(t, outer, rcpt.Logs[0].Address)

	v, err := env.StorageAt(outer, "before")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
	v, err = env.StorageAt(inner, "touched")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestCallDepthIsBounded(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	var maxDepth int
	env.Register("recurse", contractFunc(func(c *Call, input []byte) ([]byte, error) {
		if c.Depth() > maxDepth {
			maxDepth = c.Depth()
		}
		return c.CallContract(c.Self(), nil, input)
	}))
	addr := deploy(t, env, "recurse")

	_, err := env.Execute(ctx, Message{From: alice, To: addr, Data: []byte{0, 0, 0, 1}})
	require.ErrorIs(t, err, ErrCallDepth)
	assert.Equal(t, MaxCallDepth, maxDepth)
}

func TestDeployAddressesAndConstructor(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.Register("ctor", ctorContract{
		contractFunc: func(*Call, []byte) ([]byte, error) { return nil, nil },
		construct: func(c *Call, args []byte) error {
			c.Storage().Set("arg", args)
			return nil
		},
	})

	first, err := env.Deploy(ctx, DeployMessage{From: alice, Code: "ctor", Args: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(alice, 0), first.ContractAddress)

	second, err := env.Deploy(ctx, DeployMessage{From: alice, Code: "ctor", Args: []byte("y")})
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(alice, 1), second.ContractAddress)

	v, err := env.StorageAt(first.ContractAddress, "arg")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), v)

	code, err := env.CodeAt(second.ContractAddress)
	require.NoError(t, err)
	assert.Equal(t, "ctor", code)

	_, err = env.Deploy(ctx, DeployMessage{From: alice, Code: "missing"})
	require.ErrorIs(t, err, ErrUnknownCode)
}

func TestDelegateCallUsesCallerStorage(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)

	env.Register("lib", contractFunc(func(c *Call, _ []byte) ([]byte, error) {
		c.Storage().Set("written-by", c.CodeAddress().Bytes())
		c.Storage().Set("sender", c.Caller().Bytes())
		return nil, nil
	}))
	lib := deploy(t, env, "lib")

	env.Register("host", contractFunc(func(c *Call, input []byte) ([]byte, error) {
		return c.DelegateCall(lib, input)
	}))
	host := deploy(t, env, "host")

	_, err := env.Execute(ctx, Message{From: bob, To: host, Data: []byte{9, 9, 9, 9}})
	require.NoError(t, err)

	v, err := env.StorageAt(host, "written-by")
	require.NoError(t, err)
	assert.Equal(t, lib.Bytes(), v)
	v, err = env.StorageAt(host, "sender")
	require.NoError(t, err)
	assert.Equal(t, bob.Bytes(), v)
	v, err = env.StorageAt(lib, "sender")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestViewDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.Register("writer", contractFunc(func(c *Call, _ []byte) ([]byte, error) {
		c.Storage().SetUint64("n", 42)
		return []byte("ok"), nil
	}))
	addr := deploy(t, env, "writer")

	out, err := env.View(ctx, Message{From: bob, To: addr, Data: []byte{1, 1, 1, 1}})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), out)

	v, err := env.StorageAt(addr, "n")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = env.View(ctx, Message{From: bob, To: bob, Data: []byte{1, 1, 1, 1}})
	require.ErrorIs(t, err, ErrNoCode)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newEnv(t)
	require.NoError(t, src.Fund(ctx, alice, ether(5)))
	_, err := src.Execute(ctx, Message{From: alice, To: bob, Value: ether(2)})
	require.NoError(t, err)

	var writes []state.Write
	require.NoError(t, src.Export(func(k, v []byte) error {
		writes = append(writes, state.Write{Key: append([]byte(nil), k...), Value: append([]byte(nil), v...)})
		return nil
	}))

	dst := newEnv(t)
	require.NoError(t, dst.Import(ctx, writes))
	bal, err := dst.Balance(bob)
	require.NoError(t, err)
	assert.Equal(t, ether(2), bal)

	err = dst.Import(ctx, writes)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}
