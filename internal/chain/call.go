package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/nftmarket/internal/state"
)

// Contract is executable code registered with an Env under a name and
// bound to addresses at deployment.
type Contract interface {
	// Run executes input against the call frame. Empty input is a plain
	// value transfer.
	Run(c *Call, input []byte) ([]byte, error)
}

// Constructor is implemented by contracts that need to initialise their
// storage when deployed.
type Constructor interface {
	Construct(c *Call, args []byte) error
}

// execution is the state of one transaction: the overlay, its logs and
// the external account that started it.
type execution struct {
	env    *Env
	tx     *state.Tx
	origin common.Address
	logs   []Log
}

type checkpoint struct {
	rev  int
	logs int
}

func (x *execution) checkpoint() checkpoint {
	return checkpoint{rev: x.tx.Snapshot(), logs: len(x.logs)}
}

func (x *execution) revert(cp checkpoint) {
	x.tx.RevertToSnapshot(cp.rev)
	x.logs = x.logs[:cp.logs]
}

func (x *execution) balance(a common.Address) (*big.Int, error) {
	b, err := x.tx.Get(balanceKey(a))
	if err != nil {
		return nil, err
	}
	return decodeBig(b), nil
}

func (x *execution) nonce(a common.Address) (uint64, error) {
	b, err := x.tx.Get(nonceKey(a))
	if err != nil {
		return 0, err
	}
	return decodeUint64(b), nil
}

func (x *execution) setNonce(a common.Address, n uint64) {
	x.tx.Set(nonceKey(a), encodeUint64(n))
}

func (x *execution) transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	fromBal, err := x.balance(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Hex(), fromBal, amount)
	}
	x.tx.Set(balanceKey(from), encodeBig(new(big.Int).Sub(fromBal, amount)))

	toBal, err := x.balance(to)
	if err != nil {
		return err
	}
	x.tx.Set(balanceKey(to), encodeBig(new(big.Int).Add(toBal, amount)))
	return nil
}

// code resolves the contract deployed at a, or nil for plain accounts.
func (x *execution) code(a common.Address) (Contract, error) {
	name, err := x.tx.Get(codeKey(a))
	if err != nil {
		return nil, err
	}
	if name == nil {
		return nil, nil
	}
	c, ok := x.env.lookup(string(name))
	if !ok {
		return nil, fmt.Errorf("%w: %q at %s", ErrUnknownCode, name, a.Hex())
	}
	return c, nil
}

func (x *execution) call(caller, to common.Address, value *big.Int, input []byte, depth int, requireCode bool) ([]byte, error) {
	if depth > MaxCallDepth {
		return nil, ErrCallDepth
	}
	if value == nil {
		value = new(big.Int)
	}
	cp := x.checkpoint()
	out, err := x.run(caller, to, value, input, depth, requireCode)
	if err != nil {
		x.revert(cp)
		return nil, err
	}
	return out, nil
}

func (x *execution) run(caller, to common.Address, value *big.Int, input []byte, depth int, requireCode bool) ([]byte, error) {
	if err := x.transfer(caller, to, value); err != nil {
		return nil, err
	}
	contract, err := x.code(to)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		if requireCode {
			return nil, fmt.Errorf("%w: %s", ErrNoCode, to.Hex())
		}
		return nil, nil
	}
	frame := &Call{x: x, self: to, codeAddr: to, caller: caller, value: value, depth: depth}
	return contract.Run(frame, input)
}

func (x *execution) create(creator common.Address, codeName string, args []byte, depth int) (common.Address, error) {
	if depth > MaxCallDepth {
		return common.Address{}, ErrCallDepth
	}
	contract, ok := x.env.lookup(codeName)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %q", ErrUnknownCode, codeName)
	}
	n, err := x.nonce(creator)
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.CreateAddress(creator, n)
	x.setNonce(creator, n+1)

	existing, err := x.tx.Get(codeKey(addr))
	if err != nil {
		return common.Address{}, err
	}
	if existing != nil {
		return common.Address{}, fmt.Errorf("%w: %s", ErrAddressCollision, addr.Hex())
	}

	cp := x.checkpoint()
	x.tx.Set(codeKey(addr), []byte(codeName))
	if ctor, ok := contract.(Constructor); ok {
		frame := &Call{x: x, self: addr, codeAddr: addr, caller: creator, value: new(big.Int), depth: depth}
		if err := ctor.Construct(frame, args); err != nil {
			x.revert(cp)
			return common.Address{}, fmt.Errorf("chain: construct %s: %w", codeName, err)
		}
	}
	return addr, nil
}

// Call is the frame a contract runs in. Self is the address whose storage
// and balance the code operates on; under a delegate call it differs from
// the address the code was loaded from.
type Call struct {
	x        *execution
	self     common.Address
	codeAddr common.Address
	caller   common.Address
	value    *big.Int
	depth    int
}

func (c *Call) Self() common.Address { return c.self }
func (c *Call) CodeAddress() common.Address { return c.codeAddr }
func (c *Call) Caller() common.Address { return c.caller }
func (c *Call) Origin() common.Address { return c.x.origin }
func (c *Call) Depth() int { return c.depth }

// Value is the native value attached to the frame.
func (c *Call) Value() *big.Int { return new(big.Int).Set(c.value) }

// Storage returns the slots owned by Self.
func (c *Call) Storage() Storage {
	return Storage{tx: c.x.tx, addr: c.self}
}

// StorageOf reads another account's slots. Writes through it are allowed
// only for Self by convention.
func (c *Call) StorageOf(a common.Address) Storage {
	return Storage{tx: c.x.tx, addr: a}
}

func (c *Call) Balance(a common.Address) (*big.Int, error) {
	return c.x.balance(a)
}

// HasCode reports whether a contract is deployed at a.
func (c *Call) HasCode(a common.Address) (bool, error) {
	name, err := c.x.tx.Get(codeKey(a))
	if err != nil {
		return false, err
	}
	return name != nil, nil
}

// Call invokes to with value and input as Self. Calls to plain accounts
// only move value.
func (c *Call) Call(to common.Address, value *big.Int, input []byte) ([]byte, error) {
	return c.x.call(c.self, to, value, input, c.depth+1, false)
}

// CallContract is Call but fails when to has no code.
func (c *Call) CallContract(to common.Address, value *big.Int, input []byte) ([]byte, error) {
	return c.x.call(c.self, to, value, input, c.depth+1, true)
}

// Transfer sends amount from Self to to, running to's receive hook if it
// is a contract.
func (c *Call) Transfer(to common.Address, amount *big.Int) error {
	_, err := c.Call(to, amount, nil)
	return err
}

// DelegateCall runs the code at codeAddr against Self's storage, keeping
// the current caller and value.
func (c *Call) DelegateCall(codeAddr common.Address, input []byte) ([]byte, error) {
	if c.depth+1 > MaxCallDepth {
		return nil, ErrCallDepth
	}
	contract, err := c.x.code(codeAddr)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCode, codeAddr.Hex())
	}
	cp := c.x.checkpoint()
	frame := &Call{x: c.x, self: c.self, codeAddr: codeAddr, caller: c.caller, value: c.value, depth: c.depth + 1}
	out, err := contract.Run(frame, input)
	if err != nil {
		c.x.revert(cp)
		return nil, err
	}
	return out, nil
}

// Create deploys codeName with Self as creator.
func (c *Call) Create(codeName string, args []byte) (common.Address, error) {
	return c.x.create(c.self, codeName, args, c.depth+1)
}

// Emit appends a log attributed to Self.
func (c *Call) Emit(topics []common.Hash, data []byte) {
	c.x.logs = append(c.x.logs, Log{
		Address: c.self,
		Topics:  append([]common.Hash(nil), topics...),
		Data:    append([]byte(nil), data...),
	})
}

// EmitEvent ABI-encodes args as the event's non-indexed fields.
func (c *Call) EmitEvent(ev abi.Event, args ...interface{}) error {
	data, err := ev.Inputs.NonIndexed().Pack(args...)
	if err != nil {
		return fmt.Errorf("chain: pack event %s: %w", ev.Name, err)
	}
	c.Emit([]common.Hash{ev.ID}, data)
	return nil
}
