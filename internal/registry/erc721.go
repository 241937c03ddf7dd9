// Package registry is a minimal ERC-721 token contract used as the asset
// registry in development and test deployments.
package registry

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

var (
	ErrNonexistentToken     = fmt.Errorf("erc721: nonexistent token: %w", domain.ErrNotFound)
	ErrTokenExists          = fmt.Errorf("erc721: token already minted: %w", domain.ErrInvalidArgument)
	ErrIncorrectOwner       = fmt.Errorf("erc721: incorrect owner: %w", domain.ErrUnauthorized)
	ErrInsufficientApproval = fmt.Errorf("erc721: insufficient approval: %w", domain.ErrUnauthorized)
	ErrInvalidReceiver      = fmt.Errorf("erc721: invalid receiver: %w", domain.ErrInvalidArgument)
	ErrInvalidApprover      = fmt.Errorf("erc721: invalid approver: %w", domain.ErrUnauthorized)
)

// Token is the ERC-721 contract code.
type Token struct {
	d *chain.Dispatcher
}

// New returns the contract code ready for chain.Env.Register.
func New() *Token {
	t := &Token{}
	t.d = chain.NewDispatcher(ABI).
		Handle("name", t.name).
		Handle("symbol", t.symbol).
		Handle("mint", t.mint).
		Handle("ownerOf", t.ownerOf).
		Handle("balanceOf", t.balanceOf).
		Handle("approve", t.approve).
		Handle("getApproved", t.getApproved).
		Handle("setApprovalForAll", t.setApprovalForAll).
		Handle("isApprovedForAll", t.isApprovedForAll).
		Handle("transferFrom", t.transferFrom)
	return t
}

// ConstructorArgs encodes the collection name and symbol.
func ConstructorArgs(name, symbol string) ([]byte, error) {
	return ABI.Pack("", name, symbol)
}

func (t *Token) Run(c *chain.Call, input []byte) ([]byte, error) {
	return t.d.Run(c, input)
}

func (t *Token) Construct(c *chain.Call, args []byte) error {
	if len(args) == 0 {
		return nil
	}
	vals, err := ABI.Constructor.Inputs.Unpack(args)
	if err != nil {
		return fmt.Errorf("erc721: decode constructor: %w", err)
	}
	c.Storage().Set("name", []byte(vals[0].(string)))
	c.Storage().Set("symbol", []byte(vals[1].(string)))
	return nil
}

func ownerKey(id *big.Int) string { return "owner/" + id.String() }
func approvedKey(id *big.Int) string { return "approved/" + id.String() }
func balanceKey(a common.Address) string {
	return "balance/" + a.Hex()
}
func operatorKey(owner, op common.Address) string {
	return "operator/" + owner.Hex() + "/" + op.Hex()
}

func (t *Token) name(c *chain.Call, _ []interface{}) ([]interface{}, error) {
	b, err := c.Storage().Get("name")
	return []interface{}{string(b)}, err
}

func (t *Token) symbol(c *chain.Call, _ []interface{}) ([]interface{}, error) {
	b, err := c.Storage().Get("symbol")
	return []interface{}{string(b)}, err
}

func requireOwned(s chain.Storage, id *big.Int) (common.Address, error) {
	owner, err := s.Address(ownerKey(id))
	if err != nil {
		return common.Address{}, err
	}
	if owner == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrNonexistentToken, id)
	}
	return owner, nil
}

func addBalance(s chain.Storage, a common.Address, delta int64) error {
	n, err := s.Uint64(balanceKey(a))
	if err != nil {
		return err
	}
	s.SetUint64(balanceKey(a), uint64(int64(n)+delta))
	return nil
}

// mint creates tokenId owned by the caller. Anyone may mint.
func (t *Token) mint(c *chain.Call, args []interface{}) ([]interface{}, error) {
	id := args[0].(*big.Int)
	s := c.Storage()
	owner, err := s.Address(ownerKey(id))
	if err != nil {
		return nil, err
	}
	if owner != (common.Address{}) {
		return nil, fmt.Errorf("%w: %s", ErrTokenExists, id)
	}
	to := c.Caller()
	s.SetAddress(ownerKey(id), to)
	if err := addBalance(s, to, 1); err != nil {
		return nil, err
	}
	return nil, c.EmitEvent(ABI.Events["Transfer"], common.Address{}, to, id)
}

func (t *Token) ownerOf(c *chain.Call, args []interface{}) ([]interface{}, error) {
	owner, err := requireOwned(c.Storage(), args[0].(*big.Int))
	if err != nil {
		return nil, err
	}
	return []interface{}{owner}, nil
}

func (t *Token) balanceOf(c *chain.Call, args []interface{}) ([]interface{}, error) {
	owner := args[0].(common.Address)
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero address", ErrInvalidReceiver)
	}
	n, err := c.Storage().Uint64(balanceKey(owner))
	if err != nil {
		return nil, err
	}
	return []interface{}{new(big.Int).SetUint64(n)}, nil
}

func (t *Token) approve(c *chain.Call, args []interface{}) ([]interface{}, error) {
	to, id := args[0].(common.Address), args[1].(*big.Int)
	s := c.Storage()
	owner, err := requireOwned(s, id)
	if err != nil {
		return nil, err
	}
	if c.Caller() != owner {
		ok, err := s.Bool(operatorKey(owner, c.Caller()))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidApprover, c.Caller().Hex())
		}
	}
	s.SetAddress(approvedKey(id), to)
	return nil, c.EmitEvent(ABI.Events["Approval"], owner, to, id)
}

func (t *Token) getApproved(c *chain.Call, args []interface{}) ([]interface{}, error) {
	id := args[0].(*big.Int)
	if _, err := requireOwned(c.Storage(), id); err != nil {
		return nil, err
	}
	a, err := c.Storage().Address(approvedKey(id))
	return []interface{}{a}, err
}

func (t *Token) setApprovalForAll(c *chain.Call, args []interface{}) ([]interface{}, error) {
	op, approved := args[0].(common.Address), args[1].(bool)
	if op == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero operator", domain.ErrInvalidArgument)
	}
	c.Storage().SetBool(operatorKey(c.Caller(), op), approved)
	return nil, c.EmitEvent(ABI.Events["ApprovalForAll"], c.Caller(), op, approved)
}

func (t *Token) isApprovedForAll(c *chain.Call, args []interface{}) ([]interface{}, error) {
	ok, err := c.Storage().Bool(operatorKey(args[0].(common.Address), args[1].(common.Address)))
	return []interface{}{ok}, err
}

func (t *Token) transferFrom(c *chain.Call, args []interface{}) ([]interface{}, error) {
	from, to, id := args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int)
	if to == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero address", ErrInvalidReceiver)
	}
	s := c.Storage()
	owner, err := requireOwned(s, id)
	if err != nil {
		return nil, err
	}
	if owner != from {
		return nil, fmt.Errorf("%w: %s does not own %s", ErrIncorrectOwner, from.Hex(), id)
	}

	spender := c.Caller()
	if spender != owner {
		approved, err := s.Address(approvedKey(id))
		if err != nil {
			return nil, err
		}
		operator, err := s.Bool(operatorKey(owner, spender))
		if err != nil {
			return nil, err
		}
		if approved != spender && !operator {
			return nil, fmt.Errorf("%w: %s for token %s", ErrInsufficientApproval, spender.Hex(), id)
		}
	}

	s.Delete(approvedKey(id))
	if err := addBalance(s, from, -1); err != nil {
		return nil, err
	}
	if err := addBalance(s, to, 1); err != nil {
		return nil, err
	}
	s.SetAddress(ownerKey(id), to)
	return nil, c.EmitEvent(ABI.Events["Transfer"], from, to, id)
}
