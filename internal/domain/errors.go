package domain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Marketplace outcome kinds.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidState        = errors.New("invalid state")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientPayment = errors.New("insufficient payment")
)

// Infrastructure errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrLockHeld      = errors.New("lock already held")
	ErrBadSignature  = errors.New("bad signature")
	ErrBadNonce      = errors.New("bad nonce")
	ErrUnavailable   = errors.New("component unavailable")
)

// Role names the principal an operation is restricted to.
type Role string

const (
	RoleSeller     Role = "seller"
	RoleProposer   Role = "proposer"
	RoleAssetOwner Role = "asset owner"
	RoleAdmin      Role = "admin"
	RoleOwner      Role = "owner"
)

// AccessError reports a caller that does not hold the role an operation
// requires on a specific entity.
type AccessError struct {
	Caller common.Address
	Role   Role
	Entity string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("unauthorized: %s is not the %s of %s", e.Caller.Hex(), e.Role, e.Entity)
}

func (e *AccessError) Unwrap() error { return ErrUnauthorized }
