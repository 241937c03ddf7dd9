package chain

import (
	"errors"
	"fmt"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// MaxCallDepth bounds nested calls within a single transaction.
const MaxCallDepth = 64

var (
	ErrCallDepth         = errors.New("chain: call depth exceeded")
	ErrInsufficientFunds = errors.New("chain: insufficient funds")
	ErrNoCode            = fmt.Errorf("chain: no contract code at address: %w", domain.ErrInvalidArgument)
	ErrUnknownCode       = errors.New("chain: unknown code")
	ErrAddressCollision  = errors.New("chain: contract address already in use")
	ErrUnknownMethod     = fmt.Errorf("chain: unknown method: %w", domain.ErrInvalidArgument)
	ErrNoReceive         = fmt.Errorf("chain: contract does not accept plain transfers: %w", domain.ErrInvalidArgument)
	ErrNotPayable        = fmt.Errorf("chain: method is not payable: %w", domain.ErrInvalidArgument)
	ErrNoRecipient       = fmt.Errorf("chain: missing recipient: %w", domain.ErrInvalidArgument)
)
