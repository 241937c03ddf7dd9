package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Order is a fixed-price listing of a single token.
type Order struct {
	ID               uint64         `json:"id"`
	Seller           common.Address `json:"seller"`
	AssetContract    common.Address `json:"assetContract"`
	TokenID          *big.Int       `json:"tokenId"`
	Price            *big.Int       `json:"price"`
	AcceptsProposals bool           `json:"acceptsProposals"`
	Active           bool           `json:"active"`
}

// ProposalStatus tracks a counter-offer's lifecycle. Every status other
// than Pending is terminal.
type ProposalStatus uint8

const (
	ProposalPending ProposalStatus = iota
	ProposalAccepted
	ProposalRejected
	ProposalWithdrawn
)

func (s ProposalStatus) String() string {
	switch s {
	case ProposalPending:
		return "pending"
	case ProposalAccepted:
		return "accepted"
	case ProposalRejected:
		return "rejected"
	case ProposalWithdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name.
func (s ProposalStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseProposalStatus is the inverse of ProposalStatus.String.
func ParseProposalStatus(s string) (ProposalStatus, error) {
	switch s {
	case "pending":
		return ProposalPending, nil
	case "accepted":
		return ProposalAccepted, nil
	case "rejected":
		return ProposalRejected, nil
	case "withdrawn":
		return ProposalWithdrawn, nil
	}
	return 0, fmt.Errorf("%w: proposal status %q", ErrInvalidArgument, s)
}

// Proposal is a counter-offer below an order's listed price.
type Proposal struct {
	OrderID  uint64         `json:"orderId"`
	Index    uint64         `json:"index"`
	Proposer common.Address `json:"proposer"`
	Amount   *big.Int       `json:"amount"`
	Status   ProposalStatus `json:"status"`
}

// UnmarshalText parses a status name.
func (s *ProposalStatus) UnmarshalText(b []byte) error {
	v, err := ParseProposalStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
