package market

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// requireRole fails unless the frame's caller is holder.
func requireRole(c *chain.Call, holder common.Address, role domain.Role, entity string) error {
	if c.Caller() != holder {
		return &domain.AccessError{Caller: c.Caller(), Role: role, Entity: entity}
	}
	return nil
}

// existingOrder loads an order that a mutation targets. A missing order is
// not in any state the mutation accepts.
func existingOrder(b book, arg interface{}) (uint64, orderRecord, error) {
	id, ok := idArg(arg)
	if !ok {
		return 0, orderRecord{}, fmt.Errorf("%w: order %s does not exist", domain.ErrInvalidState, arg)
	}
	rec, err := b.order(id)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, orderRecord{}, fmt.Errorf("%w: order %d does not exist", domain.ErrInvalidState, id)
	}
	return id, rec, err
}

func requireActive(id uint64, rec orderRecord) error {
	if !rec.Active {
		return fmt.Errorf("%w: order %d is not active", domain.ErrInvalidState, id)
	}
	return nil
}

// pendingProposal loads a proposal that a seller or proposer decision
// targets.
func pendingProposal(b book, orderID uint64, arg interface{}) (uint64, proposalRecord, error) {
	idx, ok := idArg(arg)
	if !ok {
		return 0, proposalRecord{}, fmt.Errorf("%w: order %d has no proposal %s", domain.ErrInvalidState, orderID, arg)
	}
	rec, err := b.proposal(orderID, idx)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, proposalRecord{}, fmt.Errorf("%w: order %d has no proposal %d", domain.ErrInvalidState, orderID, idx)
	}
	if err != nil {
		return 0, proposalRecord{}, err
	}
	if domain.ProposalStatus(rec.Status) != domain.ProposalPending {
		return 0, proposalRecord{}, fmt.Errorf("%w: proposal %d of order %d is %s",
			domain.ErrInvalidState, idx, orderID, domain.ProposalStatus(rec.Status))
	}
	return idx, rec, nil
}

func orderEntity(id uint64) string {
	return fmt.Sprintf("order %d", id)
}
