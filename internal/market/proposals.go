package market

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// proposePrice records a counter-offer strictly below the listed price.
// No funds are escrowed.
func proposePrice(c *chain.Call, args []interface{}) ([]interface{}, error) {
	b := bookOf(c)
	id, rec, err := existingOrder(b, args[0])
	if err != nil {
		return nil, err
	}
	amount := args[1].(*big.Int)

	if !rec.Active || !rec.AcceptsProposals {
		return nil, fmt.Errorf("%w: order %d is not open to proposals", domain.ErrInvalidState, id)
	}
	if amount.Cmp(rec.Price) >= 0 {
		return nil, fmt.Errorf("%w: proposal %s must be below price %s", domain.ErrInvalidArgument, amount, rec.Price)
	}

	idx, err := b.proposalCount(id)
	if err != nil {
		return nil, err
	}
	p := proposalRecord{Proposer: c.Caller(), Amount: amount, Status: uint8(domain.ProposalPending)}
	if err := b.putProposal(id, idx, p); err != nil {
		return nil, err
	}
	b.s.SetUint64(proposalCountKey(id), idx+1)

	if err := c.EmitEvent(ABI.Events["ProposalCreated"], new(big.Int).SetUint64(id), p.Proposer, amount); err != nil {
		return nil, err
	}
	return []interface{}{new(big.Int).SetUint64(idx)}, nil
}

// acceptProposal closes the order in the proposer's favour and moves the
// token. Payment is settled outside the marketplace.
func acceptProposal(c *chain.Call, args []interface{}) ([]interface{}, error) {
	b := bookOf(c)
	id, rec, err := existingOrder(b, args[0])
	if err != nil {
		return nil, err
	}
	if err := requireRole(c, rec.Seller, domain.RoleSeller, orderEntity(id)); err != nil {
		return nil, err
	}
	if err := requireActive(id, rec); err != nil {
		return nil, err
	}
	idx, p, err := pendingProposal(b, id, args[1])
	if err != nil {
		return nil, err
	}

	p.Status = uint8(domain.ProposalAccepted)
	if err := b.putProposal(id, idx, p); err != nil {
		return nil, err
	}
	rec.Active = false
	if err := b.putOrder(id, rec); err != nil {
		return nil, err
	}
	if err := c.EmitEvent(ABI.Events["ProposalAccepted"], new(big.Int).SetUint64(id), p.Proposer, p.Amount); err != nil {
		return nil, err
	}

	if err := transferAsset(c, rec.AssetContract, rec.Seller, p.Proposer, rec.TokenID); err != nil {
		return nil, fmt.Errorf("market: accept proposal %d/%d: %w", id, idx, err)
	}
	return nil, nil
}

func rejectProposal(c *chain.Call, args []interface{}) ([]interface{}, error) {
	b := bookOf(c)
	id, rec, err := existingOrder(b, args[0])
	if err != nil {
		return nil, err
	}
	if err := requireRole(c, rec.Seller, domain.RoleSeller, orderEntity(id)); err != nil {
		return nil, err
	}
	idx, p, err := pendingProposal(b, id, args[1])
	if err != nil {
		return nil, err
	}
	p.Status = uint8(domain.ProposalRejected)
	if err := b.putProposal(id, idx, p); err != nil {
		return nil, err
	}
	return nil, c.EmitEvent(ABI.Events["ProposalRejected"], new(big.Int).SetUint64(id), new(big.Int).SetUint64(idx))
}

// withdrawProposal lets a proposer retract a pending offer.
func withdrawProposal(c *chain.Call, args []interface{}) ([]interface{}, error) {
	b := bookOf(c)
	id, _, err := existingOrder(b, args[0])
	if err != nil {
		return nil, err
	}
	idx, p, err := pendingProposal(b, id, args[1])
	if err != nil {
		return nil, err
	}
	if err := requireRole(c, p.Proposer, domain.RoleProposer, fmt.Sprintf("proposal %d of order %d", idx, id)); err != nil {
		return nil, err
	}
	p.Status = uint8(domain.ProposalWithdrawn)
	if err := b.putProposal(id, idx, p); err != nil {
		return nil, err
	}
	return nil, c.EmitEvent(ABI.Events["ProposalWithdrawn"], new(big.Int).SetUint64(id), new(big.Int).SetUint64(idx))
}

func proposalCount(c *chain.Call, args []interface{}) ([]interface{}, error) {
	id, ok := idArg(args[0])
	if !ok {
		return []interface{}{new(big.Int)}, nil
	}
	n, err := bookOf(c).proposalCount(id)
	if err != nil {
		return nil, err
	}
	return []interface{}{new(big.Int).SetUint64(n)}, nil
}

func getProposal(c *chain.Call, args []interface{}) ([]interface{}, error) {
	id, ok1 := idArg(args[0])
	idx, ok2 := idArg(args[1])
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: proposal %s of order %s", domain.ErrNotFound, args[1], args[0])
	}
	p, err := bookOf(c).proposal(id, idx)
	if err != nil {
		return nil, err
	}
	return []interface{}{p.Proposer, p.Amount, p.Status}, nil
}
