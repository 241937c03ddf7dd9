package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// Storage keys inside the proxy's slot space. Every logic version reads
// and writes the same keys; new versions may add keys and append optional
// trailing record fields, never reorder or repurpose existing ones.
const (
	keyInitialized = "initialized"
	keyNextOrder   = "order.next"
)

func orderKey(id uint64) string {
	return fmt.Sprintf("order/%d", id)
}

func proposalCountKey(orderID uint64) string {
	return fmt.Sprintf("proposal.count/%d", orderID)
}

func proposalKey(orderID, index uint64) string {
	return fmt.Sprintf("proposal/%d/%d", orderID, index)
}

type orderRecord struct {
	Seller           common.Address
	AssetContract    common.Address
	TokenID          *big.Int
	Price            *big.Int
	AcceptsProposals bool
	Active           bool
}

type proposalRecord struct {
	Proposer common.Address
	Amount   *big.Int
	Status   uint8
}

// book is typed access to the marketplace slots of one call frame.
type book struct {
	s chain.Storage
}

func bookOf(c *chain.Call) book {
	return book{s: c.Storage()}
}

func (b book) nextOrderID() (uint64, error) {
	n, err := b.s.Uint64(keyNextOrder)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		n = 1
	}
	return n, nil
}

// order loads an existing order. Missing orders are reported as
// domain.ErrNotFound.
func (b book) order(id uint64) (orderRecord, error) {
	raw, err := b.s.Get(orderKey(id))
	if err != nil {
		return orderRecord{}, err
	}
	if raw == nil {
		return orderRecord{}, fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	var rec orderRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return orderRecord{}, fmt.Errorf("market: decode order %d: %w", id, err)
	}
	return rec, nil
}

func (b book) putOrder(id uint64, rec orderRecord) error {
	raw, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return fmt.Errorf("market: encode order %d: %w", id, err)
	}
	b.s.Set(orderKey(id), raw)
	return nil
}

func (b book) proposalCount(orderID uint64) (uint64, error) {
	return b.s.Uint64(proposalCountKey(orderID))
}

func (b book) proposal(orderID, index uint64) (proposalRecord, error) {
	raw, err := b.s.Get(proposalKey(orderID, index))
	if err != nil {
		return proposalRecord{}, err
	}
	if raw == nil {
		return proposalRecord{}, fmt.Errorf("%w: proposal %d of order %d", domain.ErrNotFound, index, orderID)
	}
	var rec proposalRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return proposalRecord{}, fmt.Errorf("market: decode proposal %d/%d: %w", orderID, index, err)
	}
	return rec, nil
}

func (b book) putProposal(orderID, index uint64, rec proposalRecord) error {
	raw, err := rlp.EncodeToBytes(&rec)
	if err != nil {
		return fmt.Errorf("market: encode proposal %d/%d: %w", orderID, index, err)
	}
	b.s.Set(proposalKey(orderID, index), raw)
	return nil
}

func (r orderRecord) toDomain(id uint64) domain.Order {
	return domain.Order{
		ID:               id,
		Seller:           r.Seller,
		AssetContract:    r.AssetContract,
		TokenID:          r.TokenID,
		Price:            r.Price,
		AcceptsProposals: r.AcceptsProposals,
		Active:           r.Active,
	}
}

// idArg narrows a uint256 id argument. Ids that do not fit in uint64 were
// never issued.
func idArg(v interface{}) (uint64, bool) {
	b := v.(*big.Int)
	if !b.IsUint64() {
		return 0, false
	}
	return b.Uint64(), true
}
