package registry

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/chain"
)

// MintData encodes mint(tokenId).
func MintData(tokenID *big.Int) ([]byte, error) {
	return ABI.Pack("mint", tokenID)
}

// ApproveData encodes approve(to, tokenId).
func ApproveData(to common.Address, tokenID *big.Int) ([]byte, error) {
	return ABI.Pack("approve", to, tokenID)
}

// SetApprovalForAllData encodes setApprovalForAll(operator, approved).
func SetApprovalForAllData(operator common.Address, approved bool) ([]byte, error) {
	return ABI.Pack("setApprovalForAll", operator, approved)
}

// Viewer runs read-only calls.
type Viewer interface {
	View(ctx context.Context, msg chain.Message) ([]byte, error)
}

// OwnerOf reads the owner of tokenID from the registry at contract.
func OwnerOf(ctx context.Context, v Viewer, contract common.Address, tokenID *big.Int) (common.Address, error) {
	data, err := ABI.Pack("ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	out, err := v.View(ctx, chain.Message{To: contract, Data: data})
	if err != nil {
		return common.Address{}, fmt.Errorf("registry: owner of %s: %w", tokenID, err)
	}
	vals, err := chain.Unpack(ABI, "ownerOf", out)
	if err != nil {
		return common.Address{}, err
	}
	return vals[0].(common.Address), nil
}
