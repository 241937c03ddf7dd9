package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/chain"
)

// ownerOf asks the asset registry who owns tokenID.
func ownerOf(c *chain.Call, registry common.Address, tokenID *big.Int) (common.Address, error) {
	data, err := AssetRegistryABI.Pack("ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	out, err := c.CallContract(registry, nil, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("market: ownerOf %s: %w", tokenID, err)
	}
	vals, err := chain.Unpack(AssetRegistryABI, "ownerOf", out)
	if err != nil {
		return common.Address{}, err
	}
	return vals[0].(common.Address), nil
}

// transferAsset moves tokenID from seller to recipient. The registry
// decides whether the marketplace is authorised to do so.
func transferAsset(c *chain.Call, registry, seller, recipient common.Address, tokenID *big.Int) error {
	data, err := AssetRegistryABI.Pack("transferFrom", seller, recipient, tokenID)
	if err != nil {
		return err
	}
	if _, err := c.CallContract(registry, nil, data); err != nil {
		return fmt.Errorf("market: transfer token %s: %w", tokenID, err)
	}
	return nil
}
