package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// createOrder lists a token the caller owns. The token stays with the
// seller until settlement.
func createOrder(c *chain.Call, args []interface{}) ([]interface{}, error) {
	asset := args[0].(common.Address)
	tokenID := args[1].(*big.Int)
	price := args[2].(*big.Int)
	accepts := args[3].(bool)

	if asset == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero asset contract", domain.ErrInvalidArgument)
	}
	owner, err := ownerOf(c, asset, tokenID)
	if err != nil {
		return nil, err
	}
	if err := requireRole(c, owner, domain.RoleAssetOwner, fmt.Sprintf("token %s", tokenID)); err != nil {
		return nil, err
	}

	b := bookOf(c)
	id, err := b.nextOrderID()
	if err != nil {
		return nil, err
	}
	rec := orderRecord{
		Seller:           c.Caller(),
		AssetContract:    asset,
		TokenID:          tokenID,
		Price:            price,
		AcceptsProposals: accepts,
		Active:           true,
	}
	if err := b.putOrder(id, rec); err != nil {
		return nil, err
	}
	b.s.SetUint64(keyNextOrder, id+1)

	idBig := new(big.Int).SetUint64(id)
	if err := c.EmitEvent(ABI.Events["OrderCreated"], idBig, rec.Seller, asset, tokenID, price, accepts); err != nil {
		return nil, err
	}
	return []interface{}{idBig}, nil
}

func cancelOrder(c *chain.Call, args []interface{}) ([]interface{}, error) {
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
	rec.Active = false
	if err := b.putOrder(id, rec); err != nil {
		return nil, err
	}
	return nil, c.EmitEvent(ABI.Events["OrderCancelled"], new(big.Int).SetUint64(id))
}

func getOrder(c *chain.Call, args []interface{}) ([]interface{}, error) {
	id, ok := idArg(args[0])
	if !ok {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, args[0])
	}
	rec, err := bookOf(c).order(id)
	if err != nil {
		return nil, err
	}
	return []interface{}{rec.Seller, rec.AssetContract, rec.TokenID, rec.Price, rec.AcceptsProposals, rec.Active}, nil
}

func nextOrderID(c *chain.Call, _ []interface{}) ([]interface{}, error) {
	id, err := bookOf(c).nextOrderID()
	if err != nil {
		return nil, err
	}
	return []interface{}{new(big.Int).SetUint64(id)}, nil
}
