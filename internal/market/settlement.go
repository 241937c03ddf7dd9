package market

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// buy settles an order at its listed price. The order is closed before any
// external call so a re-entrant buy sees it inactive. A failure in the
// token transfer or either payout fails the whole call.
func buy(c *chain.Call, args []interface{}) ([]interface{}, error) {
	b := bookOf(c)
	id, rec, err := existingOrder(b, args[0])
	if err != nil {
		return nil, err
	}
	if err := requireActive(id, rec); err != nil {
		return nil, err
	}
	paid := c.Value()
	if paid.Cmp(rec.Price) < 0 {
		return nil, fmt.Errorf("%w: sent %s, order %d costs %s", domain.ErrInsufficientPayment, paid, id, rec.Price)
	}

	rec.Active = false
	if err := b.putOrder(id, rec); err != nil {
		return nil, err
	}

	buyer := c.Caller()
	if err := transferAsset(c, rec.AssetContract, rec.Seller, buyer, rec.TokenID); err != nil {
		return nil, fmt.Errorf("market: buy order %d: %w", id, err)
	}
	if err := c.Transfer(rec.Seller, rec.Price); err != nil {
		return nil, fmt.Errorf("market: pay seller of order %d: %w", id, err)
	}
	if refund := new(big.Int).Sub(paid, rec.Price); refund.Sign() > 0 {
		if err := c.Transfer(buyer, refund); err != nil {
			return nil, fmt.Errorf("market: refund buyer of order %d: %w", id, err)
		}
	}

	return nil, c.EmitEvent(ABI.Events["NFTTransferred"], rec.Seller, buyer, rec.AssetContract, rec.TokenID, rec.Price)
}
