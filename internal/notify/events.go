package notify

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// NotifyEvent formats a committed marketplace event and sends it, subject
// to the event filter. Events without a message template are dropped.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.MarketEvent) error {
	title, message, ok := Format(ev)
	if !ok {
		return nil
	}
	return n.Notify(ctx, ev.Name, title, message)
}

// Format renders ev for humans.
func Format(ev domain.MarketEvent) (title, message string, ok bool) {
	switch ev.Name {
	case domain.EventOrderCreated:
		return fmt.Sprintf("Order #%d listed", ev.OrderID),
			fmt.Sprintf("%s listed token %s of %s for %s ETH",
				short(ev.Seller), ev.TokenID, short(ev.AssetContract), ether(ev.Price)), true
	case domain.EventNFTTransferred:
		return fmt.Sprintf("Token #%s sold", ev.TokenID),
			fmt.Sprintf("%s bought token %s of %s from %s for %s ETH",
				short(ev.Buyer), ev.TokenID, short(ev.AssetContract), short(ev.Seller), ether(ev.Price)), true
	case domain.EventProposalCreated:
		return fmt.Sprintf("Offer on order #%d", ev.OrderID),
			fmt.Sprintf("%s offered %s ETH", short(ev.Proposer), ether(ev.Amount)), true
	case domain.EventProposalAccepted:
		return fmt.Sprintf("Offer accepted on order #%d", ev.OrderID),
			fmt.Sprintf("The offer by %s for %s ETH was accepted", short(ev.Proposer), ether(ev.Amount)), true
	case domain.EventUpgraded:
		return "Marketplace upgraded",
			fmt.Sprintf("Proxy %s now points at %s", short(ev.Contract), ev.Implementation.Hex()), true
	case domain.EventOwnershipTransferred:
		return "Proxy admin ownership transferred",
			fmt.Sprintf("%s -> %s", ev.PreviousAdmin.Hex(), ev.NewAdmin.Hex()), true
	}
	return "", "", false
}

func ether(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}

func short(a common.Address) string {
	h := a.Hex()
	return h[:6] + "…" + h[len(h)-4:]
}
