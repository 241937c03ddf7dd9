// Package eventlog turns committed receipt logs into domain events.
package eventlog

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/market"
	"github.com/alanyoungcy/nftmarket/internal/proxy"
	"github.com/alanyoungcy/nftmarket/internal/registry"
)

var sources = []abi.ABI{market.ABI, proxy.ProxyABI, proxy.AdminABI, registry.ABI}

// Decode returns the recognised events of rcpt in log order. Logs from
// unknown contracts and events the read side does not track are skipped.
func Decode(rcpt *chain.Receipt) []domain.MarketEvent {
	var out []domain.MarketEvent
	for _, l := range rcpt.Logs {
		ev, ok := decodeLog(l)
		if !ok {
			continue
		}
		ev.ID = fmt.Sprintf("%s-%d", rcpt.TxHash.Hex(), l.Index)
		ev.TxHash = rcpt.TxHash
		ev.Height = rcpt.Height
		ev.LogIndex = l.Index
		ev.CommittedAt = rcpt.CommittedAt
		out = append(out, ev)
	}
	return out
}

func decodeLog(l chain.Log) (domain.MarketEvent, bool) {
	for _, a := range sources {
		e, fields, err := chain.DecodeLog(a, l)
		if err != nil {
			continue
		}
		ev := domain.MarketEvent{Name: e.Name, Contract: l.Address}
		if !fill(&ev, fields) {
			return domain.MarketEvent{}, false
		}
		return ev, true
	}
	return domain.MarketEvent{}, false
}

func fill(ev *domain.MarketEvent, f map[string]interface{}) bool {
	switch ev.Name {
	case domain.EventOrderCreated:
		ev.OrderID = u64(f["orderId"])
		ev.Seller = addr(f["seller"])
		ev.AssetContract = addr(f["nftContract"])
		ev.TokenID = num(f["tokenId"])
		ev.Price = num(f["price"])
		ev.AcceptsProposals, _ = f["acceptsProposals"].(bool)
	case domain.EventOrderCancelled:
		ev.OrderID = u64(f["orderId"])
	case domain.EventNFTTransferred:
		ev.Seller = addr(f["seller"])
		ev.Buyer = addr(f["buyer"])
		ev.AssetContract = addr(f["nftContract"])
		ev.TokenID = num(f["tokenId"])
		ev.Price = num(f["price"])
	case domain.EventProposalCreated, domain.EventProposalAccepted:
		ev.OrderID = u64(f["orderId"])
		ev.Proposer = addr(f["proposer"])
		ev.Amount = num(f["amount"])
	case domain.EventProposalRejected, domain.EventProposalWithdrawn:
		ev.OrderID = u64(f["orderId"])
		ev.ProposalIndex = u64(f["index"])
	case domain.EventInitialized:
		ev.Version, _ = f["version"].(uint64)
	case domain.EventUpgraded:
		ev.Implementation = addr(f["implementation"])
	case domain.EventAdminChanged:
		ev.PreviousAdmin = addr(f["previousAdmin"])
		ev.NewAdmin = addr(f["newAdmin"])
	case domain.EventOwnershipTransferred:
		ev.PreviousAdmin = addr(f["previousOwner"])
		ev.NewAdmin = addr(f["newOwner"])
	case domain.EventTransfer:
		ev.From = addr(f["from"])
		ev.To = addr(f["to"])
		ev.TokenID = num(f["tokenId"])
	default:
		return false
	}
	return true
}

func u64(v interface{}) uint64 {
	if b, ok := v.(*big.Int); ok && b.IsUint64() {
		return b.Uint64()
	}
	return 0
}

func num(v interface{}) *big.Int {
	if b, ok := v.(*big.Int); ok {
		return new(big.Int).Set(b)
	}
	return nil
}

func addr(v interface{}) common.Address {
	a, _ := v.(common.Address)
	return a
}
