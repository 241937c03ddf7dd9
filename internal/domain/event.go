package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event names emitted by the marketplace, its proxy and the proxy admin.
const (
	EventOrderCreated         = "OrderCreated"
	EventOrderCancelled       = "OrderCancelled"
	EventNFTTransferred       = "NFTTransferred"
	EventProposalCreated      = "ProposalCreated"
	EventProposalAccepted     = "ProposalAccepted"
	EventProposalRejected     = "ProposalRejected"
	EventProposalWithdrawn    = "ProposalWithdrawn"
	EventInitialized          = "Initialized"
	EventUpgraded             = "Upgraded"
	EventAdminChanged         = "AdminChanged"
	EventOwnershipTransferred = "OwnershipTransferred"
	EventTransfer             = "Transfer"
)

// MarketEvent is a decoded, committed log entry. Only the fields relevant
// to Name are populated.
type MarketEvent struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Contract common.Address `json:"contract"`
	TxHash   common.Hash    `json:"txHash"`
	Height   uint64         `json:"height"`
	LogIndex uint           `json:"logIndex"`

	OrderID          uint64         `json:"orderId,omitempty"`
	ProposalIndex    uint64         `json:"proposalIndex,omitempty"`
	Seller           common.Address `json:"seller,omitempty"`
	Buyer            common.Address `json:"buyer,omitempty"`
	Proposer         common.Address `json:"proposer,omitempty"`
	AssetContract    common.Address `json:"assetContract,omitempty"`
	TokenID          *big.Int       `json:"tokenId,omitempty"`
	Price            *big.Int       `json:"price,omitempty"`
	Amount           *big.Int       `json:"amount,omitempty"`
	AcceptsProposals bool           `json:"acceptsProposals,omitempty"`
	Version          uint64         `json:"version,omitempty"`
	Implementation   common.Address `json:"implementation,omitempty"`
	PreviousAdmin    common.Address `json:"previousAdmin,omitempty"`
	NewAdmin         common.Address `json:"newAdmin,omitempty"`
	From             common.Address `json:"from,omitempty"`
	To               common.Address `json:"to,omitempty"`

	CommittedAt time.Time `json:"committedAt"`
}
