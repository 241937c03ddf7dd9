package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Calldata builders for signed transactions.

func InitializeData() ([]byte, error) {
	return ABI.Pack("initialize")
}

func InitializeV2Data() ([]byte, error) {
	return ABI.Pack("initializeV2")
}

func CreateOrderData(asset common.Address, tokenID, price *big.Int, acceptsProposals bool) ([]byte, error) {
	return ABI.Pack("createOrder", asset, tokenID, price, acceptsProposals)
}

func CancelOrderData(orderID uint64) ([]byte, error) {
	return ABI.Pack("cancelOrder", new(big.Int).SetUint64(orderID))
}

func BuyData(orderID uint64) ([]byte, error) {
	return ABI.Pack("buy", new(big.Int).SetUint64(orderID))
}

func ProposePriceData(orderID uint64, amount *big.Int) ([]byte, error) {
	return ABI.Pack("proposePrice", new(big.Int).SetUint64(orderID), amount)
}

func AcceptProposalData(orderID, index uint64) ([]byte, error) {
	return ABI.Pack("acceptProposal", new(big.Int).SetUint64(orderID), new(big.Int).SetUint64(index))
}

func RejectProposalData(orderID, index uint64) ([]byte, error) {
	return ABI.Pack("rejectProposal", new(big.Int).SetUint64(orderID), new(big.Int).SetUint64(index))
}

func WithdrawProposalData(orderID, index uint64) ([]byte, error) {
	return ABI.Pack("withdrawProposal", new(big.Int).SetUint64(orderID), new(big.Int).SetUint64(index))
}
