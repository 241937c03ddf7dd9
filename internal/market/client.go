package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// Backend executes and views marketplace calls.
type Backend interface {
	Execute(ctx context.Context, msg chain.Message) (*chain.Receipt, error)
	View(ctx context.Context, msg chain.Message) ([]byte, error)
}

// Client is a typed wrapper around calls to the marketplace address.
type Client struct {
	backend Backend
	address common.Address
}

// NewClient targets the marketplace at address, normally the proxy.
func NewClient(backend Backend, address common.Address) *Client {
	return &Client{backend: backend, address: address}
}

// Address returns the marketplace address the client calls.
func (cl *Client) Address() common.Address { return cl.address }

func (cl *Client) send(ctx context.Context, from common.Address, value *big.Int, data []byte, err error) (*chain.Receipt, error) {
	if err != nil {
		return nil, fmt.Errorf("market: pack: %w", err)
	}
	return cl.backend.Execute(ctx, chain.Message{From: from, To: cl.address, Value: value, Data: data})
}

func (cl *Client) view(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("market: pack %s: %w", method, err)
	}
	out, err := cl.backend.View(ctx, chain.Message{To: cl.address, Data: data})
	if err != nil {
		return nil, err
	}
	return chain.Unpack(ABI, method, out)
}

func returnedID(method string, rcpt *chain.Receipt) (uint64, error) {
	vals, err := chain.Unpack(ABI, method, rcpt.Return)
	if err != nil {
		return 0, err
	}
	return vals[0].(*big.Int).Uint64(), nil
}

// CreateOrder lists tokenID and returns the new order id.
func (cl *Client) CreateOrder(ctx context.Context, from, asset common.Address, tokenID, price *big.Int, acceptsProposals bool) (uint64, *chain.Receipt, error) {
	data, err := CreateOrderData(asset, tokenID, price, acceptsProposals)
	rcpt, err := cl.send(ctx, from, nil, data, err)
	if err != nil {
		return 0, nil, err
	}
	id, err := returnedID("createOrder", rcpt)
	return id, rcpt, err
}

func (cl *Client) CancelOrder(ctx context.Context, from common.Address, orderID uint64) (*chain.Receipt, error) {
	data, err := CancelOrderData(orderID)
	return cl.send(ctx, from, nil, data, err)
}

// Buy pays value for orderID. Value above the price is refunded.
func (cl *Client) Buy(ctx context.Context, from common.Address, orderID uint64, value *big.Int) (*chain.Receipt, error) {
	data, err := BuyData(orderID)
	return cl.send(ctx, from, value, data, err)
}

// ProposePrice records a counter-offer and returns its index.
func (cl *Client) ProposePrice(ctx context.Context, from common.Address, orderID uint64, amount *big.Int) (uint64, *chain.Receipt, error) {
	data, err := ProposePriceData(orderID, amount)
	rcpt, err := cl.send(ctx, from, nil, data, err)
	if err != nil {
		return 0, nil, err
	}
	idx, err := returnedID("proposePrice", rcpt)
	return idx, rcpt, err
}

func (cl *Client) AcceptProposal(ctx context.Context, from common.Address, orderID, index uint64) (*chain.Receipt, error) {
	data, err := AcceptProposalData(orderID, index)
	return cl.send(ctx, from, nil, data, err)
}

func (cl *Client) RejectProposal(ctx context.Context, from common.Address, orderID, index uint64) (*chain.Receipt, error) {
	data, err := RejectProposalData(orderID, index)
	return cl.send(ctx, from, nil, data, err)
}

func (cl *Client) WithdrawProposal(ctx context.Context, from common.Address, orderID, index uint64) (*chain.Receipt, error) {
	data, err := WithdrawProposalData(orderID, index)
	return cl.send(ctx, from, nil, data, err)
}

// Version returns the logic version currently behind the address.
func (cl *Client) Version(ctx context.Context) (uint64, error) {
	vals, err := cl.view(ctx, "version")
	if err != nil {
		return 0, err
	}
	return vals[0].(uint64), nil
}

func (cl *Client) NextOrderID(ctx context.Context) (uint64, error) {
	vals, err := cl.view(ctx, "nextOrderId")
	if err != nil {
		return 0, err
	}
	return vals[0].(*big.Int).Uint64(), nil
}

// Order reads an order. Unknown ids return domain.ErrNotFound.
func (cl *Client) Order(ctx context.Context, orderID uint64) (domain.Order, error) {
	vals, err := cl.view(ctx, "getOrder", new(big.Int).SetUint64(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return domain.Order{
		ID:               orderID,
		Seller:           vals[0].(common.Address),
		AssetContract:    vals[1].(common.Address),
		TokenID:          vals[2].(*big.Int),
		Price:            vals[3].(*big.Int),
		AcceptsProposals: vals[4].(bool),
		Active:           vals[5].(bool),
	}, nil
}

func (cl *Client) ProposalCount(ctx context.Context, orderID uint64) (uint64, error) {
	vals, err := cl.view(ctx, "proposalCount", new(big.Int).SetUint64(orderID))
	if err != nil {
		return 0, err
	}
	return vals[0].(*big.Int).Uint64(), nil
}

func (cl *Client) Proposal(ctx context.Context, orderID, index uint64) (domain.Proposal, error) {
	vals, err := cl.view(ctx, "getProposal", new(big.Int).SetUint64(orderID), new(big.Int).SetUint64(index))
	if err != nil {
		return domain.Proposal{}, err
	}
	return domain.Proposal{
		OrderID:  orderID,
		Index:    index,
		Proposer: vals[0].(common.Address),
		Amount:   vals[1].(*big.Int),
		Status:   domain.ProposalStatus(vals[2].(uint8)),
	}, nil
}

// Proposals reads every proposal of an order in index order.
func (cl *Client) Proposals(ctx context.Context, orderID uint64) ([]domain.Proposal, error) {
	n, err := cl.ProposalCount(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Proposal, 0, n)
	for i := uint64(0); i < n; i++ {
		p, err := cl.Proposal(ctx, orderID, i)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
