package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/nftmarket/internal/config"
	"github.com/alanyoungcy/nftmarket/internal/crypto"
	"github.com/alanyoungcy/nftmarket/internal/genesis"
	"github.com/alanyoungcy/nftmarket/internal/market"
	"github.com/alanyoungcy/nftmarket/internal/proxy"
	"github.com/alanyoungcy/nftmarket/internal/registry"
)

// call is one signed transaction built from command arguments once the
// deployment address book is known.
type call struct {
	to    common.Address
	value *big.Int
	data  []byte
}

type buildFunc func(d genesis.Deployments, args []string) (call, error)

// txCmd is a transaction subcommand together with its calldata builder.
type txCmd struct {
	*cobra.Command
	build buildFunc
}

func txCommands() []*txCmd {
	var (
		asset     string
		proposals bool
		operator  string
		impl      string
	)

	mint := txCommand("mint <token-id>", "Mint a token on the registry", 1,
		func(d genesis.Deployments, args []string) (call, error) {
			id, err := parseBig(args[0])
			if err != nil {
				return call{}, err
			}
			data, err := registry.MintData(id)
			return call{to: d.Registry, data: data}, err
		})

	approve := txCommand("approve <token-id>", "Approve the marketplace (or --operator) to move a token", 1,
		func(d genesis.Deployments, args []string) (call, error) {
			id, err := parseBig(args[0])
			if err != nil {
				return call{}, err
			}
			to := d.Proxy
			if operator != "" {
				if to, err = parseAddress(operator); err != nil {
					return call{}, err
				}
			}
			data, err := registry.ApproveData(to, id)
			return call{to: d.Registry, data: data}, err
		})
	approve.Flags().StringVar(&operator, "operator", "", "address to approve (default: marketplace proxy)")

	createOrder := txCommand("create-order <token-id> <price-ether>", "List a token for sale", 2,
		func(d genesis.Deployments, args []string) (call, error) {
			id, err := parseBig(args[0])
			if err != nil {
				return call{}, err
			}
			price, err := config.EtherToWei(args[1])
			if err != nil {
				return call{}, err
			}
			contract := d.Registry
			if asset != "" {
				if contract, err = parseAddress(asset); err != nil {
					return call{}, err
				}
			}
			data, err := market.CreateOrderData(contract, id, price, proposals)
			return call{to: d.Proxy, data: data}, err
		})
	createOrder.Flags().StringVar(&asset, "asset", "", "asset contract (default: deployed registry)")
	createOrder.Flags().BoolVar(&proposals, "proposals", true, "accept price proposals")

	cancel := txCommand("cancel-order <order-id>", "Cancel an active order", 1,
		orderCall(market.CancelOrderData))

	buy := txCommand("buy <order-id> <price-ether>", "Buy an order at its asking price", 2,
		func(d genesis.Deployments, args []string) (call, error) {
			id, err := parseUint(args[0])
			if err != nil {
				return call{}, err
			}
			value, err := config.EtherToWei(args[1])
			if err != nil {
				return call{}, err
			}
			data, err := market.BuyData(id)
			return call{to: d.Proxy, value: value, data: data}, err
		})

	propose := txCommand("propose <order-id> <amount-ether>", "Propose a price for an order", 2,
		func(d genesis.Deployments, args []string) (call, error) {
			id, err := parseUint(args[0])
			if err != nil {
				return call{}, err
			}
			amount, err := config.EtherToWei(args[1])
			if err != nil {
				return call{}, err
			}
			data, err := market.ProposePriceData(id, amount)
			return call{to: d.Proxy, data: data}, err
		})

	accept := txCommand("accept <order-id> <index>", "Accept a pending proposal (seller)", 2,
		proposalCall(market.AcceptProposalData))
	reject := txCommand("reject <order-id> <index>", "Reject a pending proposal (seller)", 2,
		proposalCall(market.RejectProposalData))
	withdraw := txCommand("withdraw <order-id> <index>", "Withdraw your pending proposal", 2,
		proposalCall(market.WithdrawProposalData))

	pay := txCommand("pay <address> <amount-ether>", "Send native value to an account, e.g. a seller before they accept your proposal", 2,
		func(_ genesis.Deployments, args []string) (call, error) {
			to, err := parseAddress(args[0])
			if err != nil {
				return call{}, err
			}
			value, err := config.EtherToWei(args[1])
			if err != nil {
				return call{}, err
			}
			return call{to: to, value: value}, nil
		})

	upgrade := txCommand("upgrade", "Point the proxy at a new logic contract and run its initializer", 0,
		func(d genesis.Deployments, _ []string) (call, error) {
			target := d.LogicV2
			if impl != "" {
				var err error
				if target, err = parseAddress(impl); err != nil {
					return call{}, err
				}
			}
			initData, err := market.InitializeV2Data()
			if err != nil {
				return call{}, err
			}
			data, err := proxy.UpgradeAndCallData(d.Proxy, target, initData)
			return call{to: d.ProxyAdmin, data: data}, err
		})
	upgrade.Flags().StringVar(&impl, "impl", "", "logic address (default: deployed version 2 logic)")

	return []*txCmd{mint, approve, createOrder, cancel, buy, propose, accept, reject, withdraw, pay, upgrade}
}

// txCommand wraps build in the load-sign-submit flow shared by every
// transaction subcommand.
func txCommand(use, short string, nargs int, build buildFunc) *txCmd {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			signer, err := loadSigner(cfg)
			if err != nil {
				return err
			}
			out, err := sendTx(cmd.Context(), newAPIClient(apiURL), signer, build, args)
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if json.Indent(&pretty, out, "", "  ") != nil {
				pretty.Reset()
				pretty.Write(out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}
	return &txCmd{Command: cmd, build: build}
}

func sendTx(ctx context.Context, c *apiClient, signer *crypto.Signer, build buildFunc, args []string) (json.RawMessage, error) {
	deps, err := c.deployments(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := build(deps, args)
	if err != nil {
		return nil, err
	}
	nonce, err := c.nonce(ctx, signer.Address())
	if err != nil {
		return nil, err
	}

	env := &crypto.CallEnvelope{
		To:    tx.to,
		Data:  tx.data,
		Nonce: hexutil.Uint64(nonce),
	}
	if tx.value != nil && tx.value.Sign() > 0 {
		env.Value = (*hexutil.Big)(tx.value)
	}
	if err := signer.SignCall(env); err != nil {
		return nil, err
	}
	return c.submit(ctx, env)
}

func orderCall(pack func(uint64) ([]byte, error)) buildFunc {
	return func(d genesis.Deployments, args []string) (call, error) {
		id, err := parseUint(args[0])
		if err != nil {
			return call{}, err
		}
		data, err := pack(id)
		return call{to: d.Proxy, data: data}, err
	}
}

func proposalCall(pack func(uint64, uint64) ([]byte, error)) buildFunc {
	return func(d genesis.Deployments, args []string) (call, error) {
		id, err := parseUint(args[0])
		if err != nil {
			return call{}, err
		}
		index, err := parseUint(args[1])
		if err != nil {
			return call{}, err
		}
		data, err := pack(id, index)
		return call{to: d.Proxy, data: data}, err
	}
}

func parseUint(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return n, nil
}

func parseBig(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid token id %q", s)
	}
	return n, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
