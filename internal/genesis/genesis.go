// Package genesis registers contract code and performs the one-time
// deployment of the marketplace, its proxy and the reference registry.
package genesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/market"
	"github.com/alanyoungcy/nftmarket/internal/proxy"
	"github.com/alanyoungcy/nftmarket/internal/registry"
)

const metaDeployments = "deployments"

// Account is a genesis allocation.
type Account struct {
	Address common.Address
	Balance *big.Int
}

// Config describes the deployment.
type Config struct {
	// Deployer sends the deployment transactions. Defaults to AdminOwner.
	Deployer common.Address
	// AdminOwner owns the ProxyAdmin and so controls upgrades.
	AdminOwner  common.Address
	Accounts    []Account
	TokenName   string
	TokenSymbol string
}

// Deployments is the address book of a deployed marketplace.
type Deployments struct {
	Proxy      common.Address `json:"proxy"`
	ProxyAdmin common.Address `json:"proxyAdmin"`
	LogicV1    common.Address `json:"logicV1"`
	LogicV2    common.Address `json:"logicV2"`
	Registry   common.Address `json:"registry"`
}

// RegisterCodes makes every contract this repository ships available to env.
func RegisterCodes(env *chain.Env) {
	env.Register(market.CodeV1, market.NewV1())
	env.Register(market.CodeV2, market.NewV2())
	env.Register(proxy.CodeTransparent, proxy.NewTransparent())
	env.Register(proxy.CodeAdmin, proxy.NewAdmin())
	env.Register(registry.Code, registry.New())
}

// Load returns the recorded deployments, if any.
func Load(env *chain.Env) (Deployments, bool, error) {
	raw, err := env.Meta(metaDeployments)
	if err != nil {
		return Deployments{}, false, err
	}
	if raw == nil {
		return Deployments{}, false, nil
	}
	var d Deployments
	if err := json.Unmarshal(raw, &d); err != nil {
		return Deployments{}, false, fmt.Errorf("genesis: decode deployments: %w", err)
	}
	return d, true, nil
}

// Ensure deploys the marketplace unless env already holds a deployment,
// and returns the address book either way.
func Ensure(ctx context.Context, env *chain.Env, cfg Config, logger *slog.Logger) (Deployments, error) {
	if d, ok, err := Load(env); err != nil || ok {
		return d, err
	}
	if cfg.AdminOwner == (common.Address{}) {
		return Deployments{}, errors.New("genesis: admin owner is required")
	}
	if cfg.Deployer == (common.Address{}) {
		cfg.Deployer = cfg.AdminOwner
	}
	if cfg.TokenName == "" {
		cfg.TokenName, cfg.TokenSymbol = "Test NFT", "TNFT"
	}

	for _, a := range cfg.Accounts {
		if err := env.Fund(ctx, a.Address, a.Balance); err != nil {
			return Deployments{}, err
		}
	}

	var d Deployments
	var err error
	if d.LogicV1, err = deploy(ctx, env, cfg.Deployer, market.CodeV1, nil); err != nil {
		return Deployments{}, err
	}
	if d.LogicV2, err = deploy(ctx, env, cfg.Deployer, market.CodeV2, nil); err != nil {
		return Deployments{}, err
	}

	initData, err := market.InitializeData()
	if err != nil {
		return Deployments{}, err
	}
	proxyArgs, err := proxy.ConstructorArgs(d.LogicV1, cfg.AdminOwner, initData)
	if err != nil {
		return Deployments{}, err
	}
	rcpt, err := env.Deploy(ctx, chain.DeployMessage{From: cfg.Deployer, Code: proxy.CodeTransparent, Args: proxyArgs})
	if err != nil {
		return Deployments{}, fmt.Errorf("genesis: deploy proxy: %w", err)
	}
	d.Proxy = rcpt.ContractAddress
	if d.ProxyAdmin, err = proxy.AdminFromReceipt(rcpt); err != nil {
		return Deployments{}, err
	}

	tokenArgs, err := registry.ConstructorArgs(cfg.TokenName, cfg.TokenSymbol)
	if err != nil {
		return Deployments{}, err
	}
	if d.Registry, err = deploy(ctx, env, cfg.Deployer, registry.Code, tokenArgs); err != nil {
		return Deployments{}, err
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return Deployments{}, err
	}
	if err := env.PutMeta(ctx, metaDeployments, raw); err != nil {
		return Deployments{}, fmt.Errorf("genesis: save deployments: %w", err)
	}

	if logger != nil {
		logger.Info("marketplace deployed",
			slog.String("proxy", d.Proxy.Hex()),
			slog.String("proxy_admin", d.ProxyAdmin.Hex()),
			slog.String("logic_v1", d.LogicV1.Hex()),
			slog.String("logic_v2", d.LogicV2.Hex()),
			slog.String("registry", d.Registry.Hex()),
		)
	}
	return d, nil
}

func deploy(ctx context.Context, env *chain.Env, from common.Address, code string, args []byte) (common.Address, error) {
	rcpt, err := env.Deploy(ctx, chain.DeployMessage{From: from, Code: code, Args: args})
	if err != nil {
		return common.Address{}, fmt.Errorf("genesis: deploy %s: %w", code, err)
	}
	return rcpt.ContractAddress, nil
}
