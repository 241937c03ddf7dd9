// Package proxy implements a transparent upgradeable proxy and the
// ProxyAdmin contract that governs it.
package proxy

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

var (
	// ErrAdminDenied is returned when the admin calls anything but an upgrade.
	ErrAdminDenied           = fmt.Errorf("proxy: admin cannot fall back to implementation: %w", domain.ErrUnauthorized)
	ErrInvalidImplementation = fmt.Errorf("proxy: implementation has no code: %w", domain.ErrInvalidArgument)
	ErrNonPayableUpgrade     = fmt.Errorf("proxy: value sent without init data: %w", domain.ErrInvalidArgument)
	errMissingImplementation = errors.New("proxy: implementation not set")
)

// Transparent forwards every call from non-admin callers to the current
// implementation by delegate call. Only the admin may upgrade, and the
// admin never reaches the implementation.
type Transparent struct{}

// NewTransparent returns the proxy code.
func NewTransparent() Transparent { return Transparent{} }

// ConstructorArgs encodes the proxy constructor: initial logic, the owner
// of the ProxyAdmin created for it, and initializer calldata.
func ConstructorArgs(logic, initialOwner common.Address, data []byte) ([]byte, error) {
	return ProxyABI.Pack("", logic, initialOwner, data)
}

// Construct deploys a ProxyAdmin owned by initialOwner, records it as
// admin and installs the initial implementation.
func (Transparent) Construct(c *chain.Call, args []byte) error {
	vals, err := ProxyABI.Constructor.Inputs.Unpack(args)
	if err != nil {
		return fmt.Errorf("proxy: decode constructor: %w", err)
	}
	logic := vals[0].(common.Address)
	owner := vals[1].(common.Address)
	data := vals[2].([]byte)

	adminArgs, err := AdminConstructorArgs(owner)
	if err != nil {
		return err
	}
	admin, err := c.Create(CodeAdmin, adminArgs)
	if err != nil {
		return fmt.Errorf("proxy: create admin: %w", err)
	}
	c.Storage().SetAddress(adminKey, admin)
	if err := c.EmitEvent(ProxyABI.Events["AdminChanged"], common.Address{}, admin); err != nil {
		return err
	}
	return upgradeToAndCall(c, logic, data)
}

func (Transparent) Run(c *chain.Call, input []byte) ([]byte, error) {
	s := c.Storage()
	admin, err := s.Address(adminKey)
	if err != nil {
		return nil, err
	}
	upgrade := len(input) >= 4 && bytes.Equal(input[:4], ProxyABI.Methods["upgradeToAndCall"].ID)

	if c.Caller() == admin {
		if !upgrade {
			return nil, ErrAdminDenied
		}
		vals, err := ProxyABI.Methods["upgradeToAndCall"].Inputs.Unpack(input[4:])
		if err != nil {
			return nil, fmt.Errorf("%w: decode upgradeToAndCall: %v", domain.ErrInvalidArgument, err)
		}
		return nil, upgradeToAndCall(c, vals[0].(common.Address), vals[1].([]byte))
	}
	if upgrade {
		return nil, &domain.AccessError{Caller: c.Caller(), Role: domain.RoleAdmin, Entity: "proxy " + c.Self().Hex()}
	}

	impl, err := s.Address(implementationKey)
	if err != nil {
		return nil, err
	}
	if impl == (common.Address{}) {
		return nil, errMissingImplementation
	}
	return c.DelegateCall(impl, input)
}

// upgradeToAndCall swaps the implementation and runs data against it in
// the same call, so a failing initializer undoes the swap.
func upgradeToAndCall(c *chain.Call, impl common.Address, data []byte) error {
	ok, err := c.HasCode(impl)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidImplementation, impl.Hex())
	}
	c.Storage().SetAddress(implementationKey, impl)
	if err := c.EmitEvent(ProxyABI.Events["Upgraded"], impl); err != nil {
		return err
	}
	if len(data) > 0 {
		if _, err := c.DelegateCall(impl, data); err != nil {
			return fmt.Errorf("proxy: initialize %s: %w", impl.Hex(), err)
		}
		return nil
	}
	if c.Value().Sign() > 0 {
		return ErrNonPayableUpgrade
	}
	return nil
}
