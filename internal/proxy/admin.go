package proxy

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

const keyOwner = "owner"

// Admin is the ProxyAdmin contract: the administrative principal of one
// or more proxies, itself controlled by a single owner account.
type Admin struct {
	d *chain.Dispatcher
}

// NewAdmin returns the ProxyAdmin code.
func NewAdmin() *Admin {
	a := &Admin{}
	a.d = chain.NewDispatcher(AdminABI).
		Handle("owner", a.owner).
		Handle("upgradeAndCall", a.upgradeAndCall).
		Handle("transferOwnership", a.transferOwnership)
	return a
}

// AdminConstructorArgs encodes the initial owner.
func AdminConstructorArgs(owner common.Address) ([]byte, error) {
	return AdminABI.Pack("", owner)
}

func (a *Admin) Construct(c *chain.Call, args []byte) error {
	vals, err := AdminABI.Constructor.Inputs.Unpack(args)
	if err != nil {
		return fmt.Errorf("proxy admin: decode constructor: %w", err)
	}
	return setOwner(c, vals[0].(common.Address))
}

func (a *Admin) Run(c *chain.Call, input []byte) ([]byte, error) {
	return a.d.Run(c, input)
}

func setOwner(c *chain.Call, next common.Address) error {
	if next == (common.Address{}) {
		return fmt.Errorf("%w: zero owner", domain.ErrInvalidArgument)
	}
	s := c.Storage()
	prev, err := s.Address(keyOwner)
	if err != nil {
		return err
	}
	s.SetAddress(keyOwner, next)
	return c.EmitEvent(AdminABI.Events["OwnershipTransferred"], prev, next)
}

func onlyOwner(c *chain.Call) error {
	owner, err := c.Storage().Address(keyOwner)
	if err != nil {
		return err
	}
	if c.Caller() != owner {
		return &domain.AccessError{Caller: c.Caller(), Role: domain.RoleOwner, Entity: "proxy admin " + c.Self().Hex()}
	}
	return nil
}

func (a *Admin) owner(c *chain.Call, _ []interface{}) ([]interface{}, error) {
	owner, err := c.Storage().Address(keyOwner)
	return []interface{}{owner}, err
}

// upgradeAndCall forwards an upgrade to proxy, passing on any value.
func (a *Admin) upgradeAndCall(c *chain.Call, args []interface{}) ([]interface{}, error) {
	if err := onlyOwner(c); err != nil {
		return nil, err
	}
	target := args[0].(common.Address)
	data, err := ProxyABI.Pack("upgradeToAndCall", args[1].(common.Address), args[2].([]byte))
	if err != nil {
		return nil, err
	}
	if _, err := c.CallContract(target, c.Value(), data); err != nil {
		return nil, err
	}
	return nil, nil
}

func (a *Admin) transferOwnership(c *chain.Call, args []interface{}) ([]interface{}, error) {
	if err := onlyOwner(c); err != nil {
		return nil, err
	}
	return nil, setOwner(c, args[0].(common.Address))
}
