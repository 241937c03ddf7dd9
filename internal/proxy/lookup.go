package proxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/chain"
)

// SlotReader reads committed contract storage.
type SlotReader interface {
	StorageAt(addr common.Address, key string) ([]byte, error)
}

// Implementation returns the logic address a proxy currently delegates to.
func Implementation(r SlotReader, proxy common.Address) (common.Address, error) {
	b, err := r.StorageAt(proxy, implementationKey)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(b), nil
}

// AdminOf returns the administrative principal recorded in a proxy.
func AdminOf(r SlotReader, proxy common.Address) (common.Address, error) {
	b, err := r.StorageAt(proxy, adminKey)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(b), nil
}

// AdminFromReceipt extracts the ProxyAdmin created during a proxy
// deployment from its AdminChanged log.
func AdminFromReceipt(rcpt *chain.Receipt) (common.Address, error) {
	topic := ProxyABI.Events["AdminChanged"].ID
	for _, l := range rcpt.Logs {
		if len(l.Topics) == 0 || l.Topics[0] != topic {
			continue
		}
		_, fields, err := chain.DecodeLog(ProxyABI, l)
		if err != nil {
			return common.Address{}, err
		}
		return fields["newAdmin"].(common.Address), nil
	}
	return common.Address{}, errors.New("proxy: no AdminChanged log in receipt")
}

// UpgradeAndCallData encodes a ProxyAdmin.upgradeAndCall call.
func UpgradeAndCallData(proxy, impl common.Address, data []byte) ([]byte, error) {
	if data == nil {
		data = []byte{}
	}
	return AdminABI.Pack("upgradeAndCall", proxy, impl, data)
}

// TransferOwnershipData encodes a ProxyAdmin.transferOwnership call.
func TransferOwnershipData(newOwner common.Address) ([]byte, error) {
	return AdminABI.Pack("transferOwnership", newOwner)
}

// Viewer runs read-only calls.
type Viewer interface {
	View(ctx context.Context, msg chain.Message) ([]byte, error)
}

// OwnerOf returns the owner of a ProxyAdmin.
func OwnerOf(ctx context.Context, v Viewer, admin common.Address) (common.Address, error) {
	data, err := AdminABI.Pack("owner")
	if err != nil {
		return common.Address{}, err
	}
	out, err := v.View(ctx, chain.Message{To: admin, Data: data})
	if err != nil {
		return common.Address{}, fmt.Errorf("proxy: read owner: %w", err)
	}
	vals, err := chain.Unpack(AdminABI, "owner", out)
	if err != nil {
		return common.Address{}, err
	}
	return vals[0].(common.Address), nil
}
