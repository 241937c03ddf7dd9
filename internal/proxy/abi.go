package proxy

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/nftmarket/internal/chain"
)

// Registered code names.
const (
	CodeTransparent = "proxy/transparent"
	CodeAdmin       = "proxy/admin"
)

const proxyJSON = `[
 {"type":"constructor","inputs":[{"name":"logic","type":"address"},{"name":"initialOwner","type":"address"},{"name":"data","type":"bytes"}]},
 {"type":"function","name":"upgradeToAndCall","stateMutability":"payable","inputs":[{"name":"newImplementation","type":"address"},{"name":"data","type":"bytes"}],"outputs":[]},
 {"type":"event","name":"Upgraded","anonymous":false,"inputs":[{"name":"implementation","type":"address","indexed":false}]},
 {"type":"event","name":"AdminChanged","anonymous":false,"inputs":[{"name":"previousAdmin","type":"address","indexed":false},{"name":"newAdmin","type":"address","indexed":false}]}
]`

const adminJSON = `[
 {"type":"constructor","inputs":[{"name":"initialOwner","type":"address"}]},
 {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"upgradeAndCall","stateMutability":"payable","inputs":[{"name":"proxy","type":"address"},{"name":"implementation","type":"address"},{"name":"data","type":"bytes"}],"outputs":[]},
 {"type":"function","name":"transferOwnership","stateMutability":"nonpayable","inputs":[{"name":"newOwner","type":"address"}],"outputs":[]},
 {"type":"event","name":"OwnershipTransferred","anonymous":false,"inputs":[{"name":"previousOwner","type":"address","indexed":false},{"name":"newOwner","type":"address","indexed":false}]}
]`

var (
	// ProxyABI is the transparent proxy's own interface.
	ProxyABI = chain.MustParseABI(proxyJSON)
	// AdminABI is the ProxyAdmin interface.
	AdminABI = chain.MustParseABI(adminJSON)
)

// EIP-1967 slots: keccak256(label) - 1.
var (
	ImplementationSlot = eip1967Slot("eip1967.proxy.implementation")
	AdminSlot          = eip1967Slot("eip1967.proxy.admin")
)

func eip1967Slot(label string) common.Hash {
	h := crypto.Keccak256Hash([]byte(label))
	return common.BigToHash(new(big.Int).Sub(h.Big(), big.NewInt(1)))
}

var (
	implementationKey = ImplementationSlot.Hex()
	adminKey          = AdminSlot.Hex()
)
