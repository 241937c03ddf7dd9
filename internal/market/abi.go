package market

import "github.com/alanyoungcy/nftmarket/internal/chain"

// Registered code names for the marketplace logic versions.
const (
	CodeV1 = "market/v1"
	CodeV2 = "market/v2"
)

const abiJSON = `[
 {"type":"function","name":"initialize","stateMutability":"nonpayable","inputs":[],"outputs":[]},
 {"type":"function","name":"initializeV2","stateMutability":"nonpayable","inputs":[],"outputs":[]},
 {"type":"function","name":"version","stateMutability":"pure","inputs":[],"outputs":[{"name":"","type":"uint64"}]},
 {"type":"function","name":"createOrder","stateMutability":"nonpayable","inputs":[{"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"},{"name":"acceptsProposals","type":"bool"}],"outputs":[{"name":"orderId","type":"uint256"}]},
 {"type":"function","name":"cancelOrder","stateMutability":"nonpayable","inputs":[{"name":"orderId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"buy","stateMutability":"payable","inputs":[{"name":"orderId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"proposePrice","stateMutability":"nonpayable","inputs":[{"name":"orderId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"index","type":"uint256"}]},
 {"type":"function","name":"acceptProposal","stateMutability":"nonpayable","inputs":[{"name":"orderId","type":"uint256"},{"name":"index","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"rejectProposal","stateMutability":"nonpayable","inputs":[{"name":"orderId","type":"uint256"},{"name":"index","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"withdrawProposal","stateMutability":"nonpayable","inputs":[{"name":"orderId","type":"uint256"},{"name":"index","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"getOrder","stateMutability":"view","inputs":[{"name":"orderId","type":"uint256"}],"outputs":[{"name":"seller","type":"address"},{"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"},{"name":"acceptsProposals","type":"bool"},{"name":"active","type":"bool"}]},
 {"type":"function","name":"proposalCount","stateMutability":"view","inputs":[{"name":"orderId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getProposal","stateMutability":"view","inputs":[{"name":"orderId","type":"uint256"},{"name":"index","type":"uint256"}],"outputs":[{"name":"proposer","type":"address"},{"name":"amount","type":"uint256"},{"name":"status","type":"uint8"}]},
 {"type":"function","name":"nextOrderId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"event","name":"Initialized","anonymous":false,"inputs":[{"name":"version","type":"uint64","indexed":false}]},
 {"type":"event","name":"OrderCreated","anonymous":false,"inputs":[{"name":"orderId","type":"uint256","indexed":false},{"name":"seller","type":"address","indexed":false},{"name":"nftContract","type":"address","indexed":false},{"name":"tokenId","type":"uint256","indexed":false},{"name":"price","type":"uint256","indexed":false},{"name":"acceptsProposals","type":"bool","indexed":false}]},
 {"type":"event","name":"OrderCancelled","anonymous":false,"inputs":[{"name":"orderId","type":"uint256","indexed":false}]},
 {"type":"event","name":"NFTTransferred","anonymous":false,"inputs":[{"name":"seller","type":"address","indexed":false},{"name":"buyer","type":"address","indexed":false},{"name":"nftContract","type":"address","indexed":false},{"name":"tokenId","type":"uint256","indexed":false},{"name":"price","type":"uint256","indexed":false}]},
 {"type":"event","name":"ProposalCreated","anonymous":false,"inputs":[{"name":"orderId","type":"uint256","indexed":false},{"name":"proposer","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false}]},
 {"type":"event","name":"ProposalAccepted","anonymous":false,"inputs":[{"name":"orderId","type":"uint256","indexed":false},{"name":"proposer","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false}]},
 {"type":"event","name":"ProposalRejected","anonymous":false,"inputs":[{"name":"orderId","type":"uint256","indexed":false},{"name":"index","type":"uint256","indexed":false}]},
 {"type":"event","name":"ProposalWithdrawn","anonymous":false,"inputs":[{"name":"orderId","type":"uint256","indexed":false},{"name":"index","type":"uint256","indexed":false}]}
]`

// ABI covers every marketplace version. A version that does not implement
// a method rejects its selector.
var ABI = chain.MustParseABI(abiJSON)

const assetRegistryJSON = `[
 {"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]}
]`

// AssetRegistryABI is the part of a token contract the marketplace relies on.
var AssetRegistryABI = chain.MustParseABI(assetRegistryJSON)
