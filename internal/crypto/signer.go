package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// EIP-712 domain of every envelope. Wallets show these to the user.
const (
	DomainName    = "nftmarket"
	DomainVersion = "1"
)

var callTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
	},
	"MarketCall": {
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "nonce", Type: "uint256"},
	},
}

// CallEnvelope is a signed request to execute one call against the chain.
// It is the body of POST /api/tx.
type CallEnvelope struct {
	From      common.Address `json:"from"`
	To        common.Address `json:"to"`
	Value     *hexutil.Big   `json:"value,omitempty"`
	Data      hexutil.Bytes  `json:"data"`
	Nonce     hexutil.Uint64 `json:"nonce"`
	Signature hexutil.Bytes  `json:"signature,omitempty"`
}

// ValueInt returns the attached value, zero when unset.
func (e *CallEnvelope) ValueInt() *big.Int {
	if e.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(e.Value.ToInt())
}

// TypedData is env as an EIP-712 MarketCall for chainID, the form an
// eth_signTypedData_v4 wallet signs.
func (e *CallEnvelope) TypedData(chainID int64) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       callTypes,
		PrimaryType: "MarketCall",
		Domain: apitypes.TypedDataDomain{
			Name:    DomainName,
			Version: DomainVersion,
			ChainId: math.NewHexOrDecimal256(chainID),
		},
		Message: apitypes.TypedDataMessage{
			"from":  e.From.Hex(),
			"to":    e.To.Hex(),
			"value": e.ValueInt(),
			"data":  []byte(e.Data),
			"nonce": new(big.Int).SetUint64(uint64(e.Nonce)),
		},
	}
}

// Digest is the EIP-712 hash signed for env on chainID.
func (e *CallEnvelope) Digest(chainID int64) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(e.TypedData(chainID))
	if err != nil {
		return nil, fmt.Errorf("crypto: typed data hash: %w", err)
	}
	return hash, nil
}

// Signer signs call envelopes with one secp256k1 key for one chain.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID int64
}

// NewSigner parses a hex private key, with or without 0x.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Signer{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey), chainID: chainID}, nil
}

// Address is the account the signer speaks for.
func (s *Signer) Address() common.Address { return s.address }

// SignCall sets env.From to the signer and env.Signature to r||s||v with
// v in {27,28}, as wallets produce.
func (s *Signer) SignCall(env *CallEnvelope) error {
	env.From = s.address
	digest, err := env.Digest(s.chainID)
	if err != nil {
		return err
	}
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return fmt.Errorf("crypto: sign: %w", err)
	}
	sig[64] += 27
	env.Signature = sig
	return nil
}

// RecoverCall returns the address that signed env for chainID. Both the
// {0,1} and {27,28} recovery id conventions are accepted.
func RecoverCall(env *CallEnvelope, chainID int64) (common.Address, error) {
	if len(env.Signature) != ethcrypto.SignatureLength {
		return common.Address{}, fmt.Errorf("crypto: signature is %d bytes, want %d: %w",
			len(env.Signature), ethcrypto.SignatureLength, domain.ErrBadSignature)
	}
	digest, err := env.Digest(chainID)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", domain.ErrBadSignature, err)
	}
	sig := common.CopyBytes(env.Signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover: %v: %w", err, domain.ErrBadSignature)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifyCall checks that env carries a valid signature from env.From.
func VerifyCall(env *CallEnvelope, chainID int64) error {
	signer, err := RecoverCall(env, chainID)
	if err != nil {
		return err
	}
	if signer != env.From {
		return fmt.Errorf("crypto: signed by %s, claims %s: %w", signer.Hex(), env.From.Hex(), domain.ErrBadSignature)
	}
	return nil
}
