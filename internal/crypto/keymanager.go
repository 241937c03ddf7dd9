// Package crypto provides key management and EIP-712 signing of marketplace
// call envelopes.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/argon2"
)

const keyFileVersion = 2

// Argon2id cost used for new key files. Decryption reads the cost from
// the file.
var defaultKDF = kdfParams{
	Name:      "argon2id",
	Time:      3,
	MemoryKiB: 64 * 1024,
	Threads:   4,
}

// keyFile is the on-disk format written by EncryptKey. The address is
// bound to the ciphertext as additional data.
type keyFile struct {
	Version    int            `json:"version"`
	Address    common.Address `json:"address"`
	KDF        kdfParams      `json:"kdf"`
	Nonce      hexutil.Bytes  `json:"nonce"`
	Ciphertext hexutil.Bytes  `json:"ciphertext"`
}

type kdfParams struct {
	Name      string        `json:"name"`
	Salt      hexutil.Bytes `json:"salt"`
	Time      uint32        `json:"time"`
	MemoryKiB uint32        `json:"memoryKiB"`
	Threads   uint8         `json:"threads"`
}

func (p kdfParams) aead(password string) (cipher.AEAD, error) {
	if p.Name != "argon2id" {
		return nil, fmt.Errorf("crypto: unsupported kdf %q", p.Name)
	}
	if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 || len(p.Salt) < 16 {
		return nil, errors.New("crypto: kdf parameters out of range")
	}
	block, err := aes.NewCipher(argon2.IDKey([]byte(password), p.Salt, p.Time, p.MemoryKiB, p.Threads, 32))
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// KeyConfig lists where a private key may come from. RawPrivateKey wins
// over EncryptedKeyPath.
type KeyConfig struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// GenerateKey returns a fresh hex-encoded secp256k1 private key.
func GenerateKey() (string, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("crypto: generate key: %w", err)
	}
	return hex.EncodeToString(ethcrypto.FromECDSA(pk)), nil
}

// EncryptKey seals a hex-encoded private key under password and returns
// the JSON key file.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}

	kdf := defaultKDF
	kdf.Salt = make([]byte, 16)
	if _, err := rand.Read(kdf.Salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	aead, err := kdf.aead(password)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}

	addr := ethcrypto.PubkeyToAddress(pk.PublicKey)
	return json.MarshalIndent(keyFile{
		Version:    keyFileVersion,
		Address:    addr,
		KDF:        kdf,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, ethcrypto.FromECDSA(pk), addr.Bytes()),
	}, "", "  ")
}

// DecryptKey opens a key file written by EncryptKey or a geth (Web3 Secret
// Storage v3) keystore file and returns the hex-encoded private key.
func DecryptKey(blob []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}
	if isKeystoreV3(blob) {
		k, err := keystore.DecryptKey(blob, password)
		if err != nil {
			return "", fmt.Errorf("crypto: keystore: %w", err)
		}
		return hex.EncodeToString(ethcrypto.FromECDSA(k.PrivateKey)), nil
	}

	var kf keyFile
	if err := json.Unmarshal(blob, &kf); err != nil {
		return "", fmt.Errorf("crypto: parse key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return "", fmt.Errorf("crypto: unsupported key file version %d", kf.Version)
	}
	aead, err := kf.KDF.aead(password)
	if err != nil {
		return "", err
	}
	if len(kf.Nonce) != aead.NonceSize() {
		return "", errors.New("crypto: malformed nonce")
	}
	raw, err := aead.Open(nil, kf.Nonce, kf.Ciphertext, kf.Address.Bytes())
	if err != nil {
		return "", errors.New("crypto: wrong password or corrupted key file")
	}
	pk, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return "", fmt.Errorf("crypto: decrypted key: %w", err)
	}
	if got := ethcrypto.PubkeyToAddress(pk.PublicKey); got != kf.Address {
		return "", fmt.Errorf("crypto: key file is for %s but holds the key of %s", kf.Address.Hex(), got.Hex())
	}
	return hex.EncodeToString(raw), nil
}

// isKeystoreV3 recognises geth keystore files by their "crypto" object.
func isKeystoreV3(blob []byte) bool {
	var probe map[string]json.RawMessage
	if json.Unmarshal(blob, &probe) != nil {
		return false
	}
	_, lower := probe["crypto"]
	_, upper := probe["Crypto"]
	return lower || upper
}

// LoadKey returns the hex private key named by cfg, decrypting the key file
// when no raw key is given.
func LoadKey(cfg KeyConfig) (string, error) {
	switch {
	case cfg.RawPrivateKey != "":
		return strings.TrimPrefix(cfg.RawPrivateKey, "0x"), nil
	case cfg.EncryptedKeyPath != "":
		blob, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: read key file: %w", err)
		}
		return DecryptKey(bytes.TrimSpace(blob), cfg.KeyPassword)
	default:
		return "", errors.New("crypto: no private key configured (set a raw key or an encrypted key path)")
	}
}

// LoadSigner resolves a key with LoadKey and wraps it in a Signer.
func LoadSigner(cfg KeyConfig, chainID int64) (*Signer, error) {
	key, err := LoadKey(cfg)
	if err != nil {
		return nil, err
	}
	return NewSigner(key, chainID)
}

