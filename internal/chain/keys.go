package chain

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// World state key layout. Everything lives in one flat keyspace so a
// transaction commits as a single backend batch.
const (
	prefixAccount = "acct/"
	prefixCode    = "code/"
	prefixStorage = "store/"
	prefixMeta    = "meta/"
	keyHeight     = prefixMeta + "height"
)

func addrHex(a common.Address) string {
	return hex.EncodeToString(a[:])
}

func balanceKey(a common.Address) []byte {
	return []byte(prefixAccount + addrHex(a) + "/balance")
}

func nonceKey(a common.Address) []byte {
	return []byte(prefixAccount + addrHex(a) + "/nonce")
}

func codeKey(a common.Address) []byte {
	return []byte(prefixCode + addrHex(a))
}

// StorageKey returns the world-state key for a contract storage slot.
func StorageKey(a common.Address, key string) []byte {
	return []byte(prefixStorage + addrHex(a) + "/" + key)
}

func metaKey(name string) []byte {
	return []byte(prefixMeta + name)
}

func encodeUint64(v uint64) []byte {
	if v == 0 {
		return nil
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func encodeBig(v *big.Int) []byte {
	if v == nil || v.Sign() == 0 {
		return nil
	}
	return v.Bytes()
}

func decodeBig(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}
