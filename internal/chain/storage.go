package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/state"
)

// Storage is a contract's view of its own slots inside the running
// transaction. Writes are journaled and vanish if the call reverts.
type Storage struct {
	tx   *state.Tx
	addr common.Address
}

// Get returns the raw slot value, nil when unset.
func (s Storage) Get(key string) ([]byte, error) {
	return s.tx.Get(StorageKey(s.addr, key))
}

// Set writes a raw slot value. Empty values clear the slot.
func (s Storage) Set(key string, value []byte) {
	s.tx.Set(StorageKey(s.addr, key), value)
}

func (s Storage) Delete(key string) {
	s.tx.Delete(StorageKey(s.addr, key))
}

func (s Storage) Uint64(key string) (uint64, error) {
	b, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	return decodeUint64(b), nil
}

func (s Storage) SetUint64(key string, v uint64) {
	s.Set(key, encodeUint64(v))
}

func (s Storage) Big(key string) (*big.Int, error) {
	b, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	return decodeBig(b), nil
}

func (s Storage) SetBig(key string, v *big.Int) {
	s.Set(key, encodeBig(v))
}

func (s Storage) Address(key string) (common.Address, error) {
	b, err := s.Get(key)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(b), nil
}

func (s Storage) SetAddress(key string, a common.Address) {
	if a == (common.Address{}) {
		s.Delete(key)
		return
	}
	s.Set(key, a.Bytes())
}

func (s Storage) Bool(key string) (bool, error) {
	b, err := s.Get(key)
	if err != nil {
		return false, err
	}
	return len(b) == 1 && b[0] == 1, nil
}

func (s Storage) SetBool(key string, v bool) {
	if !v {
		s.Delete(key)
		return
	}
	s.Set(key, []byte{1})
}
