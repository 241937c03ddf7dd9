package config

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var weiPerEther = decimal.New(1, 18)

// EtherToWei converts a decimal ether amount to wei. Fractions below one
// wei are rejected.
func EtherToWei(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse ether amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative ether amount %q", s)
	}
	wei := d.Mul(weiPerEther)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("ether amount %q has more than 18 decimals", s)
	}
	return wei.BigInt(), nil
}

// WeiToEther renders wei as a decimal ether string.
func WeiToEther(wei *big.Int) string {
	return decimal.NewFromBigInt(wei, -18).String()
}

// Allocation is a parsed genesis account.
type Allocation struct {
	Address common.Address
	Wei     *big.Int
}

// Allocations parses the funded genesis accounts.
func (g GenesisConfig) Allocations() ([]Allocation, error) {
	out := make([]Allocation, 0, len(g.Accounts))
	for _, a := range g.Accounts {
		wei, err := EtherToWei(a.Ether)
		if err != nil {
			return nil, err
		}
		out = append(out, Allocation{Address: common.HexToAddress(a.Address), Wei: wei})
	}
	return out, nil
}
