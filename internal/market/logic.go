// Package market implements the marketplace logic: the order book, the
// proposal ledger and settlement. Logic contracts run behind a proxy and
// keep all state in the proxy's storage.
package market

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// Logic is one version of the marketplace code.
type Logic struct {
	version uint64
	d       *chain.Dispatcher
}

func baseDispatcher() *chain.Dispatcher {
	return chain.NewDispatcher(ABI).
		Handle("createOrder", createOrder).
		Handle("cancelOrder", cancelOrder).
		Handle("buy", buy).
		Handle("proposePrice", proposePrice).
		Handle("acceptProposal", acceptProposal).
		Handle("rejectProposal", rejectProposal).
		Handle("getOrder", getOrder).
		Handle("proposalCount", proposalCount).
		Handle("getProposal", getProposal).
		Handle("nextOrderId", nextOrderID)
}

// NewV1 returns the first marketplace version.
func NewV1() *Logic {
	l := &Logic{version: 1}
	l.d = baseDispatcher().
		Handle("initialize", initialize).
		Handle("version", l.versionOf)
	return l
}

// NewV2 returns the second version: v1 plus proposal withdrawal and a
// re-initializer.
func NewV2() *Logic {
	l := &Logic{version: 2}
	l.d = baseDispatcher().
		Handle("initialize", initialize).
		Handle("initializeV2", initializeV2).
		Handle("withdrawProposal", withdrawProposal).
		Handle("version", l.versionOf)
	return l
}

// Version reports the code version without a chain call.
func (l *Logic) Version() uint64 { return l.version }

func (l *Logic) Run(c *chain.Call, input []byte) ([]byte, error) {
	return l.d.Run(c, input)
}

// Construct locks the implementation's own storage against
// initialization; only proxies delegating to it are initialized.
func (l *Logic) Construct(c *chain.Call, _ []byte) error {
	c.Storage().SetUint64(keyInitialized, math.MaxUint64)
	return nil
}

func (l *Logic) versionOf(*chain.Call, []interface{}) ([]interface{}, error) {
	return []interface{}{l.version}, nil
}

func initialize(c *chain.Call, _ []interface{}) ([]interface{}, error) {
	return nil, reinitialize(c, 1)
}

func initializeV2(c *chain.Call, _ []interface{}) ([]interface{}, error) {
	return nil, reinitialize(c, 2)
}

// reinitialize runs the migration for version v at most once, and only
// if no later version has run.
func reinitialize(c *chain.Call, v uint64) error {
	s := c.Storage()
	current, err := s.Uint64(keyInitialized)
	if err != nil {
		return err
	}
	if current >= v {
		return fmt.Errorf("%w: already initialized at version %d", domain.ErrInvalidState, current)
	}
	s.SetUint64(keyInitialized, v)

	next, err := s.Uint64(keyNextOrder)
	if err != nil {
		return err
	}
	if next == 0 {
		s.SetUint64(keyNextOrder, 1)
	}
	return c.EmitEvent(ABI.Events["Initialized"], v)
}
