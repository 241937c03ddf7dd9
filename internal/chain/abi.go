package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// MustParseABI parses a JSON ABI definition and panics on error. It is
// meant for package-level ABI variables.
func MustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: parse abi: %v", err))
	}
	return parsed
}

// Handler implements one ABI method. args and the returned values use the
// go-ethereum ABI type mapping (uint256 is *big.Int, address is
// common.Address, and so on).
type Handler func(c *Call, args []interface{}) ([]interface{}, error)

// Dispatcher routes calldata to handlers by 4-byte selector.
type Dispatcher struct {
	abi      abi.ABI
	handlers map[string]Handler
	receive  func(c *Call) error
}

// NewDispatcher builds an empty dispatcher over a parsed ABI.
func NewDispatcher(a abi.ABI) *Dispatcher {
	return &Dispatcher{abi: a, handlers: make(map[string]Handler)}
}

// Handle registers h for the named method. It panics when the ABI has no
// such method.
func (d *Dispatcher) Handle(name string, h Handler) *Dispatcher {
	if _, ok := d.abi.Methods[name]; !ok {
		panic(fmt.Sprintf("chain: abi has no method %q", name))
	}
	d.handlers[name] = h
	return d
}

// Receive sets the hook run for plain value transfers.
func (d *Dispatcher) Receive(fn func(c *Call) error) *Dispatcher {
	d.receive = fn
	return d
}

// Clone returns a dispatcher with the same handlers, for building a
// superset of an existing contract.
func (d *Dispatcher) Clone() *Dispatcher {
	out := &Dispatcher{abi: d.abi, handlers: make(map[string]Handler, len(d.handlers)), receive: d.receive}
	for k, v := range d.handlers {
		out.handlers[k] = v
	}
	return out
}

// Run decodes input, enforces payability and invokes the handler.
func (d *Dispatcher) Run(c *Call, input []byte) ([]byte, error) {
	if len(input) == 0 {
		if d.receive == nil {
			return nil, ErrNoReceive
		}
		return nil, d.receive(c)
	}
	if len(input) < 4 {
		return nil, fmt.Errorf("%w: short calldata", ErrUnknownMethod)
	}
	m, err := d.abi.MethodById(input[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: selector %x", ErrUnknownMethod, input[:4])
	}
	h, ok := d.handlers[m.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, m.Name)
	}
	if !m.IsPayable() && c.value.Sign() > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotPayable, m.Name)
	}
	args, err := m.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrInvalidArgument, m.Name, err)
	}
	out, err := h(c, args)
	if err != nil {
		return nil, err
	}
	if len(m.Outputs) == 0 {
		return nil, nil
	}
	return m.Outputs.Pack(out...)
}

// ErrUnknownEvent is returned by DecodeLog for logs outside the ABI.
var ErrUnknownEvent = errors.New("chain: unknown event")

// DecodeLog unpacks a log emitted with Call.EmitEvent.
func DecodeLog(a abi.ABI, l Log) (*abi.Event, map[string]interface{}, error) {
	if len(l.Topics) == 0 {
		return nil, nil, ErrUnknownEvent
	}
	ev, err := a.EventByID(l.Topics[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownEvent, l.Topics[0].Hex())
	}
	fields := make(map[string]interface{})
	if err := ev.Inputs.NonIndexed().UnpackIntoMap(fields, l.Data); err != nil {
		return nil, nil, fmt.Errorf("chain: unpack %s: %w", ev.Name, err)
	}
	return ev, fields, nil
}

// Unpack decodes the return data of a view call to method.
func Unpack(a abi.ABI, method string, out []byte) ([]interface{}, error) {
	vals, err := a.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return vals, nil
}

// TopicOf returns the topic hash of the named event.
func TopicOf(a abi.ABI, event string) common.Hash {
	return a.Events[event].ID
}
