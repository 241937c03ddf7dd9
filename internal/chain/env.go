package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/state"
)

// Message is a transaction submitted by an external account.
type Message struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
	// Nonce, when set, must equal the sender's current nonce.
	Nonce *uint64
}

// DeployMessage creates a contract from registered code.
type DeployMessage struct {
	From  common.Address
	Code  string
	Args  []byte
	Nonce *uint64
}

// Log is an event emitted during a committed transaction.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    []byte         `json:"data"`
	Index   uint           `json:"logIndex"`
}

// Receipt describes a committed transaction.
type Receipt struct {
	TxHash          common.Hash    `json:"txHash"`
	Height          uint64         `json:"height"`
	From            common.Address `json:"from"`
	To              common.Address `json:"to"`
	ContractAddress common.Address `json:"contractAddress,omitempty"`
	Nonce           uint64         `json:"nonce"`
	Value           *big.Int       `json:"value"`
	Return          []byte         `json:"return,omitempty"`
	Logs            []Log          `json:"logs"`
	CommittedAt     time.Time      `json:"committedAt"`
}

// Env executes transactions against the world state one at a time.
// Views run concurrently on throwaway overlays.
type Env struct {
	mu      sync.RWMutex
	backend state.Backend
	chainID *big.Int
	logger  *slog.Logger

	codesMu sync.RWMutex
	codes   map[string]Contract

	sinks []func(*Receipt)
	now   func() time.Time
}

// NewEnv wraps a backend. Register contract code before executing.
func NewEnv(backend state.Backend, chainID *big.Int, logger *slog.Logger) *Env {
	if logger == nil {
		logger = slog.Default()
	}
	return &Env{
		backend: backend,
		chainID: new(big.Int).Set(chainID),
		logger:  logger.With(slog.String("component", "chain")),
		codes:   make(map[string]Contract),
		now:     time.Now,
	}
}

// ChainID identifies this environment in signed envelopes.
func (e *Env) ChainID() *big.Int { return new(big.Int).Set(e.chainID) }

// Register binds code to name. Deployed contracts reference code by name,
// so the same registrations must be present every time the state is opened.
func (e *Env) Register(name string, c Contract) {
	e.codesMu.Lock()
	defer e.codesMu.Unlock()
	e.codes[name] = c
}

func (e *Env) lookup(name string) (Contract, bool) {
	e.codesMu.RLock()
	defer e.codesMu.RUnlock()
	c, ok := e.codes[name]
	return c, ok
}

// OnCommit registers fn to receive every committed receipt, in commit
// order. fn runs while the writer lock is held and must not block or call
// back into the Env.
func (e *Env) OnCommit(fn func(*Receipt)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, fn)
}

func (e *Env) begin(origin common.Address) *execution {
	return &execution{env: e, tx: state.NewTx(e.backend), origin: origin}
}

// Execute runs msg as one atomic transaction. On error nothing is
// committed and the sender's nonce is unchanged.
func (e *Env) Execute(ctx context.Context, msg Message) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == (common.Address{}) {
		return nil, ErrNoRecipient
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	x := e.begin(msg.From)
	nonce, err := x.nonce(msg.From)
	if err != nil {
		return nil, err
	}
	if msg.Nonce != nil && *msg.Nonce != nonce {
		return nil, fmt.Errorf("%w: expected %d, got %d", domain.ErrBadNonce, nonce, *msg.Nonce)
	}

	out, err := x.call(msg.From, msg.To, msg.Value, msg.Data, 1, false)
	if err != nil {
		return nil, err
	}
	x.setNonce(msg.From, nonce+1)

	rcpt := &Receipt{
		From:   msg.From,
		To:     msg.To,
		Nonce:  nonce,
		Value:  valueOrZero(msg.Value),
		Return: out,
	}
	if err := e.commit(x, rcpt, msg.Data); err != nil {
		return nil, err
	}
	return rcpt, nil
}

// Deploy creates a contract from registered code. The address derives
// from the sender and its nonce.
func (e *Env) Deploy(ctx context.Context, msg DeployMessage) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	x := e.begin(msg.From)
	nonce, err := x.nonce(msg.From)
	if err != nil {
		return nil, err
	}
	if msg.Nonce != nil && *msg.Nonce != nonce {
		return nil, fmt.Errorf("%w: expected %d, got %d", domain.ErrBadNonce, nonce, *msg.Nonce)
	}

	addr, err := x.create(msg.From, msg.Code, msg.Args, 1)
	if err != nil {
		return nil, err
	}

	rcpt := &Receipt{
		From:            msg.From,
		ContractAddress: addr,
		Nonce:           nonce,
		Value:           new(big.Int),
	}
	if err := e.commit(x, rcpt, append([]byte(msg.Code), msg.Args...)); err != nil {
		return nil, err
	}
	return rcpt, nil
}

func (e *Env) commit(x *execution, rcpt *Receipt, data []byte) error {
	h, err := x.tx.Get([]byte(keyHeight))
	if err != nil {
		return err
	}
	height := decodeUint64(h) + 1
	x.tx.Set([]byte(keyHeight), encodeUint64(height))

	if err := e.backend.Apply(x.tx.Writes()); err != nil {
		return fmt.Errorf("chain: commit: %w", err)
	}

	rcpt.Height = height
	rcpt.TxHash = txHash(rcpt, data)
	rcpt.CommittedAt = e.now().UTC()
	rcpt.Logs = x.logs
	for i := range rcpt.Logs {
		rcpt.Logs[i].Index = uint(i)
	}

	e.logger.Debug("transaction committed",
		slog.Uint64("height", height),
		slog.String("tx", rcpt.TxHash.Hex()),
		slog.String("from", rcpt.From.Hex()),
		slog.Int("logs", len(rcpt.Logs)),
	)
	for _, fn := range e.sinks {
		fn(rcpt)
	}
	return nil
}

func txHash(r *Receipt, data []byte) common.Hash {
	enc, _ := rlp.EncodeToBytes([]interface{}{r.From, r.To, r.ContractAddress, r.Nonce, r.Value, data, r.Height})
	return crypto.Keccak256Hash(enc)
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// View runs msg on a discarded overlay and returns the output.
func (e *Env) View(ctx context.Context, msg Message) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	x := e.begin(msg.From)
	return x.call(msg.From, msg.To, msg.Value, msg.Data, 1, true)
}

// Fund credits amount to addr outside of any transaction. It is meant for
// genesis allocation only.
func (e *Env) Fund(ctx context.Context, addr common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	x := e.begin(addr)
	bal, err := x.balance(addr)
	if err != nil {
		return err
	}
	x.tx.Set(balanceKey(addr), encodeBig(new(big.Int).Add(bal, amount)))
	if err := e.backend.Apply(x.tx.Writes()); err != nil {
		return fmt.Errorf("chain: fund %s: %w", addr.Hex(), err)
	}
	return nil
}

func (e *Env) read(key []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.backend.Get(key)
}

// Balance returns the committed native balance of addr.
func (e *Env) Balance(addr common.Address) (*big.Int, error) {
	b, err := e.read(balanceKey(addr))
	if err != nil {
		return nil, err
	}
	return decodeBig(b), nil
}

// Nonce returns the next expected nonce for addr.
func (e *Env) Nonce(addr common.Address) (uint64, error) {
	b, err := e.read(nonceKey(addr))
	if err != nil {
		return 0, err
	}
	return decodeUint64(b), nil
}

// Height returns the number of committed transactions.
func (e *Env) Height() (uint64, error) {
	b, err := e.read([]byte(keyHeight))
	if err != nil {
		return 0, err
	}
	return decodeUint64(b), nil
}

// CodeAt returns the code name deployed at addr, or "" for plain accounts.
func (e *Env) CodeAt(addr common.Address) (string, error) {
	b, err := e.read(codeKey(addr))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// StorageAt returns a committed contract slot.
func (e *Env) StorageAt(addr common.Address, key string) ([]byte, error) {
	return e.read(StorageKey(addr, key))
}

// Meta returns an environment-level metadata value, nil when unset.
func (e *Env) Meta(name string) ([]byte, error) {
	return e.read(metaKey(name))
}

// PutMeta stores an environment-level metadata value.
func (e *Env) PutMeta(ctx context.Context, name string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend.Apply([]state.Write{{Key: metaKey(name), Value: value}})
}

// Export streams the committed world state in key order under the read
// lock, so the result is a consistent cut.
func (e *Env) Export(fn func(key, value []byte) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.backend.Iterate(nil, fn)
}

// Import loads an exported state into an empty environment.
func (e *Env) Import(ctx context.Context, writes []state.Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.backend.Get([]byte(keyHeight))
	if err != nil {
		return err
	}
	if decodeUint64(h) != 0 {
		return fmt.Errorf("chain: import into non-empty state: %w", domain.ErrInvalidState)
	}
	return e.backend.Apply(writes)
}
