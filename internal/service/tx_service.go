package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/crypto"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/eventlog"
	"github.com/alanyoungcy/nftmarket/internal/metrics"
)

// Executor runs transactions against the world state.
type Executor interface {
	Execute(ctx context.Context, msg chain.Message) (*chain.Receipt, error)
}

// ReceiptStore keeps receipts for later lookup by hash.
type ReceiptStore interface {
	Put(ctx context.Context, rcpt *chain.Receipt) error
	Get(ctx context.Context, h common.Hash) (*chain.Receipt, error)
}

// TxConfig controls the transaction gateway.
type TxConfig struct {
	ChainID int64
	// RateLimit is the number of transactions a sender may submit per
	// RateWindow. Zero disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// TxService verifies signed call envelopes and executes them.
type TxService struct {
	exec     Executor
	limiter  domain.RateLimiter
	receipts ReceiptStore
	metrics  *metrics.Metrics
	cfg      TxConfig
	logger   *slog.Logger
}

// NewTxService creates the gateway. limiter, receipts and m may be nil.
func NewTxService(exec Executor, limiter domain.RateLimiter, receipts ReceiptStore, m *metrics.Metrics, cfg TxConfig, logger *slog.Logger) *TxService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TxService{
		exec:     exec,
		limiter:  limiter,
		receipts: receipts,
		metrics:  m,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "tx_service")),
	}
}

// Submit executes a signed envelope. The signature must recover to
// env.From and env.Nonce must equal the sender's next nonce.
func (s *TxService) Submit(ctx context.Context, env *crypto.CallEnvelope) (*chain.Receipt, error) {
	if env == nil {
		return nil, fmt.Errorf("tx_service: submit: %w: empty envelope", domain.ErrInvalidArgument)
	}
	if err := crypto.VerifyCall(env, s.cfg.ChainID); err != nil {
		return nil, fmt.Errorf("tx_service: verify: %w", err)
	}

	if s.limiter != nil && s.cfg.RateLimit > 0 {
		allowed, err := s.limiter.Allow(ctx, "tx:"+env.From.Hex(), s.cfg.RateLimit, s.cfg.RateWindow)
		if err != nil {
			s.logger.WarnContext(ctx, "rate limiter unavailable",
				slog.String("from", env.From.Hex()), slog.String("error", err.Error()))
			allowed = true
		}
		if !allowed {
			return nil, fmt.Errorf("tx_service: %s: %w", env.From.Hex(), domain.ErrRateLimited)
		}
	}

	method := eventlog.MethodName(env.Data)
	nonce := uint64(env.Nonce)
	start := time.Now()
	rcpt, err := s.exec.Execute(ctx, chain.Message{
		From:  env.From,
		To:    env.To,
		Value: env.ValueInt(),
		Data:  env.Data,
		Nonce: &nonce,
	})
	s.metrics.ObserveTx(method, err, time.Since(start))
	if err != nil {
		s.logger.InfoContext(ctx, "transaction failed",
			slog.String("from", env.From.Hex()),
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("tx_service: execute %s: %w", method, err)
	}

	s.recordSettlement(rcpt)
	if s.receipts != nil {
		if err := s.receipts.Put(ctx, rcpt); err != nil {
			s.logger.WarnContext(ctx, "receipt cache write failed",
				slog.String("tx", rcpt.TxHash.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "transaction committed",
		slog.String("tx", rcpt.TxHash.Hex()),
		slog.String("from", env.From.Hex()),
		slog.String("method", method),
		slog.Uint64("height", rcpt.Height),
		slog.Int("logs", len(rcpt.Logs)),
	)
	return rcpt, nil
}

// Receipt returns a previously committed receipt.
func (s *TxService) Receipt(ctx context.Context, h common.Hash) (*chain.Receipt, error) {
	if s.receipts == nil {
		return nil, fmt.Errorf("tx_service: receipt: %w", domain.ErrUnavailable)
	}
	rcpt, err := s.receipts.Get(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("tx_service: receipt %s: %w", h.Hex(), err)
	}
	return rcpt, nil
}

func (s *TxService) recordSettlement(rcpt *chain.Receipt) {
	if s.metrics == nil {
		return
	}
	for _, ev := range eventlog.Decode(rcpt) {
		switch ev.Name {
		case domain.EventNFTTransferred:
			s.metrics.AddSettlement("buy", weiToEther(ev.Price))
		case domain.EventProposalAccepted:
			s.metrics.AddSettlement("proposal", weiToEther(ev.Amount))
		}
	}
}

func weiToEther(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(wei, -18).Float64()
	return f
}
