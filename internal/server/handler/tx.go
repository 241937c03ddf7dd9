package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/crypto"
	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/eventlog"
)

const maxTxBody = 1 << 20

// TxService submits signed envelopes and looks up receipts.
type TxService interface {
	Submit(ctx context.Context, env *crypto.CallEnvelope) (*chain.Receipt, error)
	Receipt(ctx context.Context, h common.Hash) (*chain.Receipt, error)
}

// ReceiptView is the API form of a committed transaction.
type ReceiptView struct {
	TxHash      common.Hash          `json:"txHash"`
	Height      uint64               `json:"height"`
	From        common.Address       `json:"from"`
	To          common.Address       `json:"to"`
	Nonce       uint64               `json:"nonce"`
	Value       *hexutil.Big         `json:"value"`
	Return      hexutil.Bytes        `json:"return"`
	Events      []domain.MarketEvent `json:"events"`
	CommittedAt time.Time            `json:"committedAt"`
}

// NewReceiptView decodes the marketplace events of rcpt.
func NewReceiptView(rcpt *chain.Receipt) ReceiptView {
	events := eventlog.Decode(rcpt)
	if events == nil {
		events = []domain.MarketEvent{}
	}
	return ReceiptView{
		TxHash:      rcpt.TxHash,
		Height:      rcpt.Height,
		From:        rcpt.From,
		To:          rcpt.To,
		Nonce:       rcpt.Nonce,
		Value:       (*hexutil.Big)(rcpt.Value),
		Return:      rcpt.Return,
		Events:      events,
		CommittedAt: rcpt.CommittedAt,
	}
}

// TxHandler serves transaction submission.
type TxHandler struct {
	txs    TxService
	logger *slog.Logger
}

// NewTxHandler creates a TxHandler.
func NewTxHandler(txs TxService, logger *slog.Logger) *TxHandler {
	return &TxHandler{txs: txs, logger: logHandler(logger, "tx")}
}

// Submit executes a signed call envelope.
// POST /api/tx
func (h *TxHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var env crypto.CallEnvelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTxBody)).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(env.Signature) == 0 {
		writeError(w, http.StatusUnauthorized, "signature is required")
		return
	}

	rcpt, err := h.txs.Submit(r.Context(), &env)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to submit transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, NewReceiptView(rcpt))
}

// GetReceipt returns a committed receipt.
// GET /api/tx/{hash}
func (h *TxHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("hash")
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		writeError(w, http.StatusBadRequest, "invalid transaction hash")
		return
	}
	rcpt, err := h.txs.Receipt(r.Context(), common.BytesToHash(b))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to load receipt", err)
		return
	}
	writeJSON(w, http.StatusOK, NewReceiptView(rcpt))
}
