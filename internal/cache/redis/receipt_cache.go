package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/nftmarket/internal/chain"
	"github.com/alanyoungcy/nftmarket/internal/domain"
)

const receiptTTL = 24 * time.Hour

// ReceiptCache keeps recent receipts so clients can poll a submitted
// transaction by hash.
//
// Key schema:
//
//	receipt:{txHash} - JSON encoded chain.Receipt
type ReceiptCache struct {
	rdb *redis.Client
}

// NewReceiptCache creates a ReceiptCache backed by the given Client.
func NewReceiptCache(c *Client) *ReceiptCache {
	return &ReceiptCache{rdb: c.rdb}
}

func receiptKey(h common.Hash) string { return "receipt:" + h.Hex() }

// Put stores rcpt with a 24-hour TTL.
func (rc *ReceiptCache) Put(ctx context.Context, rcpt *chain.Receipt) error {
	data, err := json.Marshal(rcpt)
	if err != nil {
		return fmt.Errorf("redis: marshal receipt %s: %w", rcpt.TxHash.Hex(), err)
	}
	if err := rc.rdb.Set(ctx, receiptKey(rcpt.TxHash), data, receiptTTL).Err(); err != nil {
		return fmt.Errorf("redis: put receipt %s: %w", rcpt.TxHash.Hex(), err)
	}
	return nil
}

// Get returns the receipt for h or domain.ErrNotFound.
func (rc *ReceiptCache) Get(ctx context.Context, h common.Hash) (*chain.Receipt, error) {
	data, err := rc.rdb.Get(ctx, receiptKey(h)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get receipt %s: %w", h.Hex(), err)
	}
	var rcpt chain.Receipt
	if err := json.Unmarshal(data, &rcpt); err != nil {
		return nil, fmt.Errorf("redis: unmarshal receipt %s: %w", h.Hex(), err)
	}
	return &rcpt, nil
}
