package receipts

import (
	"context"
	"errors"

	"github.com/fadedpez/spinz/pkg/entities"
)

var ErrCacheMiss = errors.New("receipt not cached")

// Cache keeps settled receipts for the deduplication window so replays can
// be answered without reading the ledger
type Cache interface {
	// Get returns the cached receipt and the request fingerprint it was settled for
	Get(ctx context.Context, accountID, idempotencyKey string) (*entities.Receipt, string, error)
	Put(ctx context.Context, accountID, idempotencyKey, requestHash string, receipt *entities.Receipt) error
}

// cachedReceipt is the stored form
type cachedReceipt struct {
	RequestHash string            `json:"request_hash"`
	Receipt     *entities.Receipt `json:"receipt"`
}
