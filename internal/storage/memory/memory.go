// internal/storage/memory/memory.go
package memory

import (
	"context"
	"sync"

	"github.com/humanalog/markedfordeath/internal/model"
	"github.com/humanalog/markedfordeath/internal/storage"
)

// DefaultHistorySize is how many transfers New keeps when given a non-positive size.
const DefaultHistorySize = 100

// Backend keeps the record and a bounded transfer history in memory.
type Backend struct {
	record    *model.MarkRecord
	transfers []model.Transfer
	limit     int
	mu        sync.RWMutex
}

// New creates a new memory backend keeping at most historySize transfers.
func New(historySize int) *Backend {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Backend{limit: historySize}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// Load returns the stored record or storage.ErrNotFound.
func (b *Backend) Load(_ context.Context) (model.MarkRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.record == nil {
		return model.MarkRecord{}, storage.ErrNotFound
	}
	return *b.record, nil
}

// Save overwrites the stored record.
func (b *Backend) Save(_ context.Context, record model.MarkRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record = &record
	return nil
}

// AppendTransfer records t, evicting the oldest entry when full.
func (b *Backend) AppendTransfer(_ context.Context, t model.Transfer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transfers = append(b.transfers, t)
	if over := len(b.transfers) - b.limit; over > 0 {
		b.transfers = append(b.transfers[:0:0], b.transfers[over:]...)
	}
	return nil
}

// ListTransfers returns up to limit transfers, newest first.
func (b *Backend) ListTransfers(_ context.Context, limit int) ([]model.Transfer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.transfers)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.Transfer, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, b.transfers[i])
	}
	return out, nil
}
