// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/humanalog/markedfordeath/internal/model"
)

// ErrNotFound is returned by Load when no record has been saved yet.
var ErrNotFound = errors.New("mark record not found")

// Store is the interface all storage implementations must satisfy. It holds
// exactly one MarkRecord.
type Store interface {
	// Lifecycle
	Init() error
	Close() error

	Load(ctx context.Context) (model.MarkRecord, error)
	Save(ctx context.Context, record model.MarkRecord) error
}

// TransferLog is an optional interface for stores that keep a history of
// mark transfers.
type TransferLog interface {
	AppendTransfer(ctx context.Context, t model.Transfer) error
	// ListTransfers returns up to limit transfers, newest first.
	ListTransfers(ctx context.Context, limit int) ([]model.Transfer, error)
}
