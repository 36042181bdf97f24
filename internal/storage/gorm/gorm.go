// Package gormstorage implements storage.Store and storage.TransferLog on any
// GORM dialect. The sqlite and postgres packages supply the connection.
package gormstorage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/humanalog/markedfordeath/internal/database"
	"github.com/humanalog/markedfordeath/internal/model"
	"github.com/humanalog/markedfordeath/internal/storage"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger zerolog.Logger
	// OwnsDB closes the underlying connection on Close.
	OwnsDB bool
}

// Backend implements storage.Store using GORM.
type Backend struct {
	deps Dependencies
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// DB exposes the connection for dialect-specific wrappers.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend has no database")
	}
	return database.Migrate(b.deps.DB, b.deps.Logger)
}

// Close releases the connection if this backend opened it.
func (b *Backend) Close() error {
	if !b.deps.OwnsDB || b.deps.DB == nil {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Load reads the singleton row.
func (b *Backend) Load(ctx context.Context) (model.MarkRecord, error) {
	var row model.MarkData
	err := b.deps.DB.WithContext(ctx).First(&row, model.MarkDataSingletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.MarkRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return model.MarkRecord{}, fmt.Errorf("loading mark record: %w", err)
	}

	rec, err := row.ToRecord()
	if err != nil {
		return model.MarkRecord{}, fmt.Errorf("decoding mark record: %w", err)
	}
	return rec, nil
}

// Save upserts the singleton row.
func (b *Backend) Save(ctx context.Context, record model.MarkRecord) error {
	row := model.MarkDataFromRecord(record)
	err := b.deps.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at", "marked_player_steam_id", "marked_player_name", "marked_player_location"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("saving mark record: %w", err)
	}
	return nil
}

// AppendTransfer inserts a history row.
func (b *Backend) AppendTransfer(ctx context.Context, t model.Transfer) error {
	row := model.MarkTransferFromTransfer(t)
	if err := b.deps.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("recording transfer: %w", err)
	}
	return nil
}

// ListTransfers returns up to limit transfers, newest first.
func (b *Backend) ListTransfers(ctx context.Context, limit int) ([]model.Transfer, error) {
	q := b.deps.DB.WithContext(ctx).Order("time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []model.MarkTransfer
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}

	out := make([]model.Transfer, len(rows))
	for i, r := range rows {
		out[i] = r.ToTransfer()
	}
	return out, nil
}
