// Package registry owns the single persisted MarkRecord.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/humanalog/markedfordeath/internal/model"
	"github.com/humanalog/markedfordeath/internal/storage"
)

// DefaultTimeout bounds each store call when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Options configures a Registry.
type Options struct {
	DefaultID   uint64
	DefaultName string
	// Timeout bounds each store call.
	Timeout time.Duration
	// SaveRetries is how many extra attempts Save makes after a failure.
	SaveRetries int
}

// Registry reads and writes the mark record through a Store. It never caches:
// every Load goes to the store.
type Registry struct {
	store  storage.Store
	opts   Options
	logger *slog.Logger
}

// New creates a Registry over store.
func New(store storage.Store, opts Options, logger *slog.Logger) *Registry {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.SaveRetries < 0 {
		opts.SaveRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultID != 0 && (opts.DefaultName == "" || opts.DefaultName == model.Unassigned) {
		logger.Warn("Default marked player has no usable name, starting unassigned",
			"defaultMarkedPlayerID", opts.DefaultID)
		opts.DefaultID = 0
	}
	if opts.DefaultID == 0 {
		opts.DefaultName = model.Unassigned
	}
	return &Registry{store: store, opts: opts, logger: logger}
}

// Defaults is the record created on first start.
func (r *Registry) Defaults() model.MarkRecord {
	if r.opts.DefaultID == 0 {
		return model.UnassignedRecord()
	}
	return model.MarkRecord{
		MarkedID:     r.opts.DefaultID,
		MarkedName:   r.opts.DefaultName,
		GridLocation: model.DefaultGridLocation,
	}
}

// Load returns the persisted record, creating and persisting the defaults
// when none exists yet.
func (r *Registry) Load(ctx context.Context) (model.MarkRecord, error) {
	rec, err := r.load(ctx)
	if errors.Is(err, model.ErrInconsistentRecord) {
		r.logger.Warn("Stored mark record is inconsistent, replacing with defaults", "error", err)
		err = storage.ErrNotFound
	}
	if errors.Is(err, storage.ErrNotFound) {
		rec = r.Defaults()
		r.logger.Info("No mark record found, creating defaults",
			"markedID", rec.MarkedID, "markedName", rec.MarkedName)
		if err := r.Save(ctx, rec); err != nil {
			return model.MarkRecord{}, fmt.Errorf("initialising mark record: %w", err)
		}
		return rec, nil
	}
	if err != nil {
		return model.MarkRecord{}, err
	}
	return rec, nil
}

func (r *Registry) load(ctx context.Context) (model.MarkRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	return r.store.Load(ctx)
}

// Save validates record and durably overwrites the stored one. A failed write
// is retried at most SaveRetries times.
func (r *Registry) Save(ctx context.Context, record model.MarkRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	var err error
	for attempt := 0; attempt <= r.opts.SaveRetries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("Retrying mark record save", "attempt", attempt, "error", err)
		}
		if err = r.save(ctx, record); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("saving mark record: %w", err)
}

func (r *Registry) save(ctx context.Context, record model.MarkRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	return r.store.Save(ctx, record)
}

// Update re-reads the record, applies fn and saves the result. Returning an
// error from fn aborts without saving.
func (r *Registry) Update(ctx context.Context, fn func(model.MarkRecord) (model.MarkRecord, error)) (model.MarkRecord, error) {
	cur, err := r.Load(ctx)
	if err != nil {
		return model.MarkRecord{}, err
	}
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	if err := r.Save(ctx, next); err != nil {
		return cur, err
	}
	return next, nil
}

// Reset overwrites the record with the defaults.
func (r *Registry) Reset(ctx context.Context) (model.MarkRecord, error) {
	rec := r.Defaults()
	if err := r.Save(ctx, rec); err != nil {
		return model.MarkRecord{}, err
	}
	return rec, nil
}
