package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanalog/markedfordeath/internal/model"
	"github.com/humanalog/markedfordeath/internal/storage"
	"github.com/humanalog/markedfordeath/internal/storage/memory"
)

// flakyStore wraps a memory backend and fails the next n saves.
type flakyStore struct {
	*memory.Backend
	failSaves int
	saves     int
	block     bool
}

func (f *flakyStore) Save(ctx context.Context, r model.MarkRecord) error {
	f.saves++
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.failSaves > 0 {
		f.failSaves--
		return errors.New("disk full")
	}
	return f.Backend.Save(ctx, r)
}

func newFlaky() *flakyStore {
	return &flakyStore{Backend: memory.New(10)}
}

func TestLoad_InitialisesDefaults(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want model.MarkRecord
	}{
		{"zero id", Options{}, model.UnassignedRecord()},
		{"zero id ignores name", Options{DefaultName: "bob"}, model.UnassignedRecord()},
		{"configured", Options{DefaultID: 1001, DefaultName: "alice"},
			model.MarkRecord{MarkedID: 1001, MarkedName: "alice", GridLocation: "A1"}},
		{"id without name", Options{DefaultID: 1001}, model.UnassignedRecord()},
		{"id with sentinel name", Options{DefaultID: 1001, DefaultName: "Unassigned"}, model.UnassignedRecord()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New(10)
			r := New(store, tt.opts, nil)

			got, err := r.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			persisted, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, persisted)
		})
	}
}

func TestLoad_ReturnsExisting(t *testing.T) {
	store := memory.New(10)
	existing := model.MarkRecord{MarkedID: 7, MarkedName: "eve", GridLocation: "C:4"}
	require.NoError(t, store.Save(context.Background(), existing))

	r := New(store, Options{DefaultID: 1, DefaultName: "x"}, nil)
	got, err := r.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, existing, got)
}

// inconsistentStore loads a record that breaks the sentinel pairing.
type inconsistentStore struct {
	*memory.Backend
}

func (s inconsistentStore) Load(context.Context) (model.MarkRecord, error) {
	return model.MarkRecord{}, fmt.Errorf("decoding: %w", model.ErrInconsistentRecord)
}

func TestLoad_ReplacesInconsistentRecord(t *testing.T) {
	store := inconsistentStore{Backend: memory.New(10)}
	r := New(store, Options{DefaultID: 1001, DefaultName: "alice"}, nil)

	got, err := r.Load(context.Background())
	require.NoError(t, err)
	want := model.MarkRecord{MarkedID: 1001, MarkedName: "alice", GridLocation: model.DefaultGridLocation}
	assert.Equal(t, want, got)

	persisted, err := store.Backend.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, persisted)
}

func TestSave_RejectsInconsistentRecord(t *testing.T) {
	store := newFlaky()
	r := New(store, Options{}, nil)

	err := r.Save(context.Background(), model.MarkRecord{MarkedID: 0, MarkedName: "bob"})
	assert.ErrorIs(t, err, model.ErrInconsistentRecord)
	assert.Equal(t, 0, store.saves)
}

func TestSave_RetriesAtMostConfigured(t *testing.T) {
	rec := model.MarkRecord{MarkedID: 1, MarkedName: "a", GridLocation: "A:0"}

	t.Run("recovers on retry", func(t *testing.T) {
		store := newFlaky()
		store.failSaves = 1
		r := New(store, Options{SaveRetries: 1}, nil)

		require.NoError(t, r.Save(context.Background(), rec))
		assert.Equal(t, 2, store.saves)
	})

	t.Run("gives up after one retry", func(t *testing.T) {
		store := newFlaky()
		store.failSaves = 5
		r := New(store, Options{SaveRetries: 1}, nil)

		err := r.Save(context.Background(), rec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.Equal(t, 2, store.saves)
	})

	t.Run("no retries", func(t *testing.T) {
		store := newFlaky()
		store.failSaves = 1
		r := New(store, Options{}, nil)

		require.Error(t, r.Save(context.Background(), rec))
		assert.Equal(t, 1, store.saves)
	})
}

func TestSave_TimesOut(t *testing.T) {
	store := newFlaky()
	store.block = true
	r := New(store, Options{Timeout: 20 * time.Millisecond, SaveRetries: 1}, nil)

	start := time.Now()
	err := r.Save(context.Background(), model.UnassignedRecord())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, store.saves)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUpdate(t *testing.T) {
	store := memory.New(10)
	r := New(store, Options{}, nil)
	ctx := context.Background()

	next, err := r.Update(ctx, func(cur model.MarkRecord) (model.MarkRecord, error) {
		assert.Equal(t, model.UnassignedRecord(), cur)
		return model.MarkRecord{MarkedID: 3, MarkedName: "c", GridLocation: "B:1"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), next.MarkedID)

	stopErr := errors.New("stop")
	cur, err := r.Update(ctx, func(model.MarkRecord) (model.MarkRecord, error) {
		return model.MarkRecord{}, stopErr
	})
	assert.ErrorIs(t, err, stopErr)
	assert.Equal(t, next, cur)

	persisted, _ := store.Load(ctx)
	assert.Equal(t, next, persisted)
}

func TestReset(t *testing.T) {
	store := memory.New(10)
	require.NoError(t, store.Save(context.Background(), model.MarkRecord{MarkedID: 3, MarkedName: "c"}))

	r := New(store, Options{DefaultID: 9, DefaultName: "nine"}, nil)
	rec, err := r.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.MarkRecord{MarkedID: 9, MarkedName: "nine", GridLocation: "A1"}, rec)

	_, err = store.Load(context.Background())
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}
