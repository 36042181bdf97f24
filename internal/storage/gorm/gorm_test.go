package gormstorage

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanalog/markedfordeath/internal/database"
	"github.com/humanalog/markedfordeath/internal/model"
	"github.com/humanalog/markedfordeath/internal/storage"
)

// Compile-time interface checks
var (
	_ storage.Store       = (*Backend)(nil)
	_ storage.TransferLog = (*Backend)(nil)
)

// newTestBackend creates a Backend over a private in-memory SQLite database.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.OpenSqlite("", zerolog.Nop())
	require.NoError(t, err)

	b := New(Dependencies{DB: db, Logger: zerolog.Nop(), OwnsDB: true})
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })
	return b
}

func TestInit_NoDB(t *testing.T) {
	b := New(Dependencies{})
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestLoad_EmptyIsNotFound(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.Load(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSave_UpsertsSingleton(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	first := model.MarkRecord{MarkedID: 1001, MarkedName: "alice", GridLocation: "C:4"}
	require.NoError(t, b.Save(ctx, first))

	second := model.MarkRecord{MarkedID: 18446744073709551615, MarkedName: "bob", GridLocation: "BA:-2"}
	require.NoError(t, b.Save(ctx, second))

	got, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	var count int64
	require.NoError(t, b.DB().Model(&model.MarkData{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTransfers_NewestFirst(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, b.AppendTransfer(ctx, model.Transfer{
			ID:         name,
			Time:       base.Add(time.Duration(i) * time.Minute),
			Reason:     model.ReasonRoll,
			MarkedID:   uint64(i + 1),
			MarkedName: name,
			Details:    map[string]any{"rosterSize": float64(3)},
		}))
	}

	got, err := b.ListTransfers(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "carol", got[0].MarkedName)
	assert.Equal(t, "bob", got[1].MarkedName)
	assert.Equal(t, model.ReasonRoll, got[0].Reason)
	assert.Equal(t, float64(3), got[0].Details["rosterSize"])

	all, err := b.ListTransfers(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
