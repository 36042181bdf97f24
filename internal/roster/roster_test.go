package roster

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanalog/markedfordeath/internal/model"
)

func TestRoster_New(t *testing.T) {
	r := New()

	require.NotNil(t, r)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.All())
}

func TestRoster_ConnectAndFindByID(t *testing.T) {
	r := New()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	p := r.Connect(1001, "alice", model.Position{X: 1, Y: 2, Z: 3})
	assert.Equal(t, uint64(1), p.Seq)
	assert.Equal(t, fixed, p.ConnectedAt)

	got, ok := r.FindByID(1001)
	require.True(t, ok, "expected to find participant 1001")
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, model.Position{X: 1, Y: 2, Z: 3}, got.Position)

	_, ok = r.FindByID(999)
	assert.False(t, ok, "expected not to find participant 999")
}

func TestRoster_ReconnectKeepsOrder(t *testing.T) {
	r := New()
	r.Connect(1, "a", model.Position{})
	r.Connect(2, "b", model.Position{})
	again := r.Connect(1, "a-renamed", model.Position{X: 5})

	assert.Equal(t, uint64(1), again.Seq)
	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a-renamed", all[0].Name)
	assert.Equal(t, 5.0, all[0].Position.X)
}

func TestRoster_DisconnectAndRejoinGoesLast(t *testing.T) {
	r := New()
	r.Connect(1, "a", model.Position{})
	r.Connect(2, "b", model.Position{})

	assert.True(t, r.Disconnect(1))
	assert.False(t, r.Disconnect(1))
	r.Connect(1, "a", model.Position{})

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, uint64(2), all[0].ID)
	assert.Equal(t, uint64(1), all[1].ID)
}

func TestRoster_UpdatePosition(t *testing.T) {
	r := New()
	r.Connect(1, "a", model.Position{})

	assert.True(t, r.UpdatePosition(1, model.Position{X: 100, Z: -50}))
	assert.False(t, r.UpdatePosition(2, model.Position{X: 1}))

	p, _ := r.FindByID(1)
	assert.Equal(t, model.Position{X: 100, Z: -50}, p.Position)
}

func TestRoster_FindByName(t *testing.T) {
	r := New()
	r.Connect(10, "Bob", model.Position{})
	r.Connect(20, "bob", model.Position{})
	r.Connect(30, "Alice", model.Position{})

	tests := []struct {
		name   string
		query  string
		wantID uint64
		found  bool
	}{
		{"exact", "Alice", 30, true},
		{"case insensitive", "ALICE", 30, true},
		{"earliest connection wins", "BOB", 10, true},
		{"no prefix match", "Ali", 0, false},
		{"missing", "carol", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := r.FindByName(tt.query)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.wantID, p.ID)
		})
	}

	// once the earlier Bob leaves, the later one is found
	r.Disconnect(10)
	p, ok := r.FindByName("bob")
	require.True(t, ok)
	assert.Equal(t, uint64(20), p.ID)
}

func TestRoster_Reset(t *testing.T) {
	r := New()
	r.Connect(1, "a", model.Position{})
	r.Reset()
	assert.Equal(t, 0, r.Len())
}

func TestRoster_ConcurrentAccess(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(id uint64) {
			defer wg.Done()
			r.Connect(id, "p", model.Position{})
			r.UpdatePosition(id, model.Position{X: 1})
		}(uint64(i + 1))
		go func() {
			defer wg.Done()
			r.All()
			r.FindByName("P")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, r.Len())
}
