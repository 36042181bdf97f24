package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanalog/markedfordeath/internal/config"
	"github.com/humanalog/markedfordeath/internal/storage/jsonfile"
	"github.com/humanalog/markedfordeath/internal/storage/memory"
	sqlitestorage "github.com/humanalog/markedfordeath/internal/storage/sqlite"
)

func TestMain(m *testing.M) {
	Logger = slog.Default()
	DBLogger = zerolog.Nop()
	os.Exit(m.Run())
}

func loadTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Cleanup(viper.Reset)
	require.NoError(t, config.Load(dir))
	return dir
}

func TestCreateStore(t *testing.T) {
	dir := loadTestConfig(t)

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		check   func(t *testing.T, v any)
		wantErr bool
	}{
		{
			name: "json",
			cfg:  config.StorageConfig{Type: "json", JSON: config.JSONConfig{Path: filepath.Join(dir, "mark.json")}},
			check: func(t *testing.T, v any) {
				b, ok := v.(*jsonfile.Backend)
				require.True(t, ok)
				assert.Equal(t, filepath.Join(dir, "mark.json"), b.Path())
			},
		},
		{
			name: "empty type falls back to json",
			cfg:  config.StorageConfig{JSON: config.JSONConfig{Path: filepath.Join(dir, "mark.json")}},
			check: func(t *testing.T, v any) {
				assert.IsType(t, &jsonfile.Backend{}, v)
			},
		},
		{
			name: "memory",
			cfg:  config.StorageConfig{Type: "memory"},
			check: func(t *testing.T, v any) {
				assert.IsType(t, &memory.Backend{}, v)
			},
		},
		{
			name: "sqlite in memory",
			cfg:  config.StorageConfig{Type: "sqlite"},
			check: func(t *testing.T, v any) {
				b, ok := v.(*sqlitestorage.Backend)
				require.True(t, ok)
				require.NoError(t, b.Close())
			},
		},
		{
			name:    "unknown",
			cfg:     config.StorageConfig{Type: "mongo"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := createStore(tt.cfg, config.GetDBConfig(), DBLogger)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, store)
		})
	}
}

func TestDataDir(t *testing.T) {
	old := configDir
	t.Cleanup(func() { configDir = old })
	configDir = "/etc/mfd"

	assert.Equal(t, "", dataDir(""))
	assert.Equal(t, "/var/lib/mark.json", dataDir("/var/lib/mark.json"))
	assert.Equal(t, filepath.Join("/etc/mfd", "data", "mark.json"), dataDir("./data/mark.json"))
}

func TestZerologLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, zerologLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, zerologLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, zerologLevel(""))
	assert.Equal(t, zerolog.InfoLevel, zerologLevel("loud"))
}

func TestShowAndReset(t *testing.T) {
	dir := loadTestConfig(t)
	viper.Set("storage.type", "json")
	viper.Set("storage.json.path", filepath.Join(dir, "data", "mark.json"))

	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, showMark(ctx, &out, 5))
	assert.Contains(t, out.String(), "Marked: Unassigned (0)")
	assert.Contains(t, out.String(), "Last seen near: A1")
	assert.Contains(t, out.String(), "No transfers recorded.")

	out.Reset()
	require.NoError(t, resetMark(ctx, &out))
	assert.Equal(t, "Mark reset to Unassigned (0)\n", out.String())

	out.Reset()
	require.NoError(t, showMark(ctx, &out, 5))
	assert.Contains(t, out.String(), "Transfers:")
	assert.Contains(t, out.String(), "default: Unassigned -> Unassigned (A1)")
}

func TestConnectStatsDisabled(t *testing.T) {
	loadTestConfig(t)

	m, err := connectStats(context.Background())
	require.NoError(t, err)
	assert.Nil(t, m)
}
