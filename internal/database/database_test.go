package database

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanalog/markedfordeath/internal/config"
	"github.com/humanalog/markedfordeath/internal/model"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DBConfig{
		Host: "db", Port: "5433", Username: "u", Password: "p", Database: "mfd",
	})
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=mfd sslmode=disable", dsn)
}

func TestOpenSqlite_MemoryDatabasesAreIsolated(t *testing.T) {
	a, err := OpenSqlite("", zerolog.Nop())
	require.NoError(t, err)
	b, err := OpenSqlite("", zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, Migrate(a, zerolog.Nop()))

	assert.True(t, a.Migrator().HasTable(&model.MarkData{}))
	assert.False(t, b.Migrator().HasTable(&model.MarkData{}))
}

func TestMigrate_CreatesTables(t *testing.T) {
	db, err := OpenSqlite(filepath.Join(t.TempDir(), "mfd.db"), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, Migrate(db, zerolog.Nop()))
	assert.True(t, db.Migrator().HasTable("marked_for_death_data"))
	assert.True(t, db.Migrator().HasTable("mark_transfers"))
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := OpenSqlite("", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, Migrate(db, zerolog.Nop()))

	row := model.MarkDataFromRecord(model.MarkRecord{MarkedID: 7, MarkedName: "bob", GridLocation: "C:4"})
	require.NoError(t, db.Create(&row).Error)

	path := filepath.Join(t.TempDir(), "dump.db")
	require.NoError(t, DumpMemoryDBToDisk(db, path))
	// a second dump replaces the first
	require.NoError(t, DumpMemoryDBToDisk(db, path))

	disk, err := OpenSqlite(path, zerolog.Nop())
	require.NoError(t, err)

	var got model.MarkData
	require.NoError(t, disk.First(&got, model.MarkDataSingletonID).Error)
	assert.Equal(t, "bob", got.MarkedPlayerName)
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	assert.Error(t, DumpMemoryDBToDisk(nil, ""))
}
