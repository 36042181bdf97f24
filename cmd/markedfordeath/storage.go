package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/humanalog/markedfordeath/internal/config"
	"github.com/humanalog/markedfordeath/internal/storage"
	"github.com/humanalog/markedfordeath/internal/storage/jsonfile"
	"github.com/humanalog/markedfordeath/internal/storage/memory"
	pgstorage "github.com/humanalog/markedfordeath/internal/storage/postgres"
	sqlitestorage "github.com/humanalog/markedfordeath/internal/storage/sqlite"
)

// openStore creates and initializes the configured store.
func openStore(storageCfg config.StorageConfig, dbCfg config.DBConfig, log zerolog.Logger) (storage.Store, error) {
	store, err := createStore(storageCfg, dbCfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", storageCfg.Type, err)
	}
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", storageCfg.Type, err)
	}
	return store, nil
}

func createStore(storageCfg config.StorageConfig, dbCfg config.DBConfig, log zerolog.Logger) (storage.Store, error) {
	switch storageCfg.Type {
	case "postgres":
		log.Info().Str("host", dbCfg.Host).Str("database", dbCfg.Database).Msg("Postgres storage backend selected")
		return pgstorage.New(dbCfg, log), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:         dataDir(storageCfg.SQLite.Path),
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     dataDir(storageCfg.SQLite.DumpPath),
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		log.Info().Str("path", storageCfg.SQLite.Path).Msg("SQLite storage backend selected")
		return backend, nil

	case "memory":
		log.Info().Msg("Memory storage backend selected")
		return memory.New(memory.DefaultHistorySize), nil

	case "json", "":
		path := dataDir(storageCfg.JSON.Path)
		log.Info().Str("path", path).Msg("JSON storage backend selected")
		return jsonfile.New(path), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}
