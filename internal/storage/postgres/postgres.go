// Package postgres implements storage.Store on PostgreSQL via the GORM backend.
package postgres

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/humanalog/markedfordeath/internal/config"
	"github.com/humanalog/markedfordeath/internal/database"
	gormstorage "github.com/humanalog/markedfordeath/internal/storage/gorm"
)

// Backend is the GORM backend bound to a Postgres connection.
type Backend struct {
	*gormstorage.Backend
	cfg config.DBConfig
	log zerolog.Logger
}

// New creates a Postgres backend. The connection is opened in Init.
func New(cfg config.DBConfig, log zerolog.Logger) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{Logger: log}),
		cfg:     cfg,
		log:     log,
	}
}

// Init connects, then migrates the schema.
func (b *Backend) Init() error {
	db, err := database.OpenPostgres(b.cfg, b.log)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:     db,
		Logger: b.log,
		OwnsDB: true,
	})
	return b.Backend.Init()
}
