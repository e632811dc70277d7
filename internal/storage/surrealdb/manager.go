// Package surrealdb implements the bar store on SurrealDB.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/stockboard/internal/common"
	"github.com/bobmcallan/stockboard/internal/interfaces"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	barStore *BarStore
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	// Define the bar table up front (SurrealDB v3 errors on querying
	// non-existent tables) and enforce key uniqueness.
	defs := []string{
		"DEFINE TABLE IF NOT EXISTS bar SCHEMALESS",
		"DEFINE INDEX IF NOT EXISTS bar_key ON TABLE bar FIELDS symbol, timeframe, date UNIQUE",
	}
	for _, sql := range defs {
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define bar schema: %w", err)
		}
	}

	m := &Manager{
		db:       db,
		logger:   logger,
		barStore: NewBarStore(db, logger),
	}

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

func (m *Manager) BarStore() interfaces.BarStore {
	return m.barStore
}

// Close closes the SurrealDB connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close(context.Background())
	}
	return nil
}

// Ensure Manager implements StorageManager
var _ interfaces.StorageManager = (*Manager)(nil)
