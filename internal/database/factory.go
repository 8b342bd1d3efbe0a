package database

import (
	"fmt"
	"os"
	"path/filepath"

	"snapsync/internal/config"
	"snapsync/internal/snap"
)

// NewRunStoreFromConfig creates the run-history store selected by cfg.Type.
// The sqlite database file is named after the configured project name.
func NewRunStoreFromConfig(cfg config.DatabaseConfig, name string) (snap.RunStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data_dir: %w", err)
		}
		return NewSQLiteRunStore(filepath.Join(cfg.DataDir, name+".db"))
	case "memory":
		return NewSQLiteRunStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
