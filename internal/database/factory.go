package database

import (
	"fmt"

	"github.com/google/uuid"

	"docstage/internal/config"
)

// NewOpenerFromConfig creates an Opener based on the database config type.
func NewOpenerFromConfig(cfg config.DatabaseConfig) (*Opener, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		return NewFileOpener(cfg.DataDir)
	case "memory":
		return NewMemoryOpener("docstage-" + uuid.NewString()), nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
