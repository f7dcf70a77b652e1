package database

import (
	"testing"

	"docstage/internal/config"
	"docstage/internal/schema"
)

func TestNewOpenerFromConfig(t *testing.T) {
	c, err := schema.Default().Lookup("evidence_library")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	t.Run("memory database", func(t *testing.T) {
		got, err := NewOpenerFromConfig(config.DatabaseConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewOpenerFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		h, err := got.Open(c)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		h.Close()

		if got.Path(c) != "" {
			t.Errorf("Path() = %q, want empty for memory database", got.Path(c))
		}
	})

	t.Run("sqlite database", func(t *testing.T) {
		cfg := config.DatabaseConfig{
			Type:    "sqlite",
			DataDir: t.TempDir(),
		}
		got, err := NewOpenerFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewOpenerFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		h, err := got.Open(c)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		h.Close()
	})

	t.Run("sqlite database without data_dir", func(t *testing.T) {
		got, err := NewOpenerFromConfig(config.DatabaseConfig{Type: "sqlite"})
		if err == nil {
			t.Error("NewOpenerFromConfig() expected error for missing data_dir, got nil")
		}
		if got != nil {
			t.Error("NewOpenerFromConfig() should return nil on error")
		}
	})

	t.Run("unknown database type", func(t *testing.T) {
		got, err := NewOpenerFromConfig(config.DatabaseConfig{Type: "unknown"})
		if err == nil {
			t.Error("NewOpenerFromConfig() expected error for unknown type, got nil")
		}
		if got != nil {
			t.Error("NewOpenerFromConfig() should return nil on error")
		}
	})
}
