package testutil

import (
	"testing"

	"github.com/google/uuid"

	"docstage/internal/database"
)

// NewTestOpener creates a file-backed Opener in a temp directory.
// File databases give each handle its own connection, like production.
func NewTestOpener(t *testing.T) *database.Opener {
	t.Helper()

	o, err := database.NewFileOpener(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create opener: %v", err)
	}
	t.Cleanup(func() { o.Close() })
	return o
}

// NewTestMemoryOpener creates an in-memory Opener isolated from other tests.
func NewTestMemoryOpener(t *testing.T) *database.Opener {
	t.Helper()

	o := database.NewMemoryOpener("test-" + uuid.NewString())
	t.Cleanup(func() { o.Close() })
	return o
}
