package testutil

import (
	"testing"

	"docstage/internal/blob"
	"docstage/internal/database"
	"docstage/internal/schema"
	"docstage/internal/stage"
)

// RecordingNotifier collects change events. Not safe for concurrent use.
type RecordingNotifier struct {
	Events []stage.ChangeEvent
}

func (n *RecordingNotifier) Notify(e stage.ChangeEvent) {
	n.Events = append(n.Events, e)
}

// TestService bundles a Service with the collaborators tests inspect.
type TestService struct {
	*stage.Service
	Blobs    *blob.MemoryStore
	Notifier *RecordingNotifier
	Opener   *database.Opener
}

// NewTestService creates a Service over the default registry with
// file-backed databases in a temp directory and an in-memory blob store.
func NewTestService(t *testing.T, clock stage.Clock) *TestService {
	t.Helper()

	opener := NewTestOpener(t)
	blobs := blob.NewMemoryStore()
	notifier := &RecordingNotifier{}

	svc := stage.NewService(
		schema.Default(),
		database.StoreFactory(opener, blobs, clock),
		blobs,
		stage.NewNopLogger(),
		notifier,
	)
	return &TestService{Service: svc, Blobs: blobs, Notifier: notifier, Opener: opener}
}
