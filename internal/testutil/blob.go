package testutil

import (
	"errors"
	"io"
	"sync"

	"docstage/internal/stage"
)

// ErrInjected is returned by FailingBlobStore.
var ErrInjected = errors.New("injected failure")

// FailingBlobStore wraps a BlobStore and fails Put once FailAfter Puts have
// succeeded. A negative FailAfter never fails. FailOpen fails every Open.
type FailingBlobStore struct {
	stage.BlobStore

	mu        sync.Mutex
	FailAfter int
	FailOpen  bool
	puts      int
}

// NewFailingBlobStore wraps inner, failing the Put after failAfter successes.
func NewFailingBlobStore(inner stage.BlobStore, failAfter int) *FailingBlobStore {
	return &FailingBlobStore{BlobStore: inner, FailAfter: failAfter}
}

func (f *FailingBlobStore) Put(checksum string, r io.Reader, size int64) error {
	f.mu.Lock()
	fail := f.FailAfter >= 0 && f.puts >= f.FailAfter
	if !fail {
		f.puts++
	}
	f.mu.Unlock()

	if fail {
		return ErrInjected
	}
	return f.BlobStore.Put(checksum, r, size)
}

func (f *FailingBlobStore) Open(checksum string) (io.ReadCloser, error) {
	f.mu.Lock()
	fail := f.FailOpen
	f.mu.Unlock()

	if fail {
		return nil, ErrInjected
	}
	return f.BlobStore.Open(checksum)
}
