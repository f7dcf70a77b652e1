package blob

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"docstage/internal/stage"
)

// MemoryStore is an in-memory implementation of stage.BlobStore.
// Contents are lost when the process exits. Safe for concurrent use.
type MemoryStore struct {
	content map[string][]byte // checksum -> content
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{content: make(map[string][]byte)}
}

// Put stores content identified by its checksum.
func (m *MemoryStore) Put(checksum string, r io.Reader, size int64) error {
	if err := checkChecksum(checksum); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.content[checksum] = data
	return nil
}

// Open returns a reader over the content stored under checksum.
func (m *MemoryStore) Open(checksum string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.content[checksum]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, checksum)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the content stored under checksum.
func (m *MemoryStore) Delete(checksum string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.content, checksum)
	return nil
}

// List returns the stored checksums in lexical order.
func (m *MemoryStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sums := make([]string, 0, len(m.content))
	for sum := range m.content {
		sums = append(sums, sum)
	}
	sort.Strings(sums)
	return sums, nil
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryStore) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryStore implements stage.BlobStore
var _ stage.BlobStore = (*MemoryStore)(nil)
