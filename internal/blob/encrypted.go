package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"docstage/internal/stage"
)

// ErrLocked is returned by EncryptedStore.Open before Unlock succeeds.
var ErrLocked = errors.New("blob store is locked")

// EncryptedStore encrypts payloads before handing them to an inner store.
// Blobs keep the checksum of their plaintext, so deduplication is unchanged.
// Put needs only the public key; Open needs the store to be unlocked.
type EncryptedStore struct {
	inner stage.BlobStore
	enc   stage.Encryptor

	mu  sync.RWMutex
	dec stage.DecryptionContext
}

// NewEncryptedStore wraps inner with enc.
func NewEncryptedStore(inner stage.BlobStore, enc stage.Encryptor) *EncryptedStore {
	return &EncryptedStore{inner: inner, enc: enc}
}

// Unlock unlocks the private key for the rest of the process.
func (s *EncryptedStore) Unlock(passphrase string) error {
	dec, err := s.enc.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking blob store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dec = dec
	return nil
}

// Locked reports whether Open will fail with ErrLocked.
func (s *EncryptedStore) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dec == nil
}

// Lock drops the unlocked key.
func (s *EncryptedStore) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dec = nil
}

// Put encrypts size bytes from r and stores the ciphertext under checksum.
func (s *EncryptedStore) Put(checksum string, r io.Reader, size int64) error {
	counted := &countingReader{r: r}
	var sealed bytes.Buffer
	if err := s.enc.Encrypt(counted, &sealed); err != nil {
		return fmt.Errorf("encrypting blob %s: %w", checksum, err)
	}
	if counted.n != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, counted.n)
	}
	return s.inner.Put(checksum, &sealed, int64(sealed.Len()))
}

// Open returns a reader over the decrypted content. Decryption streams in a
// goroutine that stops when the reader is closed.
func (s *EncryptedStore) Open(checksum string) (io.ReadCloser, error) {
	s.mu.RLock()
	dec := s.dec
	s.mu.RUnlock()
	if dec == nil {
		return nil, ErrLocked
	}

	rc, err := s.inner.Open(checksum)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	go func() {
		err := dec.Decrypt(rc, pw)
		rc.Close()
		if err != nil {
			err = fmt.Errorf("decrypting blob %s: %w", checksum, err)
		}
		pw.CloseWithError(err)
	}()
	return pr, nil
}

func (s *EncryptedStore) Delete(checksum string) error {
	return s.inner.Delete(checksum)
}

func (s *EncryptedStore) List() ([]string, error) {
	return s.inner.List()
}

// ValidateSetup checks the key files and the inner store.
func (s *EncryptedStore) ValidateSetup() error {
	if !s.enc.IsConfigured() {
		return fmt.Errorf("encryption keys not found; run `docstage encryption init`")
	}
	return s.inner.ValidateSetup()
}

// Compile-time check that EncryptedStore implements stage.BlobStore
var _ stage.BlobStore = (*EncryptedStore)(nil)
