package stage

import "io"

// BlobStore holds staged payloads, addressed by their SHA-256 checksum.
// Several records, in any partition or collection, may share one blob.
type BlobStore interface {
	// Put stores content identified by its checksum.
	// The operation is idempotent: storing the same checksum multiple times is safe.
	// size is the number of bytes that will be read from r.
	Put(checksum string, r io.Reader, size int64) error

	// Open returns a reader for the content stored under checksum.
	// The caller must close it.
	Open(checksum string) (io.ReadCloser, error)

	// Delete removes the content stored under checksum. Deleting a missing
	// checksum is not an error.
	Delete(checksum string) error

	// List returns the checksums of all stored content.
	List() ([]string, error)

	// ValidateSetup verifies that the store is accessible and properly configured.
	ValidateSetup() error
}
