package blob

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"docstage/internal/stage"
)

// FileSystemStore keeps blobs as files, fanned out by checksum prefix:
//
//	<root>/
//	  ab/
//	    ab12...      (content files, named by SHA-256)
//	  .tmp/          (in-flight writes)
type FileSystemStore struct {
	root   string
	tmpDir string
}

// NewFileSystemStore creates a filesystem blob store rooted at root.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	tmpDir := filepath.Join(root, ".tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FileSystemStore{root: root, tmpDir: tmpDir}, nil
}

func (s *FileSystemStore) path(checksum string) string {
	return filepath.Join(s.root, checksum[:2], checksum)
}

// Put stores content identified by its checksum.
// Storing an existing checksum consumes r and leaves the file untouched.
func (s *FileSystemStore) Put(checksum string, r io.Reader, size int64) error {
	if err := checkChecksum(checksum); err != nil {
		return err
	}
	destPath := s.path(checksum)

	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	return s.writeFile(destPath, r, size)
}

// Open returns the content file for checksum. The caller must close it.
func (s *FileSystemStore) Open(checksum string) (io.ReadCloser, error) {
	if err := checkChecksum(checksum); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(checksum))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, checksum)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Delete removes the content file for checksum, if present.
func (s *FileSystemStore) Delete(checksum string) error {
	if err := checkChecksum(checksum); err != nil {
		return err
	}
	if err := os.Remove(s.path(checksum)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// List walks the fan-out directories and returns every stored checksum in
// lexical order. Temp files and foreign files are ignored.
func (s *FileSystemStore) List() ([]string, error) {
	var sums []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == s.tmpDir {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if ValidChecksum(name) && filepath.Base(filepath.Dir(path)) == name[:2] {
			sums = append(sums, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing blobs: %w", err)
	}
	sort.Strings(sums)
	return sums, nil
}

// ValidateSetup verifies that the blob directories are accessible.
func (s *FileSystemStore) ValidateSetup() error {
	for _, dir := range []string{s.root, s.tmpDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("blob directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("blob path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes r to destPath using a temp file and rename, so readers
// never see a partial blob.
func (s *FileSystemStore) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(s.tmpDir, "blob-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemStore implements stage.BlobStore
var _ stage.BlobStore = (*FileSystemStore)(nil)
