// Package intake turns files on disk or in an upload into stage.File values:
// name, size, source modification time in epoch milliseconds, sniffed MIME
// type and payload.
package intake

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"docstage/internal/stage"
)

// ErrTooLarge is returned for files above the collector's size limit.
var ErrTooLarge = errors.New("file too large")

// octetStream is what mimetype reports when the content says nothing.
const octetStream = "application/octet-stream"

// DetectType sniffs the MIME type of data, falling back to the file
// extension. It returns "" when neither identifies the content, leaving the
// store to record it as unknown.
func DetectType(name string, data []byte) string {
	detected := mimetype.Detect(data)
	if detected.Is(octetStream) {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
			return byExt
		}
		return ""
	}
	return detected.String()
}

// Collector reads files from the local filesystem.
type Collector struct {
	ignore      *IgnoreMatcher
	maxFileSize int64
}

// NewCollector creates a Collector that skips ignorePatterns during directory
// walks and rejects files larger than maxFileSize bytes.
func NewCollector(ignorePatterns []string, maxFileSize int64) *Collector {
	return &Collector{
		ignore:      NewIgnoreMatcher(ignorePatterns),
		maxFileSize: maxFileSize,
	}
}

// Collect reads every path. Files are taken as given; directories are walked
// only when recursive is set. Symlinks, devices, pipes and sockets are
// rejected.
func (c *Collector) Collect(paths []string, recursive bool) ([]stage.File, error) {
	var files []stage.File
	for _, p := range paths {
		info, err := os.Lstat(p)
		if err != nil {
			return nil, fmt.Errorf("stat path: %w", err)
		}
		if err := checkMode(p, info.Mode()); err != nil {
			return nil, err
		}

		if !info.IsDir() {
			f, err := c.readFile(p, filepath.Base(p), info)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
			continue
		}

		if !recursive {
			return nil, fmt.Errorf("%s is a directory (use --recursive)", p)
		}
		found, err := c.walk(p)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

func checkMode(path string, mode fs.FileMode) error {
	switch {
	case mode&os.ModeSymlink != 0:
		return fmt.Errorf("symlinks not supported: %s", path)
	case mode&os.ModeDevice != 0:
		return fmt.Errorf("device files not supported: %s", path)
	case mode&os.ModeNamedPipe != 0:
		return fmt.Errorf("named pipes not supported: %s", path)
	case mode&os.ModeSocket != 0:
		return fmt.Errorf("sockets not supported: %s", path)
	}
	return nil
}

// walk collects the regular files under root, named by their slash-separated
// path relative to root.
func (c *Collector) walk(root string) ([]stage.File, error) {
	extra, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	ignore := c.ignore.With(extra)

	var files []stage.File
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", p, err)
		}
		if rel == "." {
			return nil
		}
		if ignore.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		f, err := c.readFile(p, filepath.ToSlash(rel), info)
		if err != nil {
			return err
		}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return files, nil
}

func (c *Collector) readFile(path, name string, info fs.FileInfo) (stage.File, error) {
	if c.maxFileSize > 0 && info.Size() > c.maxFileSize {
		return stage.File{}, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrTooLarge, path, info.Size(), c.maxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return stage.File{}, fmt.Errorf("reading %s: %w", path, err)
	}

	return stage.File{
		Name:             name,
		MimeType:         DetectType(name, data),
		SizeBytes:        int64(len(data)),
		SourceModifiedAt: info.ModTime().UnixMilli(),
		Payload:          data,
	}, nil
}

// FromReader builds a stage.File from an upload. maxSize <= 0 means no limit.
func FromReader(name string, r io.Reader, modifiedAt time.Time, maxSize int64) (stage.File, error) {
	if maxSize > 0 {
		r = io.LimitReader(r, maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return stage.File{}, fmt.Errorf("reading %s: %w", name, err)
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return stage.File{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, name, maxSize)
	}

	return stage.File{
		Name:             filepath.Base(filepath.FromSlash(name)),
		MimeType:         DetectType(name, data),
		SizeBytes:        int64(len(data)),
		SourceModifiedAt: modifiedAt.UnixMilli(),
		Payload:          data,
	}, nil
}
