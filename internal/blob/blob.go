// Package blob provides the content-addressed payload stores behind
// stage.BlobStore: memory, filesystem and S3, plus an age-encrypting wrapper.
package blob

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNotFound is returned by Open when no content is stored under a checksum.
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidChecksum is returned for keys that are not lowercase SHA-256 hex.
	ErrInvalidChecksum = errors.New("invalid checksum")
)

var checksumRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ValidChecksum reports whether s is a lowercase hex SHA-256 digest.
func ValidChecksum(s string) bool {
	return checksumRe.MatchString(s)
}

func checkChecksum(s string) error {
	if !ValidChecksum(s) {
		return fmt.Errorf("%w: %q", ErrInvalidChecksum, s)
	}
	return nil
}
