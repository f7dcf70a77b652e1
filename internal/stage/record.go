package stage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"docstage/internal/schema"
)

// UnknownMimeType is stored when a file carries no content type.
const UnknownMimeType = "Unknown"

// ErrInvalidFile is returned when an input file violates the append preconditions.
var ErrInvalidFile = errors.New("invalid file")

// recordNamespace is the UUIDv5 namespace for record IDs. Changing it changes
// every derived ID.
var recordNamespace = uuid.MustParse("6f1c2a4e-93b5-4d0e-8c61-2f7a9e3d5b10")

// File is one input file collected from a file picker.
type File struct {
	Name             string
	MimeType         string
	SizeBytes        int64
	SourceModifiedAt int64 // epoch milliseconds, supplied by the file source
	Payload          []byte
}

// Identity returns the deduplication key of the file.
func (f File) Identity() IdentityTuple {
	return IdentityTuple{Name: f.Name, SourceModifiedAt: f.SourceModifiedAt, SizeBytes: f.SizeBytes}
}

// ContentType returns the file's MIME type or UnknownMimeType.
func (f File) ContentType() string {
	if f.MimeType == "" {
		return UnknownMimeType
	}
	return f.MimeType
}

// Validate checks the append preconditions for a single file.
func (f File) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidFile)
	}
	if f.SizeBytes < 0 {
		return fmt.Errorf("%w: %s: negative size %d", ErrInvalidFile, f.Name, f.SizeBytes)
	}
	if int64(len(f.Payload)) != f.SizeBytes {
		return fmt.Errorf("%w: %s: size mismatch: declared %d bytes, payload has %d", ErrInvalidFile, f.Name, f.SizeBytes, len(f.Payload))
	}
	return nil
}

// IdentityTuple decides whether an incoming file is the same as a staged one.
// It is distinct from the record ID.
type IdentityTuple struct {
	Name             string
	SourceModifiedAt int64
	SizeBytes        int64
}

// Record is one staged document: metadata plus, when resolved, its payload.
type Record struct {
	ID               string              `json:"id"`
	PartitionKey     schema.PartitionKey `json:"partitionKey"`
	Name             string              `json:"name"`
	MimeType         string              `json:"mimeType"`
	SizeBytes        int64               `json:"sizeBytes"`
	SourceModifiedAt int64               `json:"sourceModifiedAt"`
	CreatedAt        time.Time           `json:"createdAt"`
	Checksum         string              `json:"checksum"`

	// Payload is only populated by GetPayload.
	Payload []byte `json:"-"`
}

// Identity returns the deduplication key of the record.
func (r *Record) Identity() IdentityTuple {
	return IdentityTuple{Name: r.Name, SourceModifiedAt: r.SourceModifiedAt, SizeBytes: r.SizeBytes}
}

// PayloadHandle is an open payload stream plus the record it belongs to.
// The consumer owns the handle and must Close it when done rendering or saving.
type PayloadHandle struct {
	*Record
	io.ReadCloser
}

// RecordID derives the record ID from the partition key, file name, source
// modification time and the file's position in its batch. The same inputs
// always produce the same ID. Each part is length-prefixed, so no value
// can spill into its neighbour whatever bytes it contains.
func RecordID(key schema.PartitionKey, name string, sourceModifiedAt int64, index int) string {
	parts := make([]string, 0, len(key)+3)
	parts = append(parts, key...)
	parts = append(parts, name, strconv.FormatInt(sourceModifiedAt, 10), strconv.Itoa(index))

	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strconv.Itoa(len(p)))
		b.WriteByte(':')
		b.WriteString(p)
	}
	return uuid.NewSHA1(recordNamespace, []byte(b.String())).String()
}

// Checksum returns the SHA-256 of payload as a lowercase hex string.
// Payloads are stored in the BlobStore under this key.
func Checksum(payload []byte) string {
	h := sha256.Sum256(payload)
	return hex.EncodeToString(h[:])
}
