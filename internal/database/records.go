package database

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"docstage/internal/schema"
	"docstage/internal/stage"
)

// timeLayout is fixed-width so that lexical order of created_at matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

const recordColumns = `id, partition_0, partition_1, name, mime_type, size_bytes, source_modified_at, created_at, checksum`

// CollectionStore implements stage.CollectionStore on one SQLite database per
// collection. Payload bytes live in the blob store; rows keep the checksum.
type CollectionStore struct {
	opener     *Opener
	collection schema.Collection
	blobs      stage.BlobStore
	clock      stage.Clock
}

var _ stage.CollectionStore = (*CollectionStore)(nil)

// NewCollectionStore creates the engine for collection c.
func NewCollectionStore(opener *Opener, c schema.Collection, blobs stage.BlobStore, clock stage.Clock) *CollectionStore {
	if clock == nil {
		clock = stage.RealClock{}
	}
	return &CollectionStore{
		opener:     opener,
		collection: c,
		blobs:      blobs,
		clock:      clock,
	}
}

// StoreFactory returns a stage.StoreFactory that builds CollectionStores
// sharing one opener, blob store and clock.
func StoreFactory(opener *Opener, blobs stage.BlobStore, clock stage.Clock) stage.StoreFactory {
	return func(c schema.Collection) stage.CollectionStore {
		return NewCollectionStore(opener, c, blobs, clock)
	}
}

func (s *CollectionStore) Collection() schema.Collection {
	return s.collection
}

func (s *CollectionStore) open() (*Handle, error) {
	h, err := s.opener.Open(s.collection)
	if err != nil {
		return nil, stage.NewError(stage.ErrOpen, s.collection, err)
	}
	return h, nil
}

func (s *CollectionStore) Init() error {
	h, err := s.open()
	if err != nil {
		return err
	}
	return h.Close()
}

func (s *CollectionStore) Append(key schema.PartitionKey, files []stage.File) ([]*stage.Record, error) {
	if err := s.collection.ValidateKey(key); err != nil {
		return nil, stage.NewError(stage.ErrWrite, s.collection, err)
	}
	if len(files) == 0 {
		return nil, stage.NewError(stage.ErrWrite, s.collection, fmt.Errorf("%w: no files to stage", stage.ErrInvalidFile))
	}
	for _, f := range files {
		if err := f.Validate(); err != nil {
			return nil, stage.NewError(stage.ErrWrite, s.collection, err)
		}
	}

	h, err := s.open()
	if err != nil {
		return nil, err
	}
	defer h.Close()

	inserted, err := s.appendTx(h.db, key, files)
	if err != nil {
		return nil, stage.NewError(stage.ErrWrite, s.collection, err)
	}
	return inserted, nil
}

func (s *CollectionStore) appendTx(db *sql.DB, key schema.PartitionKey, files []stage.File) ([]*stage.Record, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	cols := key.Columns()

	seen, err := partitionIdentities(tx, cols)
	if err != nil {
		return nil, err
	}

	inserted := make([]*stage.Record, 0, len(files))
	for i, f := range files {
		id := f.Identity()
		if seen[id] {
			continue
		}

		// The blob lands before the row commits. A rollback leaves at most an
		// unreferenced blob for Prune.
		sum := stage.Checksum(f.Payload)
		if err := s.blobs.Put(sum, bytes.NewReader(f.Payload), f.SizeBytes); err != nil {
			return nil, fmt.Errorf("storing payload of %s: %w", f.Name, err)
		}

		rec := &stage.Record{
			ID:               stage.RecordID(key, f.Name, f.SourceModifiedAt, i),
			PartitionKey:     append(schema.PartitionKey(nil), key...),
			Name:             f.Name,
			MimeType:         f.ContentType(),
			SizeBytes:        f.SizeBytes,
			SourceModifiedAt: f.SourceModifiedAt,
			CreatedAt:        s.clock.Now().UTC(),
			Checksum:         sum,
		}

		_, err := tx.Exec(
			`INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, cols[0], cols[1], rec.Name, rec.MimeType, rec.SizeBytes,
			rec.SourceModifiedAt, formatTime(rec.CreatedAt), rec.Checksum,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting %s: %w", f.Name, err)
		}

		seen[id] = true
		inserted = append(inserted, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return inserted, nil
}

func partitionIdentities(tx *sql.Tx, cols [schema.MaxPartitionFields]string) (map[stage.IdentityTuple]bool, error) {
	rows, err := tx.Query(
		`SELECT name, source_modified_at, size_bytes FROM records WHERE partition_0 = ? AND partition_1 = ?`,
		cols[0], cols[1],
	)
	if err != nil {
		return nil, fmt.Errorf("reading partition: %w", err)
	}
	defer rows.Close()

	seen := make(map[stage.IdentityTuple]bool)
	for rows.Next() {
		var t stage.IdentityTuple
		if err := rows.Scan(&t.Name, &t.SourceModifiedAt, &t.SizeBytes); err != nil {
			return nil, fmt.Errorf("scanning partition: %w", err)
		}
		seen[t] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading partition: %w", err)
	}
	return seen, nil
}

func (s *CollectionStore) List(key schema.PartitionKey) ([]*stage.Record, error) {
	if err := s.collection.ValidateKey(key); err != nil {
		return nil, stage.NewError(stage.ErrRead, s.collection, err)
	}

	h, err := s.open()
	if err != nil {
		return nil, err
	}
	defer h.Close()

	cols := key.Columns()
	rows, err := h.db.Query(
		`SELECT `+recordColumns+` FROM records WHERE partition_0 = ? AND partition_1 = ? ORDER BY created_at, rowid`,
		cols[0], cols[1],
	)
	if err != nil {
		return nil, stage.NewError(stage.ErrRead, s.collection, fmt.Errorf("listing records: %w", err))
	}
	defer rows.Close()

	records := []*stage.Record{}
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, stage.NewError(stage.ErrRead, s.collection, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, stage.NewError(stage.ErrRead, s.collection, fmt.Errorf("listing records: %w", err))
	}
	return records, nil
}

func (s *CollectionStore) Remove(id string) (bool, error) {
	h, err := s.open()
	if err != nil {
		return false, err
	}
	defer h.Close()

	res, err := h.db.Exec(`DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return false, stage.NewError(stage.ErrRemove, s.collection, fmt.Errorf("deleting record %s: %w", id, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, stage.NewError(stage.ErrRemove, s.collection, fmt.Errorf("deleting record %s: %w", id, err))
	}
	return n > 0, nil
}

func (s *CollectionStore) GetPayload(id string) (*stage.Record, error) {
	rec, err := s.findRecord(id)
	if err != nil || rec == nil {
		return nil, err
	}

	rc, err := s.blobs.Open(rec.Checksum)
	if err != nil {
		return nil, stage.NewError(stage.ErrRead, s.collection, fmt.Errorf("opening payload of %s: %w", rec.Name, err))
	}
	defer rc.Close()

	payload, err := io.ReadAll(rc)
	if err != nil {
		return nil, stage.NewError(stage.ErrRead, s.collection, fmt.Errorf("reading payload of %s: %w", rec.Name, err))
	}
	if int64(len(payload)) != rec.SizeBytes {
		return nil, stage.NewError(stage.ErrRead, s.collection,
			fmt.Errorf("payload of %s is %d bytes, record says %d", rec.Name, len(payload), rec.SizeBytes))
	}

	rec.Payload = payload
	return rec, nil
}

func (s *CollectionStore) OpenPayload(id string) (*stage.PayloadHandle, error) {
	rec, err := s.findRecord(id)
	if err != nil || rec == nil {
		return nil, err
	}

	rc, err := s.blobs.Open(rec.Checksum)
	if err != nil {
		return nil, stage.NewError(stage.ErrRead, s.collection, fmt.Errorf("opening payload of %s: %w", rec.Name, err))
	}
	return &stage.PayloadHandle{Record: rec, ReadCloser: rc}, nil
}

// findRecord returns the record metadata for id, or nil if it is not staged.
func (s *CollectionStore) findRecord(id string) (*stage.Record, error) {
	h, err := s.open()
	if err != nil {
		return nil, err
	}
	defer h.Close()

	row := h.db.QueryRow(`SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := s.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, stage.NewError(stage.ErrRead, s.collection, err)
	}
	return rec, nil
}

func (s *CollectionStore) Checksums() ([]string, error) {
	h, err := s.open()
	if err != nil {
		return nil, err
	}
	defer h.Close()

	rows, err := h.db.Query(`SELECT DISTINCT checksum FROM records ORDER BY checksum`)
	if err != nil {
		return nil, stage.NewError(stage.ErrRead, s.collection, fmt.Errorf("listing checksums: %w", err))
	}
	defer rows.Close()

	var sums []string
	for rows.Next() {
		var sum string
		if err := rows.Scan(&sum); err != nil {
			return nil, stage.NewError(stage.ErrRead, s.collection, fmt.Errorf("scanning checksum: %w", err))
		}
		sums = append(sums, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, stage.NewError(stage.ErrRead, s.collection, fmt.Errorf("listing checksums: %w", err))
	}
	return sums, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *CollectionStore) scanRecord(row scanner) (*stage.Record, error) {
	var (
		rec       stage.Record
		p0, p1    string
		createdAt string
	)
	err := row.Scan(&rec.ID, &p0, &p1, &rec.Name, &rec.MimeType, &rec.SizeBytes,
		&rec.SourceModifiedAt, &createdAt, &rec.Checksum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	rec.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("record %s: bad created_at %q: %w", rec.ID, createdAt, err)
	}

	if len(s.collection.PartitionFields) > 1 {
		rec.PartitionKey = schema.PartitionKey{p0, p1}
	} else {
		rec.PartitionKey = schema.PartitionKey{p0}
	}
	return &rec, nil
}
