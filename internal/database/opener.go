package database

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"docstage/internal/database/migrations"
	"docstage/internal/schema"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// busyTimeout is how long a connection waits in SQLite's lock queue before
// giving up with SQLITE_BUSY.
const busyTimeout = 5 * time.Second

// Opener is the connection manager. Open re-opens the collection's database
// on every call; it never hands out a cached handle.
type Opener struct {
	dataDir   string // empty in memory mode
	namespace string // memory mode only: isolates openers sharing a process

	// migrateMu serializes schema upgrades within the process. File databases
	// also take an flock on <db>.db.lock so other processes wait their turn.
	migrateMu sync.Mutex

	// pinned keeps one connection per in-memory database open so its contents
	// outlive individual handles.
	mu     sync.Mutex
	pinned map[string]*sql.DB

	// Shared-cache databases report table locks immediately instead of
	// waiting on the busy timeout, so memory handles are used one at a time.
	exclusive map[string]*sync.Mutex
}

// NewFileOpener creates an Opener that keeps one SQLite file per collection
// database under dataDir.
func NewFileOpener(dataDir string) (*Opener, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Opener{dataDir: dataDir}, nil
}

// NewMemoryOpener creates an Opener backed by shared-cache in-memory
// databases. Contents live until Close. namespace must be unique per
// Opener within a process.
func NewMemoryOpener(namespace string) *Opener {
	return &Opener{
		namespace: namespace,
		pinned:    make(map[string]*sql.DB),
		exclusive: make(map[string]*sync.Mutex),
	}
}

// Handle is an open collection database. Close it when the operation is done.
type Handle struct {
	db         *sql.DB
	collection schema.Collection
	release    func()
}

// Collection returns the collection the handle was opened for.
func (h *Handle) Collection() schema.Collection {
	return h.collection
}

// Close releases the handle's connections.
func (h *Handle) Close() error {
	err := h.db.Close()
	if h.release != nil {
		h.release()
		h.release = nil
	}
	return err
}

// Open opens the database of collection c, creating the record store and
// partition index on first use.
func (o *Opener) Open(c schema.Collection) (*Handle, error) {
	dsn := o.dsn(c)
	h := &Handle{collection: c}

	if o.pinned != nil {
		lock, err := o.pin(c, dsn)
		if err != nil {
			return nil, err
		}
		lock.Lock()
		h.release = lock.Unlock
	}

	db, err := OpenConnection(dsn)
	if err != nil {
		h.unlock()
		return nil, fmt.Errorf("opening %s: %w", c.DatabaseName, err)
	}
	if o.pinned != nil {
		db.SetMaxOpenConns(1)
	}

	if err := o.upgrade(db, c); err != nil {
		db.Close()
		h.unlock()
		return nil, err
	}

	h.db = db
	return h, nil
}

func (h *Handle) unlock() {
	if h.release != nil {
		h.release()
	}
}

func (o *Opener) upgrade(db *sql.DB, c schema.Collection) error {
	o.migrateMu.Lock()
	defer o.migrateMu.Unlock()

	if o.dataDir != "" {
		unlock, err := lockFile(o.Path(c) + ".lock")
		if err != nil {
			return fmt.Errorf("locking %s: %w", c.DatabaseName, err)
		}
		defer unlock()
	}

	st, err := migrations.ReadStatus(db)
	if err != nil {
		return fmt.Errorf("upgrading %s: %w", c.DatabaseName, err)
	}
	if !st.Current() {
		if err := migrations.MigrateUp(db); err != nil {
			return fmt.Errorf("upgrading %s: %w", c.DatabaseName, err)
		}
	}
	if err := ensureCollectionInfo(db, c); err != nil {
		return err
	}
	return nil
}

// lockFile blocks until it holds an exclusive flock on path, creating the
// file if needed. The returned func releases the lock.
func lockFile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}

func (o *Opener) pin(c schema.Collection, dsn string) (*sync.Mutex, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.pinned[c.DatabaseName]; ok {
		return o.exclusive[c.DatabaseName], nil
	}
	db, err := OpenConnection(dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", c.DatabaseName, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening %s: %w", c.DatabaseName, err)
	}
	o.pinned[c.DatabaseName] = db
	o.exclusive[c.DatabaseName] = &sync.Mutex{}
	return o.exclusive[c.DatabaseName], nil
}

// Path returns the database file of collection c, or "" in memory mode.
func (o *Opener) Path(c schema.Collection) string {
	if o.dataDir == "" {
		return ""
	}
	return filepath.Join(o.dataDir, c.DatabaseName+".db")
}

func (o *Opener) dsn(c schema.Collection) string {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", fmt.Sprint(busyTimeout.Milliseconds()))
	// Write transactions take the write lock up front, so concurrent appends
	// queue in SQLite instead of failing on lock upgrade.
	params.Set("_txlock", "immediate")

	if o.dataDir == "" {
		params.Set("mode", "memory")
		params.Set("cache", "shared")
		return "file:" + o.namespace + "-" + c.DatabaseName + "?" + params.Encode()
	}
	params.Set("_journal_mode", "WAL")
	return "file:" + o.Path(c) + "?" + params.Encode()
}

// Close releases in-memory databases. File databases need no cleanup.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var errs []error
	for name, db := range o.pinned {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
		delete(o.pinned, name)
	}
	return errors.Join(errs...)
}

// OpenConnection opens a SQLite connection pool for dsn.
// Connection settings travel in the DSN so every pooled connection gets them.
func OpenConnection(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// ensureCollectionInfo records which collection owns the database on first
// open and rejects later opens with a different shape.
func ensureCollectionInfo(db *sql.DB, c schema.Collection) error {
	fields := strings.Join(c.PartitionFields, ",")

	gotName, gotStore, gotFields, err := readCollectionInfo(db)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = db.Exec(
			`INSERT OR IGNORE INTO collection_info (id, collection, store_name, partition_fields, created_at) VALUES (1, ?, ?, ?, ?)`,
			c.Name, c.StoreName, fields, formatTime(time.Now()),
		)
		if err != nil {
			return fmt.Errorf("recording collection info: %w", err)
		}
		gotName, gotStore, gotFields, err = readCollectionInfo(db)
	}
	if err != nil {
		return fmt.Errorf("reading collection info: %w", err)
	}

	if gotName != c.Name || gotStore != c.StoreName || gotFields != fields {
		return fmt.Errorf("database %s belongs to %s/%s (%s), not %s/%s (%s)",
			c.DatabaseName, gotName, gotStore, gotFields, c.Name, c.StoreName, fields)
	}
	return nil
}

func readCollectionInfo(db *sql.DB) (name, store, fields string, err error) {
	err = db.QueryRow(`SELECT collection, store_name, partition_fields FROM collection_info WHERE id = 1`).
		Scan(&name, &store, &fields)
	return name, store, fields, err
}
