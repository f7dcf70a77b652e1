package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"docstage/internal/blob"
	"docstage/internal/config"
	"docstage/internal/database"
	"docstage/internal/encryption"
	"docstage/internal/intake"
	"docstage/internal/schema"
	"docstage/internal/stage"
)

// ErrNotFound is returned when a record ID is not staged in the collection.
var ErrNotFound = errors.New("record not found")

// ErrNoEncryption is returned by Unlock when payloads are stored in plain text.
var ErrNoEncryption = errors.New("encryption is not configured")

// Options tune how an App is wired.
type Options struct {
	// Console additionally receives Info and above log lines. Nil logs to
	// the log file only.
	Console io.Writer

	// Clock stamps created_at. Nil uses the wall clock.
	Clock stage.Clock
}

// App is the application layer between the views (CLI, HTTP) and the
// staging service. It constructs all dependencies from config, exposes
// operations that accept raw strings and paths, and releases resources on
// Close.
type App struct {
	cfg       *config.Config
	opener    *database.Opener
	blobs     stage.BlobStore
	encrypted *blob.EncryptedStore // nil when payloads are stored in plain text
	collector *intake.Collector
	service   *stage.Service
	op        *Operation
	logger    *slog.Logger
	logFile   *os.File
}

// New creates a fully wired App from cfg.
// operation names the command being run (e.g. "add", "serve").
// The caller must call Close when done.
func New(cfg *config.Config, operation string, opts Options) (*App, error) {
	op := NewOperation(operation, time.Now())
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, opts.Console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a, err := wire(cfg, op, logger, opts.Clock)
	if err != nil {
		logger.Error("startup failed", "operation", operation, "error", err)
		logFile.Close()
		return nil, err
	}
	a.logFile = logFile
	logger.Debug("operation started", "operation", operation)
	return a, nil
}

func wire(cfg *config.Config, op *Operation, logger *slog.Logger, clock stage.Clock) (*App, error) {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	blobs, err := blob.NewStoreFromConfig(cfg.Blobs, enc)
	if err != nil {
		return nil, fmt.Errorf("creating blob store: %w", err)
	}
	if err := blobs.ValidateSetup(); err != nil {
		return nil, fmt.Errorf("blob store not ready: %w", err)
	}

	opener, err := database.NewOpenerFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	encrypted, _ := blobs.(*blob.EncryptedStore)
	registry := schema.Default()
	adapter := &slogAdapter{l: logger}

	svc := stage.NewService(
		registry,
		database.StoreFactory(opener, blobs, clock),
		blobs,
		adapter,
		stage.NotifierFunc(func(e stage.ChangeEvent) {
			logger.Debug("collection changed", "collection", e.Collection, "kind", string(e.Kind), "records", len(e.IDs))
		}),
	)

	return &App{
		cfg:       cfg,
		opener:    opener,
		blobs:     blobs,
		encrypted: encrypted,
		collector: intake.NewCollector(cfg.Intake.Ignore, cfg.Intake.MaxFileSizeOrDefault()),
		service:   svc,
		op:        op,
		logger:    logger,
	}, nil
}

// Service returns the staging service, for views that call it directly.
func (a *App) Service() *stage.Service {
	return a.service
}

// Logger returns the operation logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Collections returns the registered collections.
func (a *App) Collections() []schema.Collection {
	return a.service.Collections()
}

func (a *App) key(collectionName string, values []string) (schema.Collection, schema.PartitionKey, error) {
	c, err := a.service.Collection(collectionName)
	if err != nil {
		return schema.Collection{}, nil, err
	}
	key, err := c.Key(values...)
	if err != nil {
		return schema.Collection{}, nil, err
	}
	return c, key, nil
}

// StageFiles collects the files at paths and appends them under the
// partition given by keyValues. It returns the records inserted and the
// number of files collected; the difference was already staged.
func (a *App) StageFiles(collectionName string, keyValues []string, paths []string, recursive bool) ([]*stage.Record, int, error) {
	_, key, err := a.key(collectionName, keyValues)
	if err != nil {
		return nil, 0, a.fail(err)
	}

	files, err := a.collector.Collect(paths, recursive)
	if err != nil {
		return nil, 0, a.fail(fmt.Errorf("collecting files: %w", err))
	}
	if len(files) == 0 {
		return nil, 0, nil
	}

	inserted, err := a.service.Append(collectionName, key, files)
	if err != nil {
		return nil, len(files), a.fail(err)
	}
	return inserted, len(files), nil
}

// List returns the records staged under the partition given by keyValues.
func (a *App) List(collectionName string, keyValues []string) ([]*stage.Record, error) {
	_, key, err := a.key(collectionName, keyValues)
	if err != nil {
		return nil, a.fail(err)
	}
	records, err := a.service.List(collectionName, key)
	if err != nil {
		return nil, a.fail(err)
	}
	return records, nil
}

// Remove deletes a record by ID.
func (a *App) Remove(collectionName, id string) error {
	if err := a.service.Remove(collectionName, id); err != nil {
		return a.fail(err)
	}
	return nil
}

// Export writes the payload of record id to w and returns its metadata.
// Encrypted stores must be unlocked first.
func (a *App) Export(collectionName, id string, w io.Writer) (*stage.Record, error) {
	h, err := a.service.OpenPayload(collectionName, id)
	if err != nil {
		return nil, a.fail(err)
	}
	if h == nil {
		return nil, a.fail(fmt.Errorf("%w: %s in %s", ErrNotFound, id, collectionName))
	}
	defer h.Close()

	n, err := io.Copy(w, h)
	if err != nil {
		return nil, a.fail(fmt.Errorf("writing payload of %s: %w", h.Name, err))
	}
	if n != h.SizeBytes {
		return nil, a.fail(fmt.Errorf("payload of %s is %d bytes, record says %d", h.Name, n, h.SizeBytes))
	}
	a.logger.Info("payload exported", "collection", collectionName, "id", id, "bytes", n)
	return h.Record, nil
}

// Prune deletes blobs no record references.
func (a *App) Prune() (*stage.PruneResult, error) {
	res, err := a.service.Prune()
	if err != nil {
		return res, a.fail(err)
	}
	return res, nil
}

// Encrypted reports whether payloads are encrypted at rest.
func (a *App) Encrypted() bool {
	return a.encrypted != nil
}

// Locked reports whether payload reads still need a passphrase.
func (a *App) Locked() bool {
	return a.encrypted != nil && a.encrypted.Locked()
}

// Unlock enables payload reads for the rest of the process.
func (a *App) Unlock(passphrase string) error {
	if a.encrypted == nil {
		return ErrNoEncryption
	}
	if err := a.encrypted.Unlock(passphrase); err != nil {
		return a.fail(err)
	}
	a.logger.Info("payload store unlocked")
	return nil
}

func (a *App) fail(err error) error {
	a.op.Fail()
	return err
}

// Close logs the end of the operation and releases databases and the log file.
func (a *App) Close() error {
	var errs []error
	if err := a.opener.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing databases: %w", err))
	}
	if a.encrypted != nil {
		a.encrypted.Lock()
	}

	a.logger.Debug("operation finished", "operation", a.op.Name, "status", a.op.Status, "elapsed", a.op.Elapsed(time.Now()))

	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing log file: %w", err))
		}
	}
	return errors.Join(errs...)
}

// InitEncryption generates the age key pair named in cfg, protecting the
// private key with passphrase.
func InitEncryption(cfg config.EncryptionConfig, passphrase string) error {
	if cfg.Type == "" || cfg.Type == "none" {
		return fmt.Errorf("%w: set [encryption] type = \"age\" first", ErrNoEncryption)
	}
	enc, err := encryption.NewEncryptorFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up encryption: %w", err)
	}
	return nil
}
