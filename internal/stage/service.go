package stage

import (
	"fmt"

	"docstage/internal/schema"
)

// CollectionStore is the staging engine for a single collection.
// Every method re-opens the collection; nothing is cached between calls.
type CollectionStore interface {
	// Collection returns the registry entry the store was built from.
	Collection() schema.Collection

	// Init opens the collection, creating its record store and partition
	// index on first use.
	Init() error

	// Append stores the files whose identity tuple is new to the partition,
	// in one transaction, and returns the inserted records.
	Append(key schema.PartitionKey, files []File) ([]*Record, error)

	// List returns the records of a partition, oldest first.
	List(key schema.PartitionKey) ([]*Record, error)

	// Remove deletes a record by ID and reports whether it existed.
	// Removing a missing ID is a no-op.
	Remove(id string) (bool, error)

	// GetPayload returns the record with its payload, or nil if absent.
	GetPayload(id string) (*Record, error)

	// OpenPayload returns a payload stream the caller must close, or nil if absent.
	OpenPayload(id string) (*PayloadHandle, error)

	// Checksums returns the payload checksums referenced by the collection.
	Checksums() ([]string, error)
}

// StoreFactory builds the engine for one registry entry.
type StoreFactory func(c schema.Collection) CollectionStore

// Service is the entry point used by views. It instantiates one
// CollectionStore per registered collection and routes calls by name.
type Service struct {
	registry *schema.Registry
	stores   map[string]CollectionStore
	blobs    BlobStore
	logger   Logger
	notifier Notifier
}

// NewService creates a Service with one store per collection in registry.
func NewService(registry *schema.Registry, factory StoreFactory, blobs BlobStore, logger Logger, notifier Notifier) *Service {
	stores := make(map[string]CollectionStore)
	for _, c := range registry.All() {
		stores[c.Name] = factory(c)
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		registry: registry,
		stores:   stores,
		blobs:    blobs,
		logger:   logger,
		notifier: notifier,
	}
}

// Collections returns the registered collections, sorted by name.
func (s *Service) Collections() []schema.Collection {
	return s.registry.All()
}

// Collection returns the registry entry for name.
func (s *Service) Collection(name string) (schema.Collection, error) {
	return s.registry.Lookup(name)
}

func (s *Service) store(name string) (CollectionStore, error) {
	st, ok := s.stores[name]
	if !ok {
		_, err := s.registry.Lookup(name)
		if err == nil {
			err = fmt.Errorf("%w: %q", schema.ErrUnknownCollection, name)
		}
		return nil, NewError(ErrOpen, schema.Collection{Name: name}, err)
	}
	return st, nil
}

// OpenCollection opens the named collection, initializing it if needed.
func (s *Service) OpenCollection(collectionName string) error {
	st, err := s.store(collectionName)
	if err != nil {
		return err
	}
	if err := st.Init(); err != nil {
		s.logger.Error("opening collection failed", "collection", collectionName, "error", err)
		return err
	}
	s.logger.Debug("collection opened", "collection", collectionName)
	return nil
}

// Append stages files under key in the named collection, skipping files
// already staged in that partition. It returns the records inserted.
func (s *Service) Append(collectionName string, key schema.PartitionKey, files []File) ([]*Record, error) {
	st, err := s.store(collectionName)
	if err != nil {
		return nil, err
	}

	inserted, err := st.Append(key, files)
	if err != nil {
		s.logger.Error("staging failed", "collection", collectionName, "partition", key.String(), "files", len(files), "error", err)
		return nil, err
	}

	s.logger.Info("documents staged",
		"collection", collectionName,
		"partition", key.String(),
		"inserted", len(inserted),
		"skipped", len(files)-len(inserted),
	)

	if len(inserted) > 0 {
		ids := make([]string, len(inserted))
		for i, r := range inserted {
			ids[i] = r.ID
		}
		s.notifier.Notify(ChangeEvent{
			Collection:   collectionName,
			PartitionKey: key,
			Kind:         ChangeAppended,
			IDs:          ids,
		})
	}
	return inserted, nil
}

// List returns the records staged under key in the named collection.
func (s *Service) List(collectionName string, key schema.PartitionKey) ([]*Record, error) {
	st, err := s.store(collectionName)
	if err != nil {
		return nil, err
	}

	records, err := st.List(key)
	if err != nil {
		s.logger.Error("listing failed", "collection", collectionName, "partition", key.String(), "error", err)
		return nil, err
	}

	s.logger.Debug("documents listed", "collection", collectionName, "partition", key.String(), "count", len(records))
	return records, nil
}

// Remove deletes one record by ID from the named collection.
// The record's partition is not checked against any caller context.
func (s *Service) Remove(collectionName string, id string) error {
	st, err := s.store(collectionName)
	if err != nil {
		return err
	}

	removed, err := st.Remove(id)
	if err != nil {
		s.logger.Error("removal failed", "collection", collectionName, "id", id, "error", err)
		return err
	}
	if !removed {
		s.logger.Debug("nothing to remove", "collection", collectionName, "id", id)
		return nil
	}

	s.logger.Info("document removed", "collection", collectionName, "id", id)
	s.notifier.Notify(ChangeEvent{
		Collection: collectionName,
		Kind:       ChangeRemoved,
		IDs:        []string{id},
	})
	return nil
}

// GetPayload returns a record together with its payload bytes, or nil if the
// ID is not staged in the named collection.
func (s *Service) GetPayload(collectionName string, id string) (*Record, error) {
	st, err := s.store(collectionName)
	if err != nil {
		return nil, err
	}

	rec, err := st.GetPayload(id)
	if err != nil {
		s.logger.Error("payload fetch failed", "collection", collectionName, "id", id, "error", err)
		return nil, err
	}
	return rec, nil
}

// OpenPayload returns a payload stream for preview or download, or nil if the
// ID is not staged. The caller must Close the handle.
func (s *Service) OpenPayload(collectionName string, id string) (*PayloadHandle, error) {
	st, err := s.store(collectionName)
	if err != nil {
		return nil, err
	}

	h, err := st.OpenPayload(id)
	if err != nil {
		s.logger.Error("payload open failed", "collection", collectionName, "id", id, "error", err)
		return nil, err
	}
	return h, nil
}

// PruneResult summarizes a Prune run.
type PruneResult struct {
	Referenced int // distinct checksums referenced by records
	Stored     int // blobs found in the blob store
	Deleted    int // unreferenced blobs removed
}

// Prune deletes blobs that no record in any collection references.
// It must not run while an Append is in flight: a blob written ahead of its
// record's commit looks unreferenced.
func (s *Service) Prune() (*PruneResult, error) {
	referenced := make(map[string]bool)
	for _, name := range s.registry.Names() {
		sums, err := s.stores[name].Checksums()
		if err != nil {
			return nil, fmt.Errorf("collecting checksums for %s: %w", name, err)
		}
		for _, sum := range sums {
			referenced[sum] = true
		}
	}

	stored, err := s.blobs.List()
	if err != nil {
		return nil, fmt.Errorf("listing blobs: %w", err)
	}

	result := &PruneResult{Referenced: len(referenced), Stored: len(stored)}
	for _, sum := range stored {
		if referenced[sum] {
			continue
		}
		if err := s.blobs.Delete(sum); err != nil {
			return result, fmt.Errorf("deleting blob %s: %w", sum, err)
		}
		result.Deleted++
		s.logger.Debug("blob pruned", "checksum", sum)
	}

	s.logger.Info("prune complete", "referenced", result.Referenced, "stored", result.Stored, "deleted", result.Deleted)
	return result, nil
}
