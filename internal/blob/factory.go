package blob

import (
	"fmt"

	"docstage/internal/config"
	"docstage/internal/stage"
)

// NewStoreFromConfig creates a BlobStore based on the blobs config type.
// A non-nil enc wraps the store in an EncryptedStore.
func NewStoreFromConfig(cfg config.BlobsConfig, enc stage.Encryptor) (stage.BlobStore, error) {
	var store stage.BlobStore
	switch cfg.Type {
	case "memory":
		store = NewMemoryStore()
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem blob store requires root to be set")
		}
		fs, err := NewFileSystemStore(cfg.Root)
		if err != nil {
			return nil, err
		}
		store = fs
	case "s3":
		s3, err := NewS3StoreFromOptions(S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		store = s3
	default:
		return nil, fmt.Errorf("unknown blob store type: %s", cfg.Type)
	}

	if enc != nil {
		return NewEncryptedStore(store, enc), nil
	}
	return store, nil
}
