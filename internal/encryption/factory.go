package encryption

import (
	"fmt"

	"docstage/internal/config"
	"docstage/internal/stage"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// It returns nil for "none": payloads are then stored in plaintext.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (stage.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg.PublicKeyPath, cfg.PrivateKeyPath), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
