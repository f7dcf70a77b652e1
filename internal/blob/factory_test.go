package blob

import (
	"path/filepath"
	"testing"

	"docstage/internal/config"
	"docstage/internal/encryption"
)

func TestNewStoreFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.BlobsConfig
		wantErr bool
	}{
		{name: "memory", cfg: config.BlobsConfig{Type: "memory"}},
		{name: "filesystem", cfg: config.BlobsConfig{Type: "filesystem", Root: filepath.Join(t.TempDir(), "blobs")}},
		{name: "filesystem without root", cfg: config.BlobsConfig{Type: "filesystem"}, wantErr: true},
		{name: "unknown", cfg: config.BlobsConfig{Type: "ftp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStoreFromConfig(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if got != nil {
					t.Error("NewStoreFromConfig() should return nil on error")
				}
				return
			}
			if err := got.ValidateSetup(); err != nil {
				t.Errorf("ValidateSetup() error = %v", err)
			}
		})
	}
}

func TestNewStoreFromConfig_Encrypted(t *testing.T) {
	got, err := NewStoreFromConfig(config.BlobsConfig{Type: "memory"}, encryption.NewTestEncryptor())
	if err != nil {
		t.Fatalf("NewStoreFromConfig() error = %v", err)
	}
	if _, ok := got.(*EncryptedStore); !ok {
		t.Errorf("NewStoreFromConfig() = %T, want *EncryptedStore", got)
	}
}
