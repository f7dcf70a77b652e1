package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		InstanceID: "instance-abc",
		BaseDir:    "/home/user/.local/share/docstage",
		LogDir:     "/home/user/.local/share/docstage/log",
		Database:   DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/docstage/db"},
		Blobs: BlobsConfig{
			Type:       "s3",
			S3Bucket:   "portal-staging",
			S3Prefix:   "dev",
			S3Region:   "us-east-1",
			S3Endpoint: "http://localhost:9000",
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  "/home/user/.local/share/docstage/keys/docstage.pub",
			PrivateKeyPath: "/home/user/.local/share/docstage/keys/docstage.key",
		},
		Intake: IntakeConfig{Ignore: []string{"*.tmp", ".git"}, MaxFileSize: 2048},
		Server: ServerConfig{Addr: "127.0.0.1:9999"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.InstanceID != original.InstanceID {
		t.Errorf("InstanceID = %q, want %q", got.InstanceID, original.InstanceID)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
	if got.Blobs != original.Blobs {
		t.Errorf("Blobs = %+v, want %+v", got.Blobs, original.Blobs)
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
	if got.Intake.MaxFileSize != 2048 {
		t.Errorf("Intake.MaxFileSize = %d, want 2048", got.Intake.MaxFileSize)
	}
	if len(got.Intake.Ignore) != 2 {
		t.Fatalf("len(Intake.Ignore) = %d, want 2", len(got.Intake.Ignore))
	}
	if got.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("Server.Addr = %q, want %q", got.Server.Addr, "127.0.0.1:9999")
	}
}

func TestManager_Read_TaggedSections(t *testing.T) {
	input := `
instance_id = "i-1"

[database]
type = "memory"

[blobs]
type = "filesystem"
root = "/srv/blobs"
`
	m := &Manager{}
	got, err := m.Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Database.Type != "memory" || got.Database.DataDir != "" {
		t.Errorf("Database = %+v, want memory without data_dir", got.Database)
	}
	if got.Blobs.Type != "filesystem" || got.Blobs.Root != "/srv/blobs" {
		t.Errorf("Blobs = %+v", got.Blobs)
	}
	if got.Server.AddrOrDefault() != DefaultServerAddr {
		t.Errorf("Server.AddrOrDefault() = %q, want %q", got.Server.AddrOrDefault(), DefaultServerAddr)
	}
	if got.Intake.MaxFileSizeOrDefault() != DefaultMaxFileSize {
		t.Errorf("Intake.MaxFileSizeOrDefault() = %d, want %d", got.Intake.MaxFileSizeOrDefault(), DefaultMaxFileSize)
	}
}

func TestManager_Read_Invalid(t *testing.T) {
	m := &Manager{}
	if _, err := m.Read(strings.NewReader("[database\ntype = ")); err == nil {
		t.Error("Read() expected error for malformed TOML")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("instance-1", "/data/docstage")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"InstanceID", cfg.InstanceID, "instance-1"},
		{"BaseDir", cfg.BaseDir, "/data/docstage"},
		{"LogDir", cfg.LogDir, "/data/docstage/log"},
		{"Database.Type", cfg.Database.Type, "sqlite"},
		{"Database.DataDir", cfg.Database.DataDir, "/data/docstage/db"},
		{"Blobs.Type", cfg.Blobs.Type, "filesystem"},
		{"Blobs.Root", cfg.Blobs.Root, "/data/docstage/blobs"},
		{"Encryption.Type", cfg.Encryption.Type, "none"},
		{"Encryption.PublicKeyPath", cfg.Encryption.PublicKeyPath, "/data/docstage/keys/docstage.pub"},
		{"Encryption.PrivateKeyPath", cfg.Encryption.PrivateKeyPath, "/data/docstage/keys/docstage.key"},
		{"Server.Addr", cfg.Server.Addr, DefaultServerAddr},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
	if cfg.Intake.MaxFileSize != DefaultMaxFileSize {
		t.Errorf("Intake.MaxFileSize = %d, want %d", cfg.Intake.MaxFileSize, DefaultMaxFileSize)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "docstage.toml")
		cfg := NewConfig("i1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("config file mode = %o, want 600", perm)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "docstage.toml")
		cfg := NewConfig("i1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "docstage.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.InstanceID != "read-test" {
			t.Errorf("InstanceID = %q, want %q", got.InstanceID, "read-test")
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want memory", got.Database.Type)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/docstage.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
