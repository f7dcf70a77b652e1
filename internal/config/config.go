package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultServerAddr is where `docstage serve` listens unless configured.
	DefaultServerAddr = "127.0.0.1:8484"

	// DefaultMaxFileSize caps a single staged file at 64 MiB.
	DefaultMaxFileSize int64 = 64 << 20
)

// Config represents the main configuration for docstage.
type Config struct {
	InstanceID string           `toml:"instance_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Database   DatabaseConfig   `toml:"database"`
	Blobs      BlobsConfig      `toml:"blobs"`
	Encryption EncryptionConfig `toml:"encryption"`
	Intake     IntakeConfig     `toml:"intake"`
	Server     ServerConfig     `toml:"server"`
}

// DatabaseConfig selects the record store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite; one file per collection
}

// BlobsConfig selects where payload bytes are kept.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BlobsConfig struct {
	Type string `toml:"type"` // "filesystem", "memory" or "s3"

	// FileSystem-specific fields (only used when Type == "filesystem")
	Root string `toml:"root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used to encrypt payloads at rest.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// IntakeConfig controls how files are collected from disk.
type IntakeConfig struct {
	Ignore      []string `toml:"ignore"`
	MaxFileSize int64    `toml:"max_file_size"` // bytes; 0 means DefaultMaxFileSize
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// NewConfig creates a Config with default paths under baseDir.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Blobs: BlobsConfig{
			Type: "filesystem",
			Root: filepath.Join(baseDir, "blobs"),
		},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "docstage.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "docstage.key"),
		},
		Intake: IntakeConfig{
			Ignore:      []string{".DS_Store", "Thumbs.db", "~$*", ".git"},
			MaxFileSize: DefaultMaxFileSize,
		},
		Server: ServerConfig{Addr: DefaultServerAddr},
	}
}

// MaxFileSizeOrDefault returns the configured per-file limit or the default.
func (c IntakeConfig) MaxFileSizeOrDefault() int64 {
	if c.MaxFileSize <= 0 {
		return DefaultMaxFileSize
	}
	return c.MaxFileSize
}

// AddrOrDefault returns the configured listen address or DefaultServerAddr.
func (c ServerConfig) AddrOrDefault() string {
	if c.Addr == "" {
		return DefaultServerAddr
	}
	return c.Addr
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold S3 credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It fails if a config file already exists there.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
