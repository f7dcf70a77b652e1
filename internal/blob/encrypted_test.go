package blob

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"docstage/internal/encryption"
	"docstage/internal/stage"
)

func TestEncryptedStore(t *testing.T) {
	s := NewEncryptedStore(NewMemoryStore(), encryption.NewTestEncryptor())
	if err := s.Unlock(""); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	exerciseStore(t, s)
}

func TestEncryptedStore_StoresCiphertext(t *testing.T) {
	inner := NewMemoryStore()
	dir := t.TempDir()
	enc := encryption.NewAgeEncryptor(filepath.Join(dir, "k.pub"), filepath.Join(dir, "k.key"))
	if err := enc.Setup("pass"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	s := NewEncryptedStore(inner, enc)

	payload := []byte("confidential evidence")
	sum := stage.Checksum(payload)
	if err := s.Put(sum, bytes.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	rc, err := inner.Open(sum)
	if err != nil {
		t.Fatalf("inner Open() error = %v", err)
	}
	raw, _ := io.ReadAll(rc)
	rc.Close()
	if bytes.Contains(raw, payload) {
		t.Error("inner store holds plaintext")
	}

	if !s.Locked() {
		t.Fatal("Locked() = false before Unlock")
	}
	if _, err := s.Open(sum); !errors.Is(err, ErrLocked) {
		t.Fatalf("Open() while locked error = %v, want ErrLocked", err)
	}

	if err := s.Unlock("wrong"); !errors.Is(err, encryption.ErrWrongPassphrase) {
		t.Fatalf("Unlock(wrong) error = %v, want ErrWrongPassphrase", err)
	}
	if err := s.Unlock("pass"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	rc, err = s.Open(sum)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Open() = %q, want %q", got, payload)
	}

	s.Lock()
	if !s.Locked() {
		t.Error("Locked() = false after Lock")
	}
}

func TestEncryptedStore_EarlyClose(t *testing.T) {
	s := NewEncryptedStore(NewMemoryStore(), encryption.NewTestEncryptor())
	if err := s.Unlock(""); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	payload := bytes.Repeat([]byte("x"), 1<<20)
	sum := stage.Checksum(payload)
	if err := s.Put(sum, bytes.NewReader(payload), int64(len(payload))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	rc, err := s.Open(sum)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	buf := make([]byte, 10)
	if _, err := io.ReadFull(rc, buf); err != nil {
		t.Fatalf("ReadFull() error = %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestEncryptedStore_ValidateSetup(t *testing.T) {
	dir := t.TempDir()
	enc := encryption.NewAgeEncryptor(filepath.Join(dir, "k.pub"), filepath.Join(dir, "k.key"))
	s := NewEncryptedStore(NewMemoryStore(), enc)

	if err := s.ValidateSetup(); err == nil {
		t.Error("ValidateSetup() expected error before keys exist")
	}
	if err := enc.Setup("pass"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := s.ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}
}
