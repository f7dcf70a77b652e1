package blob

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"docstage/internal/stage"
)

// exerciseStore runs the behaviour every BlobStore must share.
func exerciseStore(t *testing.T, s stage.BlobStore) {
	t.Helper()

	payload := []byte("course syllabus v1")
	sum := stage.Checksum(payload)

	t.Run("open missing", func(t *testing.T) {
		_, err := s.Open(stage.Checksum([]byte("never stored")))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Open() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("put and open", func(t *testing.T) {
		if err := s.Put(sum, bytes.NewReader(payload), int64(len(payload))); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		rc, err := s.Open(sum)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer rc.Close()
		got, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("Open() content = %q, want %q", got, payload)
		}
	})

	t.Run("put is idempotent", func(t *testing.T) {
		if err := s.Put(sum, bytes.NewReader(payload), int64(len(payload))); err != nil {
			t.Fatalf("second Put() error = %v", err)
		}
		sums, err := s.List()
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(sums) != 1 || sums[0] != sum {
			t.Errorf("List() = %v, want [%s]", sums, sum)
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		other := []byte("different bytes")
		err := s.Put(stage.Checksum(other), bytes.NewReader(other), int64(len(other))+1)
		if err == nil {
			t.Fatal("Put() expected size mismatch error")
		}
		if _, err := s.Open(stage.Checksum(other)); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open() after failed Put error = %v, want ErrNotFound", err)
		}
	})

	t.Run("invalid checksum", func(t *testing.T) {
		err := s.Put("../../etc/passwd", strings.NewReader("x"), 1)
		if !errors.Is(err, ErrInvalidChecksum) {
			t.Errorf("Put() error = %v, want ErrInvalidChecksum", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.Delete(sum); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if err := s.Delete(sum); err != nil {
			t.Errorf("Delete() of missing blob error = %v, want nil", err)
		}
		sums, err := s.List()
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(sums) != 0 {
			t.Errorf("List() after Delete = %v, want empty", sums)
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := s.ValidateSetup(); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestValidChecksum(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{stage.Checksum([]byte("a")), true},
		{strings.ToUpper(stage.Checksum([]byte("a"))), false},
		{"abc", false},
		{"", false},
		{strings.Repeat("g", 64), false},
	}
	for _, tt := range tests {
		if got := ValidChecksum(tt.in); got != tt.want {
			t.Errorf("ValidChecksum(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
