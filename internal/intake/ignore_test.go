package intake

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.log"})
		// The ignore file itself is always the first pattern.
		if len(m.patterns) != 2 {
			t.Fatalf("expected 2 patterns, got %d", len(m.patterns))
		}
		if m.patterns[1].pattern != "*.log" {
			t.Errorf("expected *.log, got %s", m.patterns[1].pattern)
		}
	})

	t.Run("classifies path vs element patterns", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"*.log", "build/output", "/drafts", "cache/"})
		want := []bool{false, false, true, false, false}
		for i, p := range m.patterns {
			if p.matchPath != want[i] {
				t.Errorf("pattern %q matchPath = %v, want %v", p.pattern, p.matchPath, want[i])
			}
		}
		if m.patterns[3].pattern != "drafts" {
			t.Errorf("leading slash not stripped: %q", m.patterns[3].pattern)
		}
		if m.patterns[4].pattern != "cache" {
			t.Errorf("trailing slash not stripped: %q", m.patterns[4].pattern)
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{"glob matches file in root", []string{"*.log"}, "app.log", true},
		{"glob matches file in subdirectory", []string{"*.log"}, filepath.Join("sub", "app.log"), true},
		{"glob does not match other extension", []string{"*.log"}, "app.txt", false},
		{"office lock file", []string{"~$*"}, "~$report.docx", true},
		{"exact name matches directory", []string{".git"}, ".git", true},
		{"ignore file always matched", nil, filepath.Join("sub", IgnoreFileName), true},
		{"path pattern matches relative path", []string{"build/output"}, filepath.Join("build", "output"), true},
		{"path pattern does not match other path", []string{"build/output"}, filepath.Join("src", "output"), false},
		{"path pattern does not match base name", []string{"build/output"}, "output", false},
		{"empty path never matches", []string{"*"}, "", false},
		{"malformed pattern matches nothing", []string{"[abc"}, "a", false},
		{"no patterns", nil, "report.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			if got := m.Match(tt.relativePath); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.relativePath, got, tt.want)
			}
		})
	}
}

func TestIgnoreMatcher_With(t *testing.T) {
	t.Parallel()
	base := NewIgnoreMatcher([]string{"*.log"})
	merged := base.With([]string{"*.tmp"})

	if !merged.Match("a.log") || !merged.Match("a.tmp") {
		t.Error("merged matcher should match both pattern sets")
	}
	if base.Match("a.tmp") {
		t.Error("With must not modify the receiver")
	}
	if len(merged.patterns) != 3 {
		t.Errorf("expected 3 patterns, got %d", len(merged.patterns))
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		lines, err := ParseIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if lines != nil {
			t.Errorf("expected nil, got %v", lines)
		}
	})

	t.Run("reads lines", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), IgnoreFileName)
		if err := os.WriteFile(path, []byte("*.log\n# comment\n\nscans/raw\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		lines, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(lines) != 4 {
			t.Fatalf("expected 4 lines, got %d: %v", len(lines), lines)
		}
		m := NewIgnoreMatcher(lines)
		if !m.Match("x.log") || !m.Match(filepath.Join("scans", "raw")) {
			t.Error("parsed patterns not applied")
		}
	})
}
