package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLineHandler_Handle(t *testing.T) {
	ts := time.Date(2025, 3, 3, 9, 15, 0, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "info message",
			opID:    "op-1",
			level:   slog.LevelInfo,
			message: "documents staged",
			want:    "2025-03-03T09:15:00Z\tINFO\top-1\tdocuments staged\n",
		},
		{
			name:    "warn level",
			opID:    "op-2",
			level:   slog.LevelWarn,
			message: "slow open",
			want:    "2025-03-03T09:15:00Z\tWARN\top-2\tslow open\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-3",
			level:   slog.LevelInfo,
			message: "documents staged",
			attrs:   []slog.Attr{slog.String("collection", "so_documents"), slog.Int("inserted", 2)},
			want:    "2025-03-03T09:15:00Z\tINFO\top-3\tdocuments staged\tcollection=so_documents\tinserted=2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &lineHandler{w: &buf, opID: tt.opID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			r.AddAttrs(tt.attrs...)

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestLineHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &lineHandler{w: &buf, opID: "op-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "blobs")}).(*lineHandler)
	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "put", 0)
	r.AddAttrs(slog.String("checksum", "abc"))
	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	for _, want := range []string{"\ta=1", "\tcomponent=blobs", "\tchecksum=abc"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
}

func TestTeeHandler(t *testing.T) {
	var file, console bytes.Buffer
	tee := teeHandler{
		&lineHandler{w: &file, opID: "op-1"},
		newConsoleHandler(&console, slog.LevelInfo),
	}
	logger := slog.New(tee)

	logger.Debug("only in file")
	logger.Info("everywhere", "collection", "clo_documents")

	if !strings.Contains(file.String(), "only in file") || !strings.Contains(file.String(), "everywhere") {
		t.Errorf("file output incomplete: %q", file.String())
	}
	if strings.Contains(console.String(), "only in file") {
		t.Errorf("console received debug line: %q", console.String())
	}
	if !strings.Contains(console.String(), "everywhere") || !strings.Contains(console.String(), "collection=clo_documents") {
		t.Errorf("console output = %q", console.String())
	}
	// A plain buffer is not a terminal.
	if strings.Contains(console.String(), "\x1b[") {
		t.Errorf("console output contains color codes: %q", console.String())
	}
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "log")

	logger, f, err := newLogger(dir, "test-op", nil)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Info("hello", "n", 1)
	f.Close()

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.HasSuffix(string(data), "\tINFO\ttest-op\thello\tn=1\n") {
		t.Errorf("log line = %q", data)
	}
}
