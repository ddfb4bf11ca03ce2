package logutil

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRedactKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "********"},
		{"short", "********"},
		{"12345678", "********"},
		{"AIzaSyExampleKey1234", "AIza...1234"},
	}
	for _, tt := range tests {
		if got := RedactKey(tt.in); got != tt.want {
			t.Errorf("RedactKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"line1\nline2\r", `line1\nline2\n`},
		{"tab\there", `tab\there`},
		{"bell\x07del\x7f", "bell?del?"},
		{"héllo", "héllo"},
		{strings.Repeat("a", 150), strings.Repeat("a", 100) + "..."},
		{strings.Repeat("é", 100), strings.Repeat("é", 100)},
	}
	for _, tt := range tests {
		if got := SanitizeForLog(tt.in); got != tt.want {
			t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSetupWritesToDir(t *testing.T) {
	defer log.SetOutput(os.Stderr)
	dir := t.TempDir()

	path := SetupIn(dir)
	if path != filepath.Join(dir, logFileName) {
		t.Fatalf("unexpected log path %q", path)
	}
	log.Printf("hello from test")
	log.SetOutput(io.Discard)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello from test") {
		t.Fatalf("log line missing: %q", data)
	}
}

func TestSetupDisabledReturnsEmpty(t *testing.T) {
	defer log.SetOutput(os.Stderr)
	if got := Setup(false); got != "" {
		t.Fatalf("expected no log path, got %q", got)
	}
}

func TestRotatingWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w, err := newRotatingWriter(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 6; i++ {
		if _, err := w.Write([]byte("0123456789")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	w.f.Close()

	for i := 1; i <= maxArchives; i++ {
		if _, err := os.Stat(archiveName(path, i)); err != nil {
			t.Errorf("expected archive %d: %v", i, err)
		}
	}
	if _, err := os.Stat(archiveName(path, maxArchives+1)); err == nil {
		t.Error("expected no archive beyond the limit")
	}
}
