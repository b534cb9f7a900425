package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesErrorsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	if err := os.WriteFile(path, []byte("stale line\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Infof("not in the file")
	l.Errorf("upload failed: %s", "chunk")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(b)
	if strings.Contains(got, "stale line") {
		t.Errorf("errors file was not truncated: %q", got)
	}
	if strings.Contains(got, "not in the file") {
		t.Errorf("info line leaked into errors file: %q", got)
	}
	if !strings.Contains(got, "upload failed: chunk") {
		t.Errorf("errors file missing error line: %q", got)
	}
	if l.ErrorsPath() != path {
		t.Errorf("ErrorsPath = %q, want %q", l.ErrorsPath(), path)
	}
}

func TestNewWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf)
	l.Infof("a")
	l.Warnf("b")
	l.Error(nil)
	l.Errorf("c")

	out := buf.String()
	for _, want := range []string{"INFO ", "WARN ", "ERROR "} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
	if strings.Count(out, "\n") != 3 {
		t.Errorf("expected 3 lines, got %q", out)
	}
}

func TestTailLastNLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	if err := os.WriteFile(path, []byte("1\n2\n3\n4\n5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		n    int
		want []string
	}{
		{n: 2, want: []string{"4", "5"}},
		{n: 5, want: []string{"1", "2", "3", "4", "5"}},
		{n: 10, want: []string{"1", "2", "3", "4", "5"}},
		{n: 0, want: nil},
	}
	for _, tt := range tests {
		got, err := TailLastNLines(path, tt.n)
		if err != nil {
			t.Fatalf("n=%d: %v", tt.n, err)
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("n=%d: got %v, want %v", tt.n, got, tt.want)
		}
	}

	if _, err := TailLastNLines(filepath.Join(t.TempDir(), "missing"), 3); err == nil {
		t.Error("expected error for missing file")
	}
}
