package zipstream

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"
)

func TestWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	entries := map[string]string{
		"a.txt":     "hello",
		"sub/b.txt": "world",
	}
	for name, body := range entries {
		if err := w.Add(name, time.Now(), strings.NewReader(body)); err != nil {
			t.Fatalf("Add(%s): %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("reading archive back: %v", err)
	}
	if len(r.File) != len(entries) {
		t.Fatalf("expected %d entries, got %d", len(entries), len(r.File))
	}
	for _, f := range r.File {
		want, ok := entries[f.Name]
		if !ok {
			t.Fatalf("unexpected entry %q", f.Name)
		}
		if f.Method != zip.Store {
			t.Errorf("entry %q compressed, want stored", f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("opening %q: %v", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("reading %q: %v", f.Name, err)
		}
		if string(body) != want {
			t.Errorf("entry %q = %q, want %q", f.Name, body, want)
		}
	}
}
