package imagestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSave_SequentialNames(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p1, err := s.Save([]byte{1, 2}, "image/png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	p2, err := s.Save([]byte{3, 4}, "image/jpeg")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if p1 != "images/image_0001.png" {
		t.Errorf("first path = %q", p1)
	}
	if p2 != "images/image_0002.jpg" {
		t.Errorf("second path = %q", p2)
	}

	data, err := os.ReadFile(filepath.Join(dir, "image_0001.png"))
	if err != nil || len(data) != 2 {
		t.Errorf("stored file = %v, %v", data, err)
	}
}

func TestReset_RestartsNumbering(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "images"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Save([]byte{1}, "image/png")
	s.Save([]byte{2}, "image/png")

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 0 {
		t.Errorf("files after reset = %d, want 0", len(entries))
	}

	p, err := s.Save([]byte{3}, "image/png")
	if err != nil {
		t.Fatalf("Save after reset: %v", err)
	}
	if !strings.HasSuffix(p, "image_0001.png") {
		t.Errorf("path after reset = %q, want numbering restart", p)
	}
}

func TestDataURI(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "images"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p, err := s.Save([]byte("pngbytes"), "image/png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	uri, err := s.DataURI(p)
	if err != nil {
		t.Fatalf("DataURI: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Errorf("uri = %q", uri)
	}

	// Bare filename resolves too.
	uri2, err := s.DataURI("image_0001.png")
	if err != nil || uri2 != uri {
		t.Errorf("bare filename lookup = %q, %v", uri2, err)
	}

	if _, err := s.DataURI("image_9999.png"); err == nil {
		t.Error("expected error for missing image")
	}
}
