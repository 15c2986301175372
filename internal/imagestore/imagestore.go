// Package imagestore persists extracted images under sequential
// zero-padded filenames and serves them back as data URIs. Metadata in
// the vector index carries these relative paths instead of raw bytes.
package imagestore

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store writes images under dir as image_0001.png, image_0002.jpg, ...
type Store struct {
	mu      sync.Mutex
	dir     string
	counter int
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &Store{dir: dir, counter: 1}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// Reset deletes all stored images and restarts the counter. Called before
// re-processing so a rebuilt document starts from a clean slate.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read image dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}
	s.counter = 1
	return nil
}

// Save writes an image and returns its relative path
// ("<dirname>/image_%04d.<ext>"), the stable reference stored in metadata.
func (s *Store) Save(data []byte, mime string) (string, error) {
	s.mu.Lock()
	n := s.counter
	s.counter++
	s.mu.Unlock()

	name := fmt.Sprintf("image_%04d.%s", n, extFor(mime))
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write image %s: %w", name, err)
	}
	return filepath.ToSlash(filepath.Join(filepath.Base(s.dir), name)), nil
}

// DataURI loads an image by relative path (or bare filename) and returns
// it as a data URI suitable for inline transport.
func (s *Store) DataURI(relPath string) (string, error) {
	name := filepath.Base(relPath)
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", name, err)
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeFor(name), base64.StdEncoding.EncodeToString(data)), nil
}

func extFor(mime string) string {
	switch mime {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

func mimeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
