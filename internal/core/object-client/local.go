package objectclient

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/markdave123-py/vectorsync/internal/core"
)

// LocalStore reads files from disk. With a root set, relative paths are
// joined to it and nothing outside it can be reached.
type LocalStore struct {
	root string
}

var _ core.FileStore = (*LocalStore)(nil)

func NewLocalStore(root string) *LocalStore {
	if root != "" {
		root = filepath.Clean(root)
	}
	return &LocalStore{root: root}
}

func (s *LocalStore) resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty file path")
	}
	if s.root == "" {
		return filepath.Clean(p), nil
	}
	full := p
	if !filepath.IsAbs(p) {
		full = filepath.Join(s.root, p)
	}
	full = filepath.Clean(full)
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes upload root", p)
	}
	return full, nil
}

func (s *LocalStore) Open(_ context.Context, p string) (io.ReadCloser, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Materialize returns the resolved path; local files need no copy.
func (s *LocalStore) Materialize(_ context.Context, p string) (string, func(), error) {
	full, err := s.resolve(p)
	if err != nil {
		return "", nil, err
	}
	if _, err := os.Stat(full); err != nil {
		return "", nil, err
	}
	return full, func() {}, nil
}
