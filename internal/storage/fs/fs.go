package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"anvil/internal/storage"
)

// FSStorage archives artifacts under a local directory, one file per
// object path.
type FSStorage struct {
	dir string
}

func NewFSStorage(dir string) (storage.Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create archive directory %s: %w", dir, err)
	}
	return &FSStorage{dir: dir}, nil
}

func (s *FSStorage) Upload(ctx context.Context, objectPath string, data []byte) error {
	path, err := s.path(objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *FSStorage) Download(ctx context.Context, objectPath string) ([]byte, error) {
	path, err := s.path(objectPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (s *FSStorage) Close() {}

func (s *FSStorage) path(objectPath string) (string, error) {
	clean := filepath.Clean("/" + objectPath)
	if strings.Contains(objectPath, "..") || clean == "/" {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	return filepath.Join(s.dir, clean), nil
}
