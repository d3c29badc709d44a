package capture

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage holds image blobs: profile preview images and the page
// images of saved queues.
type Storage interface {
	// Save writes a blob under the given relative path and returns the
	// path it was stored at.
	Save(path string, data []byte) (string, error)

	// Get retrieves a blob.
	Get(path string) ([]byte, error)

	// Delete removes a blob.
	Delete(path string) error
}

// LocalStorage implements Storage on the local filesystem. Paths may
// contain subdirectories ("queues/<batch>/<page>.png"); intermediate
// directories are created as needed.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the base directory if necessary.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Save writes a blob to disk.
func (l *LocalStorage) Save(path string, data []byte) (string, error) {
	full := filepath.Join(l.basePath, path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}

// Get reads a blob from disk.
func (l *LocalStorage) Get(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, path))
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a blob from disk.
func (l *LocalStorage) Delete(path string) error {
	if err := os.Remove(filepath.Join(l.basePath, path)); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
