package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// LocalStorage publishes tracks by copying them into a library directory.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates a new LocalStorage instance.
// The root parameter specifies the library directory.
// If root is empty, a directory below os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "trackslicer")
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create library directory: %w", err)
	}

	return &LocalStorage{root: root}, nil
}

// Root returns the library directory.
func (s *LocalStorage) Root() string {
	return s.root
}

// Publish writes data to root/key and returns the written path. The file
// appears atomically; a partial copy never replaces an existing track.
func (s *LocalStorage) Publish(ctx context.Context, key string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	target := filepath.Join(s.root, filepath.FromSlash(key))
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create library directory %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, ".publish_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	tmp := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write track: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("close track: %w", err)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("move track to %s: %w", target, err)
	}

	return target, nil
}
