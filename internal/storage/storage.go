// Package storage publishes finished tracks to a music library.
// It defines the Storage interface (port) and implementations for a local
// library directory and an S3 bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
)

// ErrInvalidKey is returned for keys that are empty or escape the library root.
var ErrInvalidKey = errors.New("invalid library key")

// Storage defines where finished tracks are published.
type Storage interface {
	// Publish stores data under key and returns the location of the stored
	// track. Keys are slash separated: <artist>/<album>/<file>.
	Publish(ctx context.Context, key string, data io.Reader) (location string, err error)
}

// Key returns the library key of file, placed in the relative libraryDir.
func Key(libraryDir, file string) string {
	return path.Join(filepath.ToSlash(libraryDir), filepath.Base(file))
}

// PublishFile publishes the file at localPath under key.
func PublishFile(ctx context.Context, s Storage, key, localPath string) (string, error) {
	f, err := os.Open(localPath) // #nosec G304 - path comes from a planned cut
	if err != nil {
		return "", fmt.Errorf("open track: %w", err)
	}
	defer func() { _ = f.Close() }()

	return s.Publish(ctx, key, f)
}

func validKey(key string) bool {
	return key != "" && filepath.IsLocal(filepath.FromSlash(key))
}
