package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes objects below a directory and returns their file paths.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if size <= 0 {
		return "", fmt.Errorf("empty file")
	}
	clean := filepath.Clean("/" + strings.TrimLeft(key, "/"))
	path := filepath.Join(s.dir, clean)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create storage dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create object: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	return path, nil
}
