package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore implements ObjectStore on a local directory. Used for
// development and for CLI runs without S3 access.
type LocalStore struct {
	dir string
}

var _ ObjectStore = (*LocalStore)(nil)

// NewLocalStore creates the base directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("local storage dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(key)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}

// Head stats the file behind the key.
func (s *LocalStore) Head(_ context.Context, key string) (bool, *time.Time, error) {
	path, err := s.path(key)
	if err != nil {
		return false, nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	mod := info.ModTime().UTC()
	return true, &mod, nil
}

// PutMarkdown writes a report file.
func (s *LocalStore) PutMarkdown(ctx context.Context, key, body string) error {
	return s.put(ctx, key, []byte(body))
}

// PutJSON writes an analysis dump file.
func (s *LocalStore) PutJSON(ctx context.Context, key string, body []byte) error {
	return s.put(ctx, key, body)
}

func (s *LocalStore) put(_ context.Context, key string, body []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
