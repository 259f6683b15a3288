package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Compile-time interface verification.
var _ Store = (*FileStore)(nil)

// FileStore keeps artifacts as files under a root directory. Logical paths map
// one to one onto the directory tree, which is the layout the command line tool
// leaves behind for users to browse.
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at root, creating it if needed.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the directory the store writes under.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) resolve(p string) (string, string, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// SaveJSON writes v as indented JSON, replacing any previous content.
func (s *FileStore) SaveJSON(ctx context.Context, p string, v any) error {
	data, err := encodeJSON(v)
	if err != nil {
		return err
	}
	return s.write(p, data)
}

// LoadJSON decodes the artifact at p into v.
func (s *FileStore) LoadJSON(ctx context.Context, p string, v any) error {
	cleaned, full, err := s.resolve(p)
	if err != nil {
		return err
	}
	data, err := s.read(cleaned, full)
	if err != nil {
		return err
	}
	return decodeJSON(cleaned, data, v)
}

// SaveText writes content verbatim, replacing any previous content.
func (s *FileStore) SaveText(ctx context.Context, p, content string) error {
	return s.write(p, []byte(content))
}

// LoadText returns the artifact at p as a string.
func (s *FileStore) LoadText(ctx context.Context, p string) (string, error) {
	cleaned, full, err := s.resolve(p)
	if err != nil {
		return "", err
	}
	data, err := s.read(cleaned, full)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// List returns regular files directly under dir whose names end with suffix.
func (s *FileStore) List(ctx context.Context, dir, suffix string) ([]string, error) {
	cleaned, err := cleanDir(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.root, filepath.FromSlash(cleaned)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", cleaned, err)
	}

	// os.ReadDir already returns entries sorted by name.
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		paths = append(paths, joinListed(cleaned, e.Name()))
	}
	return paths, nil
}

// Ping verifies the root directory is still reachable.
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("stat storage root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", s.root)
	}
	return nil
}

// Close is a no-op for the filesystem backend.
func (s *FileStore) Close() error {
	return nil
}

// write stores data through a temporary file and rename so that readers never
// observe a partially written artifact.
func (s *FileStore) write(p string, data []byte) error {
	cleaned, full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", cleaned, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", cleaned, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", cleaned, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", cleaned, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", cleaned, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", cleaned, err)
	}
	return nil
}

func (s *FileStore) read(cleaned, full string) ([]byte, error) {
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(cleaned)
		}
		return nil, fmt.Errorf("read %s: %w", cleaned, err)
	}
	return data, nil
}
