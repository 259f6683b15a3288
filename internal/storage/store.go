// Package storage persists research artifacts (session metadata, search records,
// reports) under logical slash-separated paths such as
// "RS_20250101_120000_ab12cd/Regulation/AI_policy.json".
//
// Three interchangeable backends implement Store: a local directory tree, a
// PostgreSQL table and Redis keys. Every backend answers List from an index of
// the direct children of a directory, so aggregation reads ("all results of a
// category", "all category reports") behave identically regardless of backend.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/helixir/deep-research-service/internal/domain"
)

// Content types recorded by backends that keep metadata per artifact.
const (
	contentTypeJSON = "application/json"
	contentTypeText = "text/markdown"
)

// Store is the persistence gateway for research artifacts.
//
// LoadJSON and LoadText return an error matching domain.ErrNotFound when the
// artifact does not exist. LoadJSON returns domain.ErrCorrupt when it exists but
// cannot be decoded. List returns the full paths of the direct children of dir
// whose names end with suffix, sorted lexically; a missing dir yields an empty
// slice and no error.
type Store interface {
	SaveJSON(ctx context.Context, p string, v any) error
	LoadJSON(ctx context.Context, p string, v any) error
	SaveText(ctx context.Context, p, content string) error
	LoadText(ctx context.Context, p string) (string, error)
	List(ctx context.Context, dir, suffix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// encodeJSON renders v with two-space indentation and without HTML escaping so
// that non-ASCII text stays readable in the persisted files.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// decodeJSON unmarshals data into v, reporting failures as corrupt artifacts.
func decodeJSON(p string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &domain.CorruptError{Path: p, Err: err}
	}
	return nil
}

// cleanPath normalizes a logical artifact path and rejects paths that would
// escape the store root.
func cleanPath(p string) (string, error) {
	if p == "" {
		return "", domain.NewValidationError("path", "artifact path is empty")
	}
	if strings.Contains(p, "\\") {
		return "", domain.NewValidationError("path", "artifact path must use forward slashes: "+p)
	}
	cleaned := path.Clean(p)
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", domain.NewValidationError("path", "artifact path escapes the store root: "+p)
	}
	return cleaned, nil
}

// cleanDir is cleanPath for directory arguments, where "" means the root.
func cleanDir(dir string) (string, error) {
	if dir == "" || dir == "." {
		return ".", nil
	}
	return cleanPath(dir)
}

// splitPath returns the directory and base name of a cleaned path.
func splitPath(p string) (string, string) {
	return path.Dir(p), path.Base(p)
}

// joinListed joins a listed name back onto its directory.
func joinListed(dir, name string) string {
	if dir == "." {
		return name
	}
	return dir + "/" + name
}

func notFound(p string) error {
	return domain.NewNotFoundError("artifact", p)
}
