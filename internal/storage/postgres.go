package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/deep-research-service/internal/database"
)

// Compile-time interface verification.
var _ Store = (*PostgresStore)(nil)

// likeEscaper escapes LIKE metacharacters so a suffix such as "_report.json"
// is matched literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostgresStore keeps artifacts as rows of the artifacts table. The (dir, name)
// index serves List, which replaces directory globbing.
type PostgresStore struct {
	db      database.DBTX
	closeFn func()
}

// NewPostgresStore creates a store over db. The caller keeps ownership of db.
func NewPostgresStore(db database.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// SaveJSON upserts v as indented JSON.
func (s *PostgresStore) SaveJSON(ctx context.Context, p string, v any) error {
	data, err := encodeJSON(v)
	if err != nil {
		return err
	}
	return s.upsert(ctx, p, data, contentTypeJSON)
}

// LoadJSON decodes the artifact at p into v.
func (s *PostgresStore) LoadJSON(ctx context.Context, p string, v any) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	data, err := s.read(ctx, cleaned)
	if err != nil {
		return err
	}
	return decodeJSON(cleaned, data, v)
}

// SaveText upserts content verbatim.
func (s *PostgresStore) SaveText(ctx context.Context, p, content string) error {
	return s.upsert(ctx, p, []byte(content), contentTypeText)
}

// LoadText returns the artifact at p as a string.
func (s *PostgresStore) LoadText(ctx context.Context, p string) (string, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	data, err := s.read(ctx, cleaned)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// List returns artifacts stored directly under dir whose names end with suffix.
func (s *PostgresStore) List(ctx context.Context, dir, suffix string) ([]string, error) {
	cleaned, err := cleanDir(dir)
	if err != nil {
		return nil, err
	}

	query := `SELECT path FROM artifacts WHERE dir = $1 AND name LIKE $2 ORDER BY name`
	rows, err := s.db.Query(ctx, query, cleaned, "%"+likeEscaper.Replace(suffix))
	if err != nil {
		return nil, fmt.Errorf("list artifacts in %s: %w", cleaned, err)
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan artifact path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts in %s: %w", cleaned, err)
	}
	return paths, nil
}

// Ping runs a trivial query to verify connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("ping artifact store: %w", err)
	}
	return nil
}

// Close releases the database pool when the store owns it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) upsert(ctx context.Context, p string, data []byte, contentType string) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	dir, name := splitPath(cleaned)

	query := `
		INSERT INTO artifacts (path, dir, name, content, content_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (path) DO UPDATE SET
			content = EXCLUDED.content,
			content_type = EXCLUDED.content_type,
			updated_at = NOW()`
	if _, err := s.db.Exec(ctx, query, cleaned, dir, name, data, contentType); err != nil {
		return fmt.Errorf("save artifact %s: %w", cleaned, err)
	}
	return nil
}

func (s *PostgresStore) read(ctx context.Context, p string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT content FROM artifacts WHERE path = $1`, p).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(p)
		}
		return nil, fmt.Errorf("load artifact %s: %w", p, err)
	}
	return data, nil
}
