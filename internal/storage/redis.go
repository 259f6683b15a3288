package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface verification.
var _ Store = (*RedisStore)(nil)

// RedisStore keeps each artifact under its own key and maintains one SET per
// directory holding the names of its direct children. List reads that set
// instead of scanning the keyspace.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store over client. Keys are namespaced by prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "deepresearch"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) artifactKey(p string) string {
	return s.prefix + ":artifact:" + p
}

func (s *RedisStore) indexKey(dir string) string {
	return s.prefix + ":dir:" + dir
}

// SaveJSON stores v as indented JSON.
func (s *RedisStore) SaveJSON(ctx context.Context, p string, v any) error {
	data, err := encodeJSON(v)
	if err != nil {
		return err
	}
	return s.write(ctx, p, data)
}

// LoadJSON decodes the artifact at p into v.
func (s *RedisStore) LoadJSON(ctx context.Context, p string, v any) error {
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

// SaveText stores content verbatim.
func (s *RedisStore) SaveText(ctx context.Context, p, content string) error {
	return s.write(ctx, p, []byte(content))
}

// LoadText returns the artifact at p as a string.
func (s *RedisStore) LoadText(ctx context.Context, p string) (string, error) {
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

// List returns indexed children of dir whose names end with suffix.
func (s *RedisStore) List(ctx context.Context, dir, suffix string) ([]string, error) {
	cleaned, err := cleanDir(dir)
	if err != nil {
		return nil, err
	}

	names, err := s.client.SMembers(ctx, s.indexKey(cleaned)).Result()
	if err != nil {
		return nil, fmt.Errorf("list artifacts in %s: %w", cleaned, err)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasSuffix(name, suffix) {
			paths = append(paths, joinListed(cleaned, name))
		}
	}
	return paths, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// write sets the artifact and registers it in its directory index atomically.
func (s *RedisStore) write(ctx context.Context, p string, data []byte) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}
	dir, name := splitPath(cleaned)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.artifactKey(cleaned), data, 0)
		pipe.SAdd(ctx, s.indexKey(dir), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", cleaned, err)
	}
	return nil
}

func (s *RedisStore) read(ctx context.Context, p string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.artifactKey(p)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(p)
		}
		return nil, fmt.Errorf("load artifact %s: %w", p, err)
	}
	return data, nil
}
