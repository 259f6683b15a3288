package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/helixir/deep-research-service/internal/config"
	"github.com/helixir/deep-research-service/internal/database"
)

// Open builds the Store selected by cfg.Storage.Backend. For the postgres
// backend the store owns its connection pool and runs pending migrations when
// database.migration_auto_run is set.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	logger = logger.With().Str("component", "storage").Str("backend", cfg.Storage.Backend).Logger()

	switch cfg.Storage.Backend {
	case config.StorageFilesystem, "":
		s, err := NewFileStore(cfg.Storage.Root)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("root", cfg.Storage.Root).Msg("artifact store ready")
		return s, nil

	case config.StoragePostgres:
		db, err := database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if cfg.Database.MigrationAutoRun {
			if err := migrate(db, cfg.Database.MigrationPath, logger); err != nil {
				db.Close()
				return nil, err
			}
		}
		s := NewPostgresStore(db)
		s.closeFn = db.Close
		logger.Info().Msg("artifact store ready")
		return s, nil

	case config.StorageRedis:
		opts, err := redisOptions(cfg.Redis)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("artifact store ready")
		return NewRedisStore(client, cfg.Storage.KeyPrefix), nil

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

func redisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}, nil
}

func migrate(db *database.DB, path string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
