// Package main provides the schema migration tool for the postgres artifact
// store.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/deep-research-service/internal/config"
	"github.com/helixir/deep-research-service/internal/database"
	"github.com/helixir/deep-research-service/internal/observability"
)

var migrationsPath string

var rootCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Manage the artifact table schema",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&migrationsPath, "path", "",
		"read migrations from this directory instead of the ones built into the binary")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *database.Migrator, logger zerolog.Logger, _ []string) error {
				logger.Info().Msg("running all pending migrations")
				if err := m.Up(); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(m *database.Migrator, logger zerolog.Logger, _ []string) error {
				logger.Warn().Msg("rolling back all migrations")
				if err := m.Down(); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "steps N",
			Short: "Apply N migrations, or roll back when N is negative",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(m *database.Migrator, logger zerolog.Logger, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("steps must be a non-zero integer, got %q", args[0])
				}
				logger.Info().Int("steps", n).Msg("running migration steps")
				if err := m.Steps(n); err != nil {
					return fmt.Errorf("migrate steps: %w", err)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the recorded version after a failed migration",
			Args:  cobra.ExactArgs(1),
			RunE: withMigrator(func(m *database.Migrator, logger zerolog.Logger, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 0 {
					return fmt.Errorf("version must be a non-negative integer, got %q", args[0])
				}
				logger.Warn().Int("version", v).Msg("forcing migration version")
				if err := m.Force(v); err != nil {
					return fmt.Errorf("force version: %w", err)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: withMigrator(func(*database.Migrator, zerolog.Logger, []string) error {
				return nil
			}),
		},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// withMigrator connects to the configured database, runs action and reports
// the resulting schema version.
func withMigrator(action func(*database.Migrator, zerolog.Logger, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// Console output for an interactive tool.
		logger := observability.NewLogger(observability.LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stdout",
			TimeFormat: time.RFC3339,
		}).With().Str("component", "migrate").Logger()

		dir := cfg.Database.MigrationPath
		if migrationsPath != "" {
			dir = migrationsPath
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		db, err := database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		migrator, err := database.NewMigrator(db, dir, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := action(migrator, logger, args); err != nil {
			return err
		}
		printVersion(migrator, logger)
		return nil
	}
}

// printVersion logs the current migration version.
func printVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current migration version")
}
