package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/jobboard/server/internal/config"
	"github.com/jobboard/server/internal/storage"
	"github.com/jobboard/server/internal/tasks"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the store schema",
		Long: `Apply or roll back schema changes for the store named by DATABASE_URL.

Postgres uses versioned migrations and also receives the task queue tables.
MongoDB gets its indexes created. The memory store needs nothing.`,
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger := config.NewLogger(cfg.Logging)

			if err := migrateUp(cmd.Context(), cfg.Database); err != nil {
				return err
			}
			logger.Info().Msg("migrations applied")
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back postgres migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			cfg, err := loadConfig(root)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if err := storage.MigrateDown(cfg.Database, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

func migrateUp(ctx context.Context, cfg config.DatabaseConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := storage.Migrate(ctx, cfg); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	backend, err := storage.BackendFor(cfg.URL)
	if err != nil {
		return err
	}
	if backend != storage.BackendPostgres {
		return nil
	}

	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	return tasks.Migrate(ctx, pool)
}
