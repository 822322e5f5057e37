// Command migrate applies the search schema and the River job tables to Postgres.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/spf13/cobra"

	"github.com/newsdesk/search/migrations"
	"github.com/newsdesk/search/pkg/database"
)

var (
	databaseURL string
	skipRiver   bool
)

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Manage the search database schema",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Long: `Applies the River job tables and then every embedded search migration
that is not yet recorded in schema_migrations. Safe to run repeatedly.`,
	Args: cobra.NoArgs,
	RunE: runUp,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List embedded search migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		all, err := migrations.List()
		if err != nil {
			return err //nolint:wrapcheck // already descriptive
		}

		for _, m := range all {
			cmd.Println(m.Version)
		}

		return nil
	},
}

func init() {
	upCmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL (defaults to DATABASE_URL)")
	upCmd.Flags().BoolVar(&skipRiver, "skip-river", false, "do not migrate the River job tables")
	rootCmd.AddCommand(upCmd, listCmd)
}

func main() {
	// Load .env for consistency with the API server.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("migrate failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func runUp(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	url := databaseURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}

	if url == "" {
		return errors.New("DATABASE_URL or --database-url is required")
	}

	db, err := database.NewPostgresPool(ctx, url, database.WithMaxConns(2))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if !skipRiver {
		migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
		if err != nil {
			return fmt.Errorf("create river migrator: %w", err)
		}

		res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
		if err != nil {
			return fmt.Errorf("migrate river: %w", err)
		}

		for _, v := range res.Versions {
			slog.Info("applied river migration", "version", v.Version)
		}
	}

	applied, err := migrations.Apply(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate search schema: %w", err)
	}

	for _, v := range applied {
		slog.Info("applied migration", "version", v)
	}

	cmd.Printf("Applied %d search migration(s).\n", len(applied))

	return nil
}
