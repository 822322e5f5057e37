// Command backfill-embeddings enqueues embedding jobs for published articles that have no embedding
// for the configured model and no active job. The drain workers in the API process the jobs.
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
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/spf13/cobra"

	"github.com/newsdesk/search/internal/googleai"
	"github.com/newsdesk/search/internal/openai"
	"github.com/newsdesk/search/internal/repository"
	"github.com/newsdesk/search/internal/service"
	"github.com/newsdesk/search/pkg/database"
)

const defaultBatchSize = 500

var (
	errDatabaseURLRequired       = errors.New("DATABASE_URL is required")
	errEmbeddingProviderRequired = errors.New("EMBEDDING_PROVIDER is required")
)

var (
	batchSize  int
	maxBatches int
	model      string
)

var rootCmd = &cobra.Command{
	Use:   "backfill-embeddings",
	Short: "Enqueue embedding jobs for articles without embeddings",
	Long: `Lists published articles that have no embedding for the model and no pending or
processing job, and enqueues a job for each one in batches. Failed jobs are retried by
enqueueing a fresh job. A drain is scheduled once per batch that created jobs.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().IntVar(&batchSize, "batch-size", defaultBatchSize, "articles listed per batch")
	rootCmd.Flags().IntVar(&maxBatches, "max-batches", 0, "stop after this many batches (0 = until done)")
	rootCmd.Flags().StringVar(&model, "model", "", "embedding model (defaults to EMBEDDING_MODEL or the provider default)")
}

func main() {
	// Load .env for consistency with the API server.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("backfill failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// embeddingModel resolves the model the API would store embeddings under.
func embeddingModel() (string, error) {
	if model != "" {
		return model, nil
	}

	if m := os.Getenv("EMBEDDING_MODEL"); m != "" {
		return m, nil
	}

	switch provider := os.Getenv("EMBEDDING_PROVIDER"); provider {
	case "":
		return "", errEmbeddingProviderRequired
	case "openai":
		return openai.DefaultModel, nil
	case "google":
		return googleai.DefaultModel, nil
	default:
		return "", fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return errDatabaseURLRequired
	}

	embedModel, err := embeddingModel()
	if err != nil {
		return err
	}

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	db, err := database.NewPostgresPool(ctx, databaseURL, database.WithVectorTypes(), database.WithMaxConns(4))
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	// Insert-only client: no queues or workers, so it never claims jobs.
	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{})
	if err != nil {
		return fmt.Errorf("create River client: %w", err)
	}

	jobs := service.NewEmbeddingJobsService(service.EmbeddingJobsServiceParams{
		Jobs:     repository.NewEmbeddingJobsRepository(db),
		Articles: repository.NewArticlesRepository(db),
		Model:    embedModel,
		Notifier: service.NewDrainScheduler(riverClient),
		Logger:   slog.Default(),
	})

	total := 0

	for batch := 1; maxBatches <= 0 || batch <= maxBatches; batch++ {
		inserted, err := jobs.Backfill(ctx, batchSize)
		total += inserted

		if err != nil {
			return fmt.Errorf("batch %d (after %d enqueued): %w", batch, total, err)
		}

		slog.Info("backfill batch complete", "batch", batch, "enqueued", inserted, "model", embedModel)

		if inserted == 0 {
			break
		}
	}

	cmd.Printf("Enqueued %d embedding job(s).\n", total)

	return nil
}
