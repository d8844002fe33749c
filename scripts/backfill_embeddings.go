package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	database "github.com/sierge-ai/activity-engine/app/db"
	"github.com/sierge-ai/activity-engine/app/observability/metrics"
	"github.com/sierge-ai/activity-engine/config"
	"github.com/sierge-ai/activity-engine/internal/api/activity"
	"github.com/sierge-ai/activity-engine/internal/api/embedding"
)

// Backfills vectors for activities persisted without one, e.g. after an
// embedding model or dimension change followed by a column reset.
func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	metrics.InitAppMetrics()

	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Connected to database successfully")

	embedder, err := embedding.NewService(ctx, cfg.Embedding.Model, cfg.Embedding.Dimension, logger)
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}

	repo := activity.NewRepository(pool, logger)

	batchSize := 20
	totalProcessed := 0
	totalErrors := 0

	for {
		missing, err := repo.ListMissingEmbeddings(ctx, batchSize)
		if err != nil {
			log.Fatalf("Failed to list activities missing embeddings: %v", err)
		}
		if len(missing) == 0 {
			break
		}

		logger.Info("Processing batch", slog.Int("batch_size", len(missing)))

		processedBefore := totalProcessed
		for _, m := range missing {
			vec, err := embedder.Embed(ctx, m.Activity.EmbeddingText())
			if err != nil {
				logger.Error("Failed to embed activity",
					slog.Any("error", err),
					slog.String("id", m.Activity.ID.String()),
					slog.String("name", m.Activity.Name))
				totalErrors++
				continue
			}

			if err := repo.UpdateEmbedding(ctx, m.Collection, m.Activity.ID, vec); err != nil {
				logger.Error("Failed to store embedding",
					slog.Any("error", err),
					slog.String("id", m.Activity.ID.String()))
				totalErrors++
				continue
			}

			totalProcessed++
		}

		if len(missing) < batchSize {
			break
		}
		// Every record in the batch failed; retrying would spin forever.
		if totalProcessed == processedBefore {
			break
		}
	}

	logger.Info("Embedding backfill completed",
		slog.Int("total_processed", totalProcessed),
		slog.Int("total_errors", totalErrors))
	if totalErrors > 0 {
		os.Exit(1)
	}
}
