// cmd/catalog-build/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcp-nutrient-profile/internal/catalog"
	"mcp-nutrient-profile/internal/config"
	"mcp-nutrient-profile/internal/embedding"
	"mcp-nutrient-profile/internal/models"
	"mcp-nutrient-profile/internal/platform/logger"
	"mcp-nutrient-profile/internal/platform/openai"
	"mcp-nutrient-profile/internal/storage"
)

var (
	foodCSV     = flag.String("food-csv", "data/food.csv", "FoodData Central food.csv")
	nutrientCSV = flag.String("nutrient-csv", "data/nutrient.csv", "FoodData Central nutrient.csv")
	npyPath     = flag.String("embeddings", "", "Precomputed .npy embedding matrix in catalog order")
	embed       = flag.Bool("embed", false, "Compute embeddings through the provider instead of reading -embeddings")
	batchSize   = flag.Int("batch-size", 200, "Descriptions per embedding request")
	exportNPY   = flag.String("export-npy", "", "Also write the embedding matrix to this .npy file")
	dbPath      = flag.String("db-path", "/data/nutrient-profile.db", "Catalog database to write")
	configPath  = flag.String("config", "secrets.toml", "TOML config with the embedding API key")
)

func main() {
	flag.Parse()
	os.Exit(build())
}

// build returns the process exit code once its deferred cleanup has run.
func build() int {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Catalog build failed", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if *embed && *npyPath != "" {
		return fmt.Errorf("-embed and -embeddings are mutually exclusive")
	}

	foods, err := catalog.LoadFoodCatalog(*foodCSV)
	if err != nil {
		return err
	}
	nutrients, err := catalog.LoadNutrientCatalog(*nutrientCSV)
	if err != nil {
		return err
	}
	log.Info("Read source catalogs", "foods", foods.Len(), "nutrients", nutrients.Len())

	store, err := storage.NewSQLiteStorage(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveFoodCatalog(foods); err != nil {
		return err
	}
	if err := store.SaveNutrientCatalog(nutrients); err != nil {
		return err
	}

	vectors, err := loadVectors(ctx, cfg, log, foods)
	if err != nil {
		return err
	}
	if vectors == nil {
		log.Warn("No embeddings attached; the server will refuse to start on this database", "db", *dbPath)
		return nil
	}

	index, err := embedding.NewIndex(foods, vectors)
	if err != nil {
		return err
	}
	if err := store.SaveEmbeddings(index); err != nil {
		return err
	}
	log.Info("Stored embeddings", "foods", index.Len(), "dimensions", index.Dim(), "db", *dbPath)

	if *exportNPY != "" {
		if err := writeNPY(*exportNPY, vectors); err != nil {
			return err
		}
		log.Info("Exported embedding matrix", "path", *exportNPY)
	}
	return nil
}

func loadVectors(ctx context.Context, cfg *config.Config, log *logger.Logger, foods *models.FoodCatalog) ([][]float32, error) {
	switch {
	case *npyPath != "":
		return embedding.LoadNPY(*npyPath)
	case *embed:
		client, err := openai.NewClient(openai.Options{
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.OpenAIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		}, log)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, foods.Len())
		for _, f := range foods.Entries() {
			names = append(names, f.Name)
		}
		return client.EmbedBatches(ctx, names, *batchSize)
	default:
		return nil, nil
	}
}

func writeNPY(path string, vectors [][]float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := embedding.WriteNPY(f, vectors); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
