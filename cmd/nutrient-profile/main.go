// cmd/nutrient-profile/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcp-nutrient-profile/internal/auth"
	"mcp-nutrient-profile/internal/config"
	"mcp-nutrient-profile/internal/embedding"
	"mcp-nutrient-profile/internal/fdc"
	"mcp-nutrient-profile/internal/nutrition"
	"mcp-nutrient-profile/internal/platform/logger"
	"mcp-nutrient-profile/internal/platform/openai"
	"mcp-nutrient-profile/internal/server"
	"mcp-nutrient-profile/internal/storage"
)

var (
	transport  = flag.String("transport", "http", "Transport mode: http")
	port       = flag.Int("port", 8011, "Port for HTTP transport")
	host       = flag.String("host", "0.0.0.0", "Host address")
	address    = flag.String("address", "", "Address (alias for host)")
	dbPath     = flag.String("db-path", "/data/nutrient-profile.db", "Catalog database built by catalog-build")
	configPath = flag.String("config", "secrets.toml", "TOML config with API keys and credentials")
	topN       = flag.Int("top-n", 10, "Default number of search results")
	sessionTTL = flag.Duration("session-idle", 12*time.Hour, "Drop food lists idle for longer than this (0 keeps them)")
	version    = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("mcp-nutrient-profile version 1.0.0")
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", "error", err)
	}

	// Use address if provided, otherwise use host
	hostAddr := *host
	if *address != "" {
		hostAddr = *address
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := buildDeps(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", "error", err)
	}

	srv, err := server.NewNutrientProfileServer(&server.Config{
		Transport:      *transport,
		Host:           hostAddr,
		Port:           *port,
		DBPath:         *dbPath,
		DefaultTopN:    *topN,
		SessionIdleTTL: *sessionTTL,
	}, deps)
	if err != nil {
		log.Fatal("Failed to create server", "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		log.Info("Received shutdown signal")
	case err := <-errCh:
		log.Error("Server error", "error", err)
	}

	log.Info("Shutting down")
	cancel()
	if err := srv.Stop(); err != nil {
		log.Error("Error during shutdown", "error", err)
	}
}

// buildDeps loads the catalogs and embedding index once and connects the
// external providers.
func buildDeps(ctx context.Context, cfg *config.Config, log *logger.Logger) (server.Deps, error) {
	store, err := storage.NewSQLiteStorage(*dbPath)
	if err != nil {
		return server.Deps{}, fmt.Errorf("failed to open catalog database: %w", err)
	}
	defer store.Close()

	foods, err := store.LoadFoodCatalog()
	if err != nil {
		return server.Deps{}, err
	}
	if foods.Len() == 0 {
		return server.Deps{}, fmt.Errorf("catalog database %s has no foods; run catalog-build first", *dbPath)
	}
	nutrients, err := store.LoadNutrientCatalog()
	if err != nil {
		return server.Deps{}, err
	}
	index, err := store.LoadIndex()
	if err != nil {
		return server.Deps{}, fmt.Errorf("failed to load embeddings: %w", err)
	}
	if err := index.CheckCatalog(foods); err != nil {
		return server.Deps{}, err
	}
	log.Info("Catalog loaded", "foods", foods.Len(), "nutrients", nutrients.Len(), "dimensions", index.Dim())

	embedder, err := openai.NewClient(openai.Options{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.OpenAIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
	}, log)
	if err != nil {
		return server.Deps{}, err
	}
	if index.Dim() != embedder.Dimensions() {
		return server.Deps{}, fmt.Errorf("%w: index has %d dimensions, provider is configured for %d",
			embedding.ErrMisaligned, index.Dim(), embedder.Dimensions())
	}
	fetcher, err := fdc.NewClient(fdc.Options{
		BaseURL:       cfg.FoodData.BaseURL,
		APIKey:        cfg.FoodDataKey,
		RatePerSecond: cfg.FoodData.RatePerSecond,
		Timeout:       time.Duration(cfg.FoodData.TimeoutSec) * time.Second,
	}, log)
	if err != nil {
		return server.Deps{}, err
	}

	var (
		cache   nutrition.Cache
		closers []func() error
	)
	if cfg.Cache.RedisAddr != "" {
		rc, err := nutrition.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.CacheTTL())
		if err != nil {
			return server.Deps{}, fmt.Errorf("failed to connect analysis cache: %w", err)
		}
		cache = rc
		closers = append(closers, rc.Close)
		log.Info("Using redis analysis cache", "addr", cfg.Cache.RedisAddr)
	} else {
		cache = nutrition.NewMemoryCache(cfg.Cache.MaxEntries, cfg.CacheTTL())
	}

	users := make(map[string]auth.User, len(cfg.Credentials.Usernames))
	for name, u := range cfg.Credentials.Usernames {
		users[name] = auth.User{Name: u.Name, Email: u.Email, PasswordHash: u.Password}
	}
	authn, err := auth.NewAuthenticator(users, cfg.Cookie.Name, cfg.Cookie.Key, cfg.CookieExpiry())
	if err != nil {
		return server.Deps{}, err
	}

	return server.Deps{
		Foods:     foods,
		Nutrients: nutrients,
		Matcher:   embedding.NewMatcher(embedder, index, log),
		Analyzer:  nutrition.NewAnalyzer(fetcher, foods, cache, log),
		Auth:      authn,
		Log:       log,
		Closers:   closers,
	}, nil
}
