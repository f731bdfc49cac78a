// Package main implements the standalone ingestion worker. It consumes
// filing documents from NATS and indexes them, sharing none of the API
// server's HTTP surface. Useful for scaling ingestion independently.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/catalog"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/corpus"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/embed"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/index"
	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/semantic"
	"github.com/sohailshk/SEC-Filings-QA-Agent/pkg/ollama"
)

type Config struct {
	NATSURL      string
	OllamaURL    string
	EmbedModel   string
	EmbedDim     int
	Neo4jURL     string
	Neo4jUser    string
	Neo4jPass    string
	QdrantURL    string
	Collection   string
	IndexPath    string
	ChunkSize    int
	ChunkOverlap int
}

func loadConfig() Config {
	return Config{
		NATSURL:      envOr("NATS_URL", nats.DefaultURL),
		OllamaURL:    envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:   envOr("EMBED_MODEL", "nomic-embed-text"),
		EmbedDim:     envInt("EMBED_DIM", 768),
		Neo4jURL:     os.Getenv("NEO4J_URL"),
		Neo4jUser:    envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:    envOr("NEO4J_PASS", "password"),
		QdrantURL:    os.Getenv("QDRANT_URL"),
		Collection:   envOr("QDRANT_COLLECTION", "filings"),
		IndexPath:    envOr("INDEX_PATH", "data/filings.idx"),
		ChunkSize:    envInt("CHUNK_SIZE", 1000),
		ChunkOverlap: envInt("CHUNK_OVERLAP", 200),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(loadConfig(), logger); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var embedder embed.Embedder = ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel, cfg.EmbedDim, 10)
	embedder = embed.NewCache(embedder, embed.DefaultCacheSize)

	var filingCatalog *catalog.Store
	if cfg.Neo4jURL != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(ctx)
		filingCatalog = catalog.New(driver)
	}

	var vectors *semantic.VectorStore
	if cfg.QdrantURL != "" {
		vs, err := semantic.New(cfg.QdrantURL, cfg.Collection)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer vs.Close()
		if err := vs.EnsureCollection(ctx, cfg.EmbedDim, index.MetricSquaredL2); err != nil {
			return fmt.Errorf("qdrant collection: %w", err)
		}
		vectors = vs
	}

	manager, err := corpus.New(corpus.Deps{
		Embedder: embedder,
		Catalog:  filingCatalog,
		Vectors:  vectors,
		Logger:   logger,
	}, corpus.Options{
		ChunkSize:          cfg.ChunkSize,
		ChunkOverlap:       cfg.ChunkOverlap,
		TolerateEmptyIndex: true,
	})
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfg.IndexPath); err == nil {
		if err := manager.LoadIndex(cfg.IndexPath); err != nil {
			return fmt.Errorf("load index: %w", err)
		}
	}

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	sub, err := manager.StartConsumer(ctx, nc)
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	logger.Info("ingestion worker started",
		"subject", corpus.IngestSubject,
		"index_vectors", manager.Size())

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if err := manager.SaveIndex(cfg.IndexPath); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	logger.Info("index saved", "path", cfg.IndexPath, "vectors", manager.Size())
	return nil
}
