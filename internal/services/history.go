package services

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/pdftools/internal/gcp"
	"github.com/Lllllllleong/pdftools/internal/history"
)

// Supported history backends.
const (
	HistoryMemory    = "memory"
	HistoryFile      = "file"
	HistoryRedis     = "redis"
	HistoryFirestore = "firestore"
)

// HistoryConfig selects and configures the compression history backend.
type HistoryConfig struct {
	Backend string

	ProjectID  string
	Collection string
	Document   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	FilePath string
}

// HistoryConfigFromEnv reads the backend settings the functions share.
func HistoryConfigFromEnv() HistoryConfig {
	return HistoryConfig{
		Backend:       gcp.GetEnv("HISTORY_BACKEND", HistoryMemory),
		ProjectID:     gcp.GetEnv("PROJECT_ID", ""),
		Collection:    gcp.GetEnv("HISTORY_COLLECTION", "pdftools"),
		Document:      gcp.GetEnv("HISTORY_DOCUMENT", history.Key),
		RedisAddr:     gcp.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: gcp.GetEnv("REDIS_PASSWORD", ""),
		RedisPrefix:   gcp.GetEnv("REDIS_PREFIX", "pdftools:"),
		FilePath:      gcp.GetEnv("HISTORY_FILE", "compression_history.json"),
	}
}

// OpenHistory builds the configured store. The returned close func is never nil.
func OpenHistory(ctx context.Context, cfg HistoryConfig) (history.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "", HistoryMemory:
		return history.NewMemoryStore(), noop, nil
	case HistoryFile:
		if cfg.FilePath == "" {
			return nil, noop, fmt.Errorf("history file path must be set for the file backend")
		}
		return history.NewFileStore(cfg.FilePath), noop, nil
	case HistoryRedis:
		store, err := history.NewRedisStore(history.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open redis history: %w", err)
		}
		return store, store.Close, nil
	case HistoryFirestore:
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, noop, err
		}
		return history.NewFirestoreStore(client, cfg.Collection, cfg.Document), client.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown history backend %q", cfg.Backend)
}
