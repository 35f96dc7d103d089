package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Lllllllleong/pdftools/internal/models"
)

// RedisStore keeps one JSON record per list element under Key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStoreFromClient(client, cfg.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, key: prefix + Key}
}

func (s *RedisStore) List(ctx context.Context) ([]models.HistoryRecord, error) {
	vals, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]models.HistoryRecord, 0, len(vals))
	for _, v := range vals {
		var rec models.HistoryRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode history record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Append pushes to the head and trims to MaxEntries in one transaction.
func (s *RedisStore) Append(ctx context.Context, rec models.HistoryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.key, data)
		pipe.LTrim(ctx, s.key, 0, MaxEntries-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
