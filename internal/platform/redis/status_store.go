// Package redis keeps the pipeline status as a JSON value under a single
// Redis key.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/store"
)

// StatusStore implements store.StatusStore on a Redis string key.
type StatusStore struct {
	rdb    *goredis.Client
	key    string
	logger *slog.Logger
}

var _ store.StatusStore = (*StatusStore)(nil)

// Dial connects to the Redis server at addr and checks the connection.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return rdb, nil
}

// NewStatusStore creates a StatusStore using key on rdb.
func NewStatusStore(rdb *goredis.Client, key string, logger *slog.Logger) (*StatusStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if key == "" {
		return nil, fmt.Errorf("redis key required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusStore{
		rdb:    rdb,
		key:    key,
		logger: logger.With("component", "redis_status_store", "key", key),
	}, nil
}

// Load reads the status value.
// Returns store.ErrStatusNotFound if the key does not exist.
func (s *StatusStore) Load(ctx context.Context) (*domain.Status, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrStatusNotFound
	}
	if err != nil {
		s.logger.Error("failed to load status", "error", err)
		return nil, store.NewStoreError("status", "load", "failed to read status key", err)
	}

	var status domain.Status
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, store.NewStoreError("status", "load", "failed to decode status",
			fmt.Errorf("%w: %v", store.ErrInvalidEntity, err))
	}
	if err := status.Validate(); err != nil {
		return nil, store.NewStoreError("status", "load", "stored status is invalid",
			fmt.Errorf("%w: %v", store.ErrInvalidEntity, err))
	}

	return &status, nil
}

// Save overwrites the status value. The key never expires.
func (s *StatusStore) Save(ctx context.Context, status *domain.Status) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return store.NewStoreError("status", "save", "failed to encode status", err)
	}

	if err := s.rdb.Set(ctx, s.key, raw, 0).Err(); err != nil {
		s.logger.Error("failed to save status", "error", err)
		return store.NewStoreError("status", "save", "failed to write status key", err)
	}

	return nil
}
