package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/alpipe/internal/config"
	"github.com/phrazzld/alpipe/internal/platform/filestore"
	"github.com/phrazzld/alpipe/internal/platform/postgres"
	"github.com/phrazzld/alpipe/internal/platform/redis"
	"github.com/phrazzld/alpipe/internal/redact"
	"github.com/phrazzld/alpipe/internal/store"
)

// openStatusStore opens the configured status backend. The returned
// function releases its connection.
func openStatusStore(ctx context.Context, cfg *config.Config, paths config.PathsConfig, logger *slog.Logger) (store.StatusStore, func() error, error) {
	sc := cfg.StatusStore

	switch sc.Backend {
	case "postgres":
		logger.Info("opening postgres status store", "database_url", redact.URL(sc.DatabaseURL))
		db, err := postgres.Open(ctx, sc.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %s", redact.Error(err))
		}
		if err := postgres.Migrate(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return postgres.NewPostgresStatusStore(db, sc.Key, sc.HistoryLimit, logger), db.Close, nil

	case "redis":
		logger.Info("opening redis status store", "addr", sc.RedisAddr, "key", sc.Key)
		rdb, err := redis.Dial(ctx, sc.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		st, err := redis.NewStatusStore(rdb, sc.Key, logger)
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return st, rdb.Close, nil

	default:
		logger.Info("using file status store", "path", paths.StatusPath)
		return filestore.NewStatusStore(paths.StatusPath, logger), func() error { return nil }, nil
	}
}
