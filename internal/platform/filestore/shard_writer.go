package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/store"
)

// shardDocument is the on-disk layout of one shard.
type shardDocument struct {
	ShardID    int                `json:"shard_id"`
	CreatedAt  time.Time          `json:"created_at"`
	Properties []string           `json:"properties"`
	Records    []domain.Structure `json:"records"`
}

// ShardWriter writes labeled structures to files named by formatting a
// printf pattern with the shard ID. It implements store.ShardWriter.
type ShardWriter struct {
	pattern func() string
	logger  *slog.Logger
}

var _ store.ShardWriter = (*ShardWriter)(nil)

// NewShardWriter creates a ShardWriter. pattern is consulted on every write
// so that a reloaded configuration takes effect for the next shard.
func NewShardWriter(pattern func() string, logger *slog.Logger) *ShardWriter {
	return &ShardWriter{
		pattern: pattern,
		logger:  logger.With("component", "file_shard_writer"),
	}
}

// WriteShard writes records as shard id. An existing file for the same ID is
// replaced.
func (w *ShardWriter) WriteShard(ctx context.Context, id int, records []domain.Structure, properties []string) error {
	path := fmt.Sprintf(w.pattern(), id)

	doc := shardDocument{
		ShardID:    id,
		CreatedAt:  time.Now().UTC(),
		Properties: properties,
		Records:    records,
	}
	if doc.Records == nil {
		doc.Records = []domain.Structure{}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return store.NewStoreError("shard", "write", "failed to encode shard", err)
	}
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return store.NewStoreError("shard", "write", fmt.Sprintf("failed to write %s", path), err)
	}

	w.logger.Info("shard written", "shard_id", id, "path", path, "records", len(records))
	return nil
}
