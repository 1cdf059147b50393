package store

import (
	"context"

	"github.com/phrazzld/alpipe/internal/domain"
)

// StatusStore persists the pipeline status record.
// Version: 1.0
type StatusStore interface {
	// Load returns the last saved status.
	// Returns ErrStatusNotFound if nothing has been saved yet.
	Load(ctx context.Context) (*domain.Status, error)

	// Save durably replaces the stored status.
	Save(ctx context.Context, status *domain.Status) error
}

// ShardWriter persists one batch of labeled structures.
// Version: 1.0
type ShardWriter interface {
	// WriteShard stores records as shard id, recording which properties
	// were computed for them.
	WriteShard(ctx context.Context, id int, records []domain.Structure, properties []string) error
}
