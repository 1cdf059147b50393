package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/store"
)

// StatusStore keeps the pipeline status as an indented JSON file.
// It implements store.StatusStore.
type StatusStore struct {
	path   string
	logger *slog.Logger
}

var _ store.StatusStore = (*StatusStore)(nil)

// NewStatusStore creates a StatusStore writing to path.
func NewStatusStore(path string, logger *slog.Logger) *StatusStore {
	return &StatusStore{
		path:   path,
		logger: logger.With("component", "file_status_store", "path", path),
	}
}

// Load reads the status file.
// Returns store.ErrStatusNotFound if the file does not exist.
func (s *StatusStore) Load(ctx context.Context) (*domain.Status, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrStatusNotFound
	}
	if err != nil {
		return nil, store.NewStoreError("status", "load", "failed to read status file", err)
	}

	var status domain.Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, store.NewStoreError("status", "load", "failed to decode status file",
			fmt.Errorf("%w: %v", store.ErrInvalidEntity, err))
	}
	if err := status.Validate(); err != nil {
		return nil, store.NewStoreError("status", "load", "stored status is invalid",
			fmt.Errorf("%w: %v", store.ErrInvalidEntity, err))
	}

	return &status, nil
}

// Save atomically replaces the status file.
func (s *StatusStore) Save(ctx context.Context, status *domain.Status) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return store.NewStoreError("status", "save", "failed to encode status", err)
	}

	if err := writeFileAtomic(s.path, append(data, '\n'), 0o644); err != nil {
		s.logger.Error("failed to write status file", "error", err)
		return store.NewStoreError("status", "save", "failed to write status file", err)
	}

	s.logger.Debug("status saved", "molecule_id", status.MoleculeID, "training_id", status.TrainingID)
	return nil
}
