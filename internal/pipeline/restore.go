package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/phrazzld/alpipe/internal/config"
	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/platform/filestore"
	"github.com/phrazzld/alpipe/internal/store"
)

// RestoreStatus loads the saved status. When none exists it is derived
// from the model and shard files already on disk under paths and saved
// immediately.
func RestoreStatus(ctx context.Context, st store.StatusStore, paths config.PathsConfig, logger *slog.Logger) (*domain.Status, error) {
	status, err := st.Load(ctx)
	if err == nil {
		logger.Info("resuming from saved status",
			"current_training_id", status.TrainingID,
			"current_model_id", status.ModelID,
			"current_h5_id", status.ShardID,
			"current_molecule_id", status.MoleculeID)
		return status, nil
	}
	if !errors.Is(err, store.ErrStatusNotFound) {
		return nil, fmt.Errorf("load status: %w", err)
	}

	trainingID, err := filestore.NextFreeIndex(paths.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("probe model path: %w", err)
	}
	shardID, err := filestore.NextFreeIndex(paths.ShardPath)
	if err != nil {
		return nil, fmt.Errorf("probe shard path: %w", err)
	}

	status = domain.NewStatus(trainingID, shardID)
	if err := st.Save(ctx, status); err != nil {
		return nil, fmt.Errorf("save initial status: %w", err)
	}

	logger.Info("no saved status, starting from files on disk",
		"current_training_id", status.TrainingID,
		"current_model_id", status.ModelID,
		"current_h5_id", status.ShardID)
	return status, nil
}

// PrepareDirectories creates the directories the stages write into.
func PrepareDirectories(paths config.PathsConfig) error {
	dirs := []string{
		filepath.Dir(paths.StatusPath),
		filepath.Dir(paths.ShardPath),
		filepath.Dir(paths.ModelPath),
		paths.DataDir,
		paths.ScratchDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
