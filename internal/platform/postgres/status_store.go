package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/store"
)

// PostgresStatusStore implements store.StatusStore on the pipeline_status
// table. A save that changes the document also appends it to
// pipeline_status_history in the same transaction, keeping at most
// historyLimit entries per key.
type PostgresStatusStore struct {
	db           *sql.DB
	key          string
	historyLimit int
	logger       *slog.Logger
}

var _ store.StatusStore = (*PostgresStatusStore)(nil)

// NewPostgresStatusStore creates a PostgresStatusStore. key identifies the
// pipeline so that several pipelines can share one database. A historyLimit
// of zero disables pruning.
func NewPostgresStatusStore(db *sql.DB, key string, historyLimit int, logger *slog.Logger) *PostgresStatusStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStatusStore{
		db:           db,
		key:          key,
		historyLimit: historyLimit,
		logger:       logger.With("component", "postgres_status_store", "key", key),
	}
}

// Load reads the status document for the store's key.
// Returns store.ErrStatusNotFound if no status has been saved.
func (s *PostgresStatusStore) Load(ctx context.Context) (*domain.Status, error) {
	query := `SELECT document FROM pipeline_status WHERE key = $1`

	var document []byte
	err := s.db.QueryRowContext(ctx, query, s.key).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrStatusNotFound
	}
	if err != nil {
		s.logger.Error("failed to load status", "error", err)
		return nil, store.NewStoreError("status", "load", "failed to query status", MapError(err))
	}

	var status domain.Status
	if err := json.Unmarshal(document, &status); err != nil {
		return nil, store.NewStoreError("status", "load", "failed to decode status",
			fmt.Errorf("%w: %v", store.ErrInvalidEntity, err))
	}
	if err := status.Validate(); err != nil {
		return nil, store.NewStoreError("status", "load", "stored status is invalid",
			fmt.Errorf("%w: %v", store.ErrInvalidEntity, err))
	}

	return &status, nil
}

// Save upserts the status document and records it in the history table when
// it differs from the latest history entry.
func (s *PostgresStatusStore) Save(ctx context.Context, status *domain.Status) error {
	document, err := json.Marshal(status)
	if err != nil {
		return store.NewStoreError("status", "save", "failed to encode status", err)
	}

	now := time.Now().UTC()
	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := upsertStatus(ctx, tx, s.key, document, now); err != nil {
			return err
		}
		appended, err := appendHistory(ctx, tx, s.key, document, now)
		if err != nil || !appended || s.historyLimit <= 0 {
			return err
		}
		return pruneHistory(ctx, tx, s.key, s.historyLimit)
	})
	if err != nil {
		s.logger.Error("failed to save status", "error", err)
		return store.NewStoreError("status", "save", "failed to write status", err)
	}

	return nil
}

func upsertStatus(ctx context.Context, q store.DBTX, key string, document []byte, at time.Time) error {
	query := `
		INSERT INTO pipeline_status (key, document, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET document = EXCLUDED.document, updated_at = EXCLUDED.updated_at
	`
	result, err := q.ExecContext(ctx, query, key, document, at)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, "status")
}

// appendHistory inserts document unless it equals the newest entry for key.
func appendHistory(ctx context.Context, q store.DBTX, key string, document []byte, at time.Time) (bool, error) {
	query := `
		INSERT INTO pipeline_status_history (key, document, recorded_at)
		SELECT $1::text, $2::jsonb, $3::timestamptz
		WHERE NOT EXISTS (
			SELECT 1 FROM (
				SELECT document FROM pipeline_status_history
				WHERE key = $1::text
				ORDER BY recorded_at DESC, id DESC
				LIMIT 1
			) latest
			WHERE latest.document = $2::jsonb
		)
	`
	result, err := q.ExecContext(ctx, query, key, document, at)
	if err != nil {
		return false, MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// pruneHistory deletes all but the newest limit entries for key.
func pruneHistory(ctx context.Context, q store.DBTX, key string, limit int) error {
	query := `
		DELETE FROM pipeline_status_history
		WHERE key = $1 AND id <= (
			SELECT id FROM pipeline_status_history
			WHERE key = $1
			ORDER BY id DESC
			OFFSET $2 LIMIT 1
		)
	`
	if _, err := q.ExecContext(ctx, query, key, limit); err != nil {
		return MapError(err)
	}
	return nil
}

// History returns up to limit saved status documents, newest first.
func (s *PostgresStatusStore) History(ctx context.Context, limit int) ([]domain.Status, error) {
	query := `
		SELECT document FROM pipeline_status_history
		WHERE key = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, s.key, limit)
	if err != nil {
		return nil, store.NewStoreError("status", "history", "failed to query history", MapError(err))
	}
	defer rows.Close()

	var history []domain.Status
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, store.NewStoreError("status", "history", "failed to scan history row", err)
		}
		var status domain.Status
		if err := json.Unmarshal(document, &status); err != nil {
			return nil, store.NewStoreError("status", "history", "failed to decode history row",
				fmt.Errorf("%w: %v", store.ErrInvalidEntity, err))
		}
		history = append(history, status)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("status", "history", "failed to iterate history", err)
	}

	return history, nil
}
