package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/platform/logger"
	"github.com/phrazzld/alpipe/internal/platform/postgres"
	"github.com/phrazzld/alpipe/internal/store"
	"github.com/phrazzld/alpipe/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPostgresStatusStore_Integration runs against a real database.
func TestPostgresStatusStore_Integration(t *testing.T) {
	db := testdb.Open(t)
	log, _ := logger.GetTestLogger(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key := fmt.Sprintf("alpipe:test:%d", time.Now().UnixNano())
	testdb.CleanupKey(t, db, key)

	s := postgres.NewPostgresStatusStore(db, key, 0, log)

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, store.ErrStatusNotFound)

	first := domain.NewStatus(0, 0)
	require.NoError(t, s.Save(ctx, first))
	second := first.Clone()
	second.NextMoleculeID()
	second.RecordFailures(domain.StageTrainer, 1)
	require.NoError(t, s.Save(ctx, second))
	require.NoError(t, s.Save(ctx, second.Clone()))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	history, err := s.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2, "an unchanged save adds no history")
	assert.Equal(t, 1, history[0].MoleculeID)
}

// TestPostgresStatusStoreHistoryLimit_Integration checks that old history is pruned.
func TestPostgresStatusStoreHistoryLimit_Integration(t *testing.T) {
	db := testdb.Open(t)
	log, _ := logger.GetTestLogger(t)
	ctx := context.Background()

	key := fmt.Sprintf("alpipe:test:limit:%d", time.Now().UnixNano())
	testdb.CleanupKey(t, db, key)

	s := postgres.NewPostgresStatusStore(db, key, 3, log)
	status := domain.NewStatus(0, 0)
	for i := 0; i < 5; i++ {
		status.NextMoleculeID()
		require.NoError(t, s.Save(ctx, status))
	}

	history, err := s.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 5, history[0].MoleculeID)
	assert.Equal(t, 3, history[2].MoleculeID)
}

// TestMigrationsAreIdempotent applies the migrations a second time.
func TestMigrationsAreIdempotent(t *testing.T) {
	db := testdb.Open(t)
	log, _ := logger.GetTestLogger(t)

	require.NoError(t, postgres.Migrate(context.Background(), db, log))
}

// TestSchemaConstraints_Integration checks that constraint violations map
// onto store errors.
func TestSchemaConstraints_Integration(t *testing.T) {
	db := testdb.Open(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		_, err := tx.Exec(`INSERT INTO pipeline_status (key, document) VALUES ($1, NULL)`, "alpipe:test:null")

		require.Error(t, err)
		assert.ErrorIs(t, postgres.MapError(err), store.ErrInvalidEntity)
	})
}
