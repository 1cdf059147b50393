package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phrazzld/alpipe/internal/domain"
	"github.com/phrazzld/alpipe/internal/platform/logger"
	"github.com/phrazzld/alpipe/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "alpipe:test"

const testHistoryLimit = 100

func newMockStore(t *testing.T) (*PostgresStatusStore, sqlmock.Sqlmock) {
	t.Helper()
	return newMockStoreWithLimit(t, testHistoryLimit)
}

func newMockStoreWithLimit(t *testing.T, historyLimit int) (*PostgresStatusStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log, _ := logger.GetTestLogger(t)
	return NewPostgresStatusStore(db, testKey, historyLimit, log), mock
}

func TestPostgresStatusStore_Load(t *testing.T) {
	ctx := context.Background()
	loadQuery := regexp.QuoteMeta(`SELECT document FROM pipeline_status WHERE key = $1`)

	t.Run("existing status", func(t *testing.T) {
		s, mock := newMockStore(t)
		rows := sqlmock.NewRows([]string{"document"}).
			AddRow([]byte(`{"current_training_id": 4, "current_model_id": 3, "current_h5_id": 9, "current_molecule_id": 120, "lifetime_failed_sampler_tasks": 2}`))
		mock.ExpectQuery(loadQuery).WithArgs(testKey).WillReturnRows(rows)

		status, err := s.Load(ctx)

		require.NoError(t, err)
		assert.Equal(t, 4, status.TrainingID)
		model, ok := status.Model()
		assert.True(t, ok)
		assert.Equal(t, 3, model)
		assert.Equal(t, 9, status.ShardID)
		assert.Equal(t, 120, status.MoleculeID)
		assert.Equal(t, 2, status.Failures(domain.StageSampler))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no row", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(loadQuery).WithArgs(testKey).WillReturnRows(sqlmock.NewRows([]string{"document"}))

		status, err := s.Load(ctx)

		assert.Nil(t, status)
		assert.ErrorIs(t, err, store.ErrStatusNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(loadQuery).WithArgs(testKey).WillReturnError(errors.New("connection refused"))

		_, err := s.Load(ctx)

		require.Error(t, err)
		assert.NotErrorIs(t, err, store.ErrNotFound)
		var storeErr *store.StoreError
		assert.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "load", storeErr.Operation)
	})

	t.Run("invalid document", func(t *testing.T) {
		s, mock := newMockStore(t)
		rows := sqlmock.NewRows([]string{"document"}).AddRow([]byte(`{"current_h5_id": -3}`))
		mock.ExpectQuery(loadQuery).WithArgs(testKey).WillReturnRows(rows)

		_, err := s.Load(ctx)

		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})
}

func TestPostgresStatusStore_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert, history and pruning in one transaction", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO pipeline_status \(key, document, updated_at\)`).
			WithArgs(testKey, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO pipeline_status_history`).
			WithArgs(testKey, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`DELETE FROM pipeline_status_history`).
			WithArgs(testKey, testHistoryLimit).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit()

		err := s.Save(ctx, domain.NewStatus(1, 1))

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unchanged document is not appended or pruned", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO pipeline_status \(key, document, updated_at\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO pipeline_status_history`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := s.Save(ctx, domain.NewStatus(1, 1))

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero limit keeps all history", func(t *testing.T) {
		s, mock := newMockStoreWithLimit(t, 0)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO pipeline_status \(key, document, updated_at\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO pipeline_status_history`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err := s.Save(ctx, domain.NewStatus(1, 1))

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("history failure rolls back", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO pipeline_status \(key, document, updated_at\)`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO pipeline_status_history`).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := s.Save(ctx, domain.NewStatus(0, 0))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err := s.Save(ctx, domain.NewStatus(0, 0))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to begin transaction")
	})
}

func TestPostgresStatusStore_History(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"document"}).
		AddRow([]byte(`{"current_molecule_id": 20}`)).
		AddRow([]byte(`{"current_molecule_id": 10}`))
	mock.ExpectQuery(`SELECT document FROM pipeline_status_history`).
		WithArgs(testKey, 2).
		WillReturnRows(rows)

	history, err := s.History(context.Background(), 2)

	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 20, history[0].MoleculeID)
	assert.Equal(t, 10, history[1].MoleculeID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
