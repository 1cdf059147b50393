package testdb

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/phrazzld/alpipe/internal/ciutil"
	"github.com/phrazzld/alpipe/internal/platform/logger"
	"github.com/phrazzld/alpipe/internal/platform/postgres"
)

// setupTimeout bounds connecting and migrating.
const setupTimeout = 30 * time.Second

// Open returns a migrated database or skips t when none is configured.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	log, _ := logger.GetTestLogger(t)
	dbURL := ciutil.DatabaseURL(log)
	ciutil.RequireService(t, ciutil.EnvDatabaseURL, dbURL)

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	db, err := postgres.Open(ctx, dbURL)
	if err != nil {
		t.Fatalf("Database connection failed: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close database: %v", err)
		}
	})

	if err := postgres.Migrate(ctx, db, log); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return db
}

// CleanupKey removes every row stored under key when t ends.
func CleanupKey(t *testing.T, db *sql.DB, key string) {
	t.Helper()
	t.Cleanup(func() {
		for _, table := range []string{"pipeline_status", "pipeline_status_history"} {
			if _, err := db.Exec(`DELETE FROM `+table+` WHERE key = $1`, key); err != nil {
				t.Logf("Warning: failed to clean %s for key %s: %v", table, key, err)
			}
		}
	})
}

// WithTx runs fn in a transaction that is rolled back afterwards.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			t.Logf("Warning: failed to roll back transaction: %v", err)
		}
	}()

	fn(t, tx)
}
