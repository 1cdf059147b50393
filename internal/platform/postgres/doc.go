// Package postgres provides the PostgreSQL implementation of the status
// store defined in the internal/store package, together with the embedded
// goose migrations that create its tables. Connections go through
// database/sql with the pgx driver.
package postgres
