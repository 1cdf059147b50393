// Package testdb provides a migrated postgres database to integration tests.
//
// Open connects to the database named by ciutil.DatabaseURL, applies the
// embedded migrations and closes the connection when the test ends. Tests
// without a configured database are skipped. WithTx runs a test body in a
// transaction that is always rolled back, so tests can exercise constraints
// without leaving rows behind.
package testdb
