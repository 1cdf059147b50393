// Package ciutil locates the external services used by integration tests.
//
// Integration tests for the postgres and redis status stores need a running
// server. The helpers here read its address from the environment, accepting
// the standard names as well as ALPIPE_TEST_ prefixed ones, and decide
// whether a test without a server should be skipped or failed: on a CI
// runner that opted in with ALPIPE_REQUIRE_INTEGRATION a missing service is
// an error rather than a silent skip.
package ciutil
