package ciutil

import (
	"log/slog"
	"testing"
)

// DatabaseURL returns the postgres URL for integration tests, or "" when
// none is configured.
func DatabaseURL(logger *slog.Logger) string {
	return GetEnvWithFallbacks([]string{EnvTestDatabaseURL, EnvDatabaseURL}, "", logger)
}

// RedisAddr returns the redis address for integration tests, or "" when
// none is configured.
func RedisAddr(logger *slog.Logger) string {
	return GetEnvWithFallbacks([]string{EnvTestRedisAddr, EnvRedisAddr}, "", logger)
}

// RequireService stops t when value, the location of service, is empty.
// The test is skipped, or failed when IntegrationRequired.
func RequireService(t testing.TB, service, value string) {
	t.Helper()
	if value != "" {
		return
	}
	if IntegrationRequired() {
		t.Fatalf("%s is required on CI but not configured", service)
	}
	t.Skipf("Skipping integration test - %s not configured", service)
}
