package ciutil

import (
	"log/slog"
	"os"

	"github.com/phrazzld/alpipe/internal/redact"
)

// Environment variable names read by this package.
const (
	// CI environment detection variables
	EnvCI            = "CI"
	EnvGitHubActions = "GITHUB_ACTIONS"
	EnvGitLabCI      = "GITLAB_CI"
	EnvJenkinsURL    = "JENKINS_URL"
	EnvCircleCI      = "CIRCLECI"

	// EnvRequireIntegration makes missing services fail tests on CI.
	EnvRequireIntegration = "ALPIPE_REQUIRE_INTEGRATION"

	// Service locations, preferred name first.
	EnvTestDatabaseURL = "ALPIPE_TEST_DATABASE_URL"
	EnvDatabaseURL     = "DATABASE_URL"
	EnvTestRedisAddr   = "ALPIPE_TEST_REDIS_ADDR"
	EnvRedisAddr       = "REDIS_ADDR"
)

// IsCI returns true if the current environment is a CI environment.
// It checks for common CI environment variables across different CI providers.
func IsCI() bool {
	return os.Getenv(EnvCI) != "" ||
		os.Getenv(EnvGitHubActions) != "" ||
		os.Getenv(EnvGitLabCI) != "" ||
		os.Getenv(EnvJenkinsURL) != "" ||
		os.Getenv(EnvCircleCI) != ""
}

// IntegrationRequired reports whether missing services must fail tests.
func IntegrationRequired() bool {
	return IsCI() && os.Getenv(EnvRequireIntegration) != ""
}

// GetEnvWithFallbacks returns the value of the first non-empty environment variable
// from the provided list. If no environment variables are set, it returns the defaultValue.
func GetEnvWithFallbacks(envVars []string, defaultValue string, logger *slog.Logger) string {
	for i, envVar := range envVars {
		if val := os.Getenv(envVar); val != "" {
			if i > 0 && logger != nil {
				logger.Debug("using fallback environment variable",
					"used_var", envVar,
					"preferred_var", envVars[0],
					"value", redact.URL(val))
			}
			return val
		}
	}
	return defaultValue
}
