// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It loads the master
// configuration and the four opaque stage configurations into an immutable
// Snapshot, and isolates hot reloading behind the Reloader so a bad file
// never replaces a good configuration.
package config
