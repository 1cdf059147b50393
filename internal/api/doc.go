// Package api serves the pipeline's read-only HTTP surface: a liveness
// probe, the latest tick snapshot as JSON and the Prometheus metrics.
package api
