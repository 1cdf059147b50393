// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the pipeline's scheduling logic: the status record may live in a file,
// PostgreSQL or Redis, and shards are written by a ShardWriter.
package store
