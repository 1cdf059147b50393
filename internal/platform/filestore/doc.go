// Package filestore implements the store interfaces on the local file
// system: the status record as an atomically replaced JSON file, shards as
// JSON documents named from a printf pattern, and probing for the next
// unused identifier of such a pattern.
package filestore
