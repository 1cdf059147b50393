// Package stage defines the pluggable contracts of the four pipeline stages
// and of the structural checker, and a registry that maps the strategy names
// used in configuration to implementations.
//
// Stage bodies are black boxes to the scheduler. They run on executor
// goroutines and must be safe for concurrent use.
package stage
