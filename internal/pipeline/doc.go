// Package pipeline implements the controller that drives the active
// learning loop.
//
// A Controller owns one task.Queue per stage and advances them on a fixed
// period. Each tick is run to completion on the calling goroutine: it
// reloads the configuration, applies the admission and hand-off rules, then
// persists the status record. Stage bodies run on the executors supplied by
// the caller, so a tick never blocks on a stage.
//
// A new run first builds a bootstrap training set and trains the first
// model, then switches to the steady-state loop that samples new
// structures with the current model, labels the interesting ones and
// retrains once enough labels have accumulated.
package pipeline
