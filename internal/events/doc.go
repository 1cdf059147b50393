// Package events provides the pipeline's event types and an in-process
// emitter.
//
// The controller emits an event after every tick and on notable transitions
// (promotion, shard written, reload failure, end of bootstrap). Handlers such
// as the monitor observe the pipeline without the controller knowing about
// them.
package events
