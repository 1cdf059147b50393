// Package task tracks asynchronous units of pipeline work. A Queue submits
// task bodies to an Executor, counts what is still running and what has
// finished, and hands finished results back to the single control goroutine
// exactly once. WorkerPool is the in-process Executor.
package task
