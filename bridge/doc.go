// Package bridge adapts engine-initiated callbacks to Go concurrency.
//
// The engine calls back on its own threads. Nothing in this package blocks
// those threads on Go consumers:
//
//	Queue         unbounded MPSC FIFO with a coalescing wake-up signal
//	Looper        single-consumer execution context fed by a Queue
//	Scheduler     capi.Scheduler that re-enters the engine pump on a Looper
//	Completion    exactly-once result slot for login, async open, uploads
//	Observe       change notifications: clone on the engine thread,
//	              deliver serially on a Looper, release afterwards
//	Stream        ordered event channel for callbacks without a scheduler
//
// Work posted to one Looper runs in post order, so per-subscription
// notification order matches engine emission order.
package bridge
