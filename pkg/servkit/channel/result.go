// Package channel implements the buffered input/output channel abstraction
// the core uses to move bytes to and from a client socket and to a
// downstream body consumer, with watermark-based backpressure and
// spill-to-disk for bodies too large to hold comfortably in memory.
package channel

// Result is returned by a data callback to report how many bytes it
// consumed and whether the channel should stop delivering further data
// (e.g. because the consumer hit a fatal error).
type Result struct {
	Consumed int
	Terminal bool
}
