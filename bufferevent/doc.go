// Package bufferevent implements a buffered-stream layer: a pair of
// chained byte buffers (input, output) driven by a pluggable I/O variant
// (socket, filter, or memory-to-memory pair), with watermark-gated
// callbacks, read/write timeouts, and rate limiting.
//
// The state machine, watermark bookkeeping, and reference counting are
// shared by every variant in bufferevent.go; socket.go, filter.go, and
// pair.go each supply only the driver half that moves bytes in and out.
package bufferevent
