// Package buffer implements a segmented byte-buffer chain: an ordered
// sequence of byte segments supporting O(1) amortized append/prepend,
// zero-copy move between buffers, pullup (linearization), peek,
// needle search, and watermark-driven mutation callbacks.
//
// The operation contracts (pullup invalidation rules, move's
// single-segment-split bound, freeze/unfreeze semantics) are grounded on
// the libevent evbuffer.h contract this package's parent module
// distills, reimplemented with slice-backed segments instead of the
// original's manually managed evbuffer_chain linked list.
package buffer
