package reactor

import "container/list"

// DeferredCallback is queued to run at the end of the current dispatch
// iteration rather than inline. Buffer mutation callbacks attached to a
// base via Buffer.DeferCallbacks land here instead of running during the
// mutating call.
type DeferredCallback func()

// deferredQueue is a plain FIFO list. Grounded on eventloop/ingress.go's
// ChunkedIngress (chunked array-of-slots, sync.Pool-recycled, built for
// lock-free MPSC submission under contention); adapted down to
// container/list here because deferred callbacks are enqueued only from
// the loop goroutine itself (buffer mutations always happen on-loop) or
// under the base's own lock, so there is no producer-contention problem
// to amortize away with chunking.
type deferredQueue struct {
	l *list.List
}

func newDeferredQueue() *deferredQueue {
	return &deferredQueue{l: list.New()}
}

func (q *deferredQueue) push(cb DeferredCallback) {
	q.l.PushBack(cb)
}

func (q *deferredQueue) len() int { return q.l.Len() }

// drain runs up to max callbacks (0 means unlimited) in FIFO order,
// returning how many ran. Callbacks that push further deferred callbacks
// are not visited in the same drain call, bounding how much work one
// dispatch iteration can do.
func (q *deferredQueue) drain(max int) int {
	n := 0
	limit := q.l.Len()
	if max > 0 && max < limit {
		limit = max
	}
	for n < limit {
		front := q.l.Front()
		if front == nil {
			break
		}
		q.l.Remove(front)
		cb := front.Value.(DeferredCallback)
		cb()
		n++
	}
	return n
}
