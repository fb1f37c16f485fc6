package reactor

import (
	"container/heap"
	"time"
)

// timerHandle identifies a single insertion into the timer heap, used for
// O(log n) cancellation. Grounded on eventloop/loop.go's timerHeap, which
// wraps container/heap over a slice of *timer entries.
type timerHandle struct {
	ev       *Event
	deadline time.Time
	seq      uint64 // insertion order, for FIFO tie-break
	index    int    // heap.Interface bookkeeping
	canceled bool
	common   *commonTimeoutKey
}

// commonTimeoutKey groups events that share an exact duration into a FIFO
// list whose head alone occupies the heap (the "common-timeout
// optimization": most timers in a busy server share one of a handful of
// durations, so there is no need to pay heap insertion cost for each).
// Insertion against an active common-timeout group is O(1): the group's
// FIFO list is a plain slice appended to. Cancellation scans that slice
// and removes the member, which is linear in the group's size; only when
// the group's
// occupant on the heap expires does the next member get pushed onto the
// heap (itself an O(log n) operation, but amortized across the group).
type commonTimeoutKey struct {
	dur     time.Duration
	pending []*timerHandle // FIFO; index 0 is the one (if any) on the heap
}

type timerHeap struct {
	items  []*timerHandle
	seq    uint64
	groups map[time.Duration]*commonTimeoutKey
}

func newTimerHeap() *timerHeap {
	return &timerHeap{groups: make(map[time.Duration]*commonTimeoutKey)}
}

// Len, Less, Swap, Push, Pop implement heap.Interface.
func (h *timerHeap) Len() int { return len(h.items) }

func (h *timerHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.deadline.Equal(b.deadline) {
		return a.seq < b.seq
	}
	return a.deadline.Before(b.deadline)
}

func (h *timerHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *timerHeap) Push(x any) {
	th := x.(*timerHandle)
	th.index = len(h.items)
	h.items = append(h.items, th)
}

func (h *timerHeap) Pop() any {
	old := h.items
	n := len(old)
	th := old[n-1]
	old[n-1] = nil
	th.index = -1
	h.items = old[:n-1]
	return th
}

// insert adds a new deadline for ev, returning a handle usable with
// cancel. If useCommonTimeout is true and dur matches a prior common-
// timeout duration (or starts a new group), insertion for any but the
// first member of the group is O(1).
func (h *timerHeap) insert(ev *Event, dur time.Duration, now time.Time, useCommonTimeout bool) *timerHandle {
	h.seq++
	th := &timerHandle{ev: ev, deadline: now.Add(dur), seq: h.seq, index: -1}

	if useCommonTimeout {
		g, ok := h.groups[dur]
		if !ok {
			g = &commonTimeoutKey{dur: dur}
			h.groups[dur] = g
		}
		th.common = g
		if len(g.pending) == 0 {
			heap.Push(h, th)
		}
		g.pending = append(g.pending, th)
		return th
	}

	heap.Push(h, th)
	return th
}

// cancel removes th. If th belongs to a common-timeout group and is not
// the group's current heap occupant, this is a linear scan and slice
// removal within the group, with no heap operation; otherwise it is the usual O(log n) heap removal, after which the next
// group member (if any) is promoted onto the heap.
func (h *timerHeap) cancel(th *timerHandle) {
	if th.canceled {
		return
	}
	th.canceled = true

	if g := th.common; g != nil {
		for i, m := range g.pending {
			if m == th {
				g.pending = append(g.pending[:i], g.pending[i+1:]...)
				break
			}
		}
		if th.index < 0 {
			// th was queued behind the head member and never occupied a
			// heap slot; nothing on the heap to remove or promote.
			return
		}
	}

	wasHeapOccupant := th.index >= 0 && th.index < len(h.items) && h.items[th.index] == th
	if wasHeapOccupant {
		heap.Remove(h, th.index)
	}

	if g := th.common; g != nil && wasHeapOccupant && len(g.pending) > 0 {
		next := g.pending[0]
		heap.Push(h, next)
	}
}

// peekMin returns the earliest pending (non-canceled) deadline, if any.
func (h *timerHeap) peekMin() (time.Time, bool) {
	for h.Len() > 0 && h.items[0].canceled {
		heap.Pop(h)
	}
	if h.Len() == 0 {
		return time.Time{}, false
	}
	return h.items[0].deadline, true
}

// popExpired removes and returns every timer whose deadline is <= now,
// promoting the next common-timeout group member (if any) onto the heap
// for each one popped.
func (h *timerHeap) popExpired(now time.Time) []*Event {
	var out []*Event
	for h.Len() > 0 {
		top := h.items[0]
		if top.canceled {
			heap.Pop(h)
			continue
		}
		if top.deadline.After(now) {
			break
		}
		heap.Pop(h)

		if g := top.common; g != nil {
			if len(g.pending) > 0 && g.pending[0] == top {
				g.pending = g.pending[1:]
			}
			if len(g.pending) > 0 {
				heap.Push(h, g.pending[0])
			}
		}

		out = append(out, top.ev)
	}
	return out
}
