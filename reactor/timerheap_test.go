package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerHeapOrdersByDeadline(t *testing.T) {
	h := newTimerHeap()
	now := time.Now()

	evA := &Event{}
	evB := &Event{}
	evC := &Event{}

	h.insert(evA, 30*time.Millisecond, now, false)
	h.insert(evB, 10*time.Millisecond, now, false)
	h.insert(evC, 20*time.Millisecond, now, false)

	expired := h.popExpired(now.Add(25 * time.Millisecond))
	require.Len(t, expired, 2)
	assert.Equal(t, []*Event{evB, evC}, expired, "expected FIFO-by-deadline order")
}

func TestTimerHeapFIFOTiebreak(t *testing.T) {
	h := newTimerHeap()
	now := time.Now()

	evA := &Event{}
	evB := &Event{}

	h.insert(evA, 10*time.Millisecond, now, false)
	h.insert(evB, 10*time.Millisecond, now, false)

	expired := h.popExpired(now.Add(10 * time.Millisecond))
	assert.Equal(t, []*Event{evA, evB}, expired, "expected insertion-order tiebreak")
}

func TestTimerHeapCancel(t *testing.T) {
	h := newTimerHeap()
	now := time.Now()

	evA := &Event{}
	evB := &Event{}

	thA := h.insert(evA, 10*time.Millisecond, now, false)
	h.insert(evB, 10*time.Millisecond, now, false)

	h.cancel(thA)

	expired := h.popExpired(now.Add(10 * time.Millisecond))
	assert.Equal(t, []*Event{evB}, expired, "only B should fire after A was canceled")
}

func TestTimerHeapPeekMin(t *testing.T) {
	h := newTimerHeap()
	now := time.Now()

	_, ok := h.peekMin()
	assert.False(t, ok, "expected empty heap to report no min")

	ev := &Event{}
	h.insert(ev, 5*time.Millisecond, now, false)

	deadline, ok := h.peekMin()
	require.True(t, ok)
	assert.False(t, deadline.Before(now), "deadline should be in the future")
}

func TestTimerHeapCommonTimeoutGroupSharesHeapSlot(t *testing.T) {
	h := newTimerHeap()
	now := time.Now()
	dur := 50 * time.Millisecond

	var events []*Event
	var handles []*timerHandle
	for i := 0; i < 5; i++ {
		ev := &Event{}
		events = append(events, ev)
		handles = append(handles, h.insert(ev, dur, now, true))
	}

	// Only the group's head occupant should be on the heap at any time.
	require.Equal(t, 1, h.Len(), "expected common-timeout group to occupy a single heap slot")

	// Canceling the head promotes the next member without growing the heap.
	h.cancel(handles[0])
	assert.Equal(t, 1, h.Len(), "expected promoted member to still occupy one heap slot")

	expired := h.popExpired(now.Add(dur))
	assert.Len(t, expired, 4, "expected remaining 4 group members to expire")
}

func TestTimerHeapCommonTimeoutGroupCancelNonHeadMember(t *testing.T) {
	h := newTimerHeap()
	now := time.Now()
	dur := 50 * time.Millisecond

	var events []*Event
	var handles []*timerHandle
	for i := 0; i < 5; i++ {
		ev := &Event{}
		events = append(events, ev)
		handles = append(handles, h.insert(ev, dur, now, true))
	}

	// Cancel a member that was never the heap occupant (index 2, not 0).
	h.cancel(handles[2])
	assert.Equal(t, 1, h.Len(), "canceling a non-head member must not touch the heap")

	expired := h.popExpired(now.Add(dur))
	want := []*Event{events[0], events[1], events[3], events[4]}
	assert.Equal(t, want, expired, "expected the other 4 members, in order, with no duplicates or drops")
}
