package reactor

import (
	"sync/atomic"
	"time"
)

// Flag describes the condition(s) an Event watches for, plus modifiers.
type Flag uint16

const (
	// Read fires when the fd becomes readable.
	Read Flag = 1 << iota
	// Write fires when the fd becomes writable.
	Write
	// Timeout fires when the event's deadline elapses.
	Timeout
	// Signal fires on delivery of the event's signal number.
	Signal
	// EdgeTriggered requests edge-triggered semantics from the poller, if
	// the backend's Capabilities().SupportsEdgeTriggered is true.
	EdgeTriggered
	// Persistent events remain pending after firing; non-persistent events
	// become non-pending as soon as they are activated.
	Persistent
	// CloseDetect asks the poller to report peer-close even when input has
	// not been drained, if the backend supports it.
	CloseDetect
	// FinalizeSafe marks a callback as safe to invoke during finalization
	// even though the event is otherwise being torn down.
	FinalizeSafe
	// EOF is reported on the callback's observed-mask alongside Read when
	// the peer half-closes the connection.
	EOF
	// Error is reported on the callback's observed-mask when an
	// unrecoverable I/O error occurred.
	Error
)

// kind identifies what an Event is watching.
type kind uint8

const (
	kindFD kind = iota
	kindTimer
	kindSignal
	kindUser
)

// runState is the per-event lifecycle state, stored atomically so that
// Pending/Active can be queried from any goroutine without a lock on a
// thread-safe Base. Mirrors the CAS-state idiom used for the loop-wide
// state machine, applied per event instead of per loop.
type runState uint32

const (
	stateUninitialized runState = iota
	stateIdle                   // initialized, not registered
	statePending                // registered with backend or timer heap
	stateActive                 // queued in a priority run queue
	stateFinalizing
)

// Callback is invoked when an Event fires. observed carries the subset of
// the event's flags that were actually satisfied (e.g. Read|EOF).
type Callback func(ev *Event, observed Flag)

// FinalizeCallback runs after any in-flight callback for the event
// completes and before the event's memory would otherwise be reclaimed.
type FinalizeCallback func(ev *Event)

// Event is a registered interest record: {fd|signal|timer|user}, flags, a
// callback, a priority, and lifecycle state. An Event belongs to exactly
// one Base for its lifetime.
type Event struct {
	base *Base

	kind kind
	fd   int
	sig  int

	flags    Flag
	priority int
	timeout  time.Duration // zero means no timeout

	cb  Callback
	arg any

	state      atomic.Uint32 // runState
	observed   Flag          // set when queued into an active queue
	seq        uint64        // activation sequence, for FIFO ordering
	nextDead   time.Time     // next absolute deadline, for persistent timeouts
	timerToken *timerHandle  // non-nil while registered in the timer heap
	commonKey  *commonTimeoutKey

	finalizeCB FinalizeCallback
	finalizing atomic.Bool

	// next/prev link this event into base.byFD's per-fd list and into a
	// priority run queue; both lists are only ever touched while holding
	// base.mu (or, for a no_lock base, from the loop goroutine only).
	fdNext, fdPrev     *Event
	queueNext, queuePrev *Event
}

// NewEvent creates an Event watching fd for the given flags, to be
// dispatched at base.DefaultPriority() unless SetPriority changes it.
// The event is not registered with the base until Add is called.
func NewEvent(base *Base, fd int, flags Flag, cb Callback, arg any) *Event {
	ev := &Event{
		base:  base,
		kind:  kindFD,
		fd:    fd,
		flags: flags,
		cb:    cb,
		arg:   arg,
	}
	ev.priority = base.DefaultPriority()
	ev.state.Store(uint32(stateIdle))
	if base.debugMode {
		registerDebugTag(ev)
	}
	return ev
}

// NewTimer creates a pure-timer Event: it never watches an fd, only fires
// when its deadline (supplied to Add) elapses.
func NewTimer(base *Base, cb Callback, arg any) *Event {
	ev := &Event{
		base:  base,
		kind:  kindTimer,
		fd:    -1,
		flags: Timeout,
		cb:    cb,
		arg:   arg,
	}
	ev.priority = base.DefaultPriority()
	ev.state.Store(uint32(stateIdle))
	if base.debugMode {
		registerDebugTag(ev)
	}
	return ev
}

// NewSignal creates an Event that fires on delivery of the given signal
// number to the process, via the base's signal bridge (see signal.go).
func NewSignal(base *Base, signum int, cb Callback, arg any) *Event {
	ev := &Event{
		base:  base,
		kind:  kindSignal,
		fd:    -1,
		sig:   signum,
		flags: Signal | Persistent,
		cb:    cb,
		arg:   arg,
	}
	ev.priority = base.DefaultPriority()
	ev.state.Store(uint32(stateIdle))
	if base.debugMode {
		registerDebugTag(ev)
	}
	return ev
}

// NewUser creates a user-activation Event: it never watches an fd or
// timer, and fires only when Active is called on it directly.
func NewUser(base *Base, cb Callback, arg any) *Event {
	ev := &Event{
		base:  base,
		kind:  kindUser,
		fd:    -1,
		flags: 0,
		cb:    cb,
		arg:   arg,
	}
	ev.priority = base.DefaultPriority()
	ev.state.Store(uint32(stateIdle))
	if base.debugMode {
		registerDebugTag(ev)
	}
	return ev
}

// SetPriority assigns the priority level this event runs at once active.
// Must not be called while the event is pending.
func (ev *Event) SetPriority(p int) error {
	if ev.Pending() {
		return newAssertion("SetPriority", ErrEventPending)
	}
	ev.priority = p
	return nil
}

// Priority returns the event's configured priority.
func (ev *Event) Priority() int { return ev.priority }

// FD returns the watched file descriptor, or -1 for timer/signal/user
// events.
func (ev *Event) FD() int { return ev.fd }

// Flags returns the event's configured flag set.
func (ev *Event) Flags() Flag { return ev.flags }

// Base returns the owning Base.
func (ev *Event) Base() *Base { return ev.base }

// Arg returns the opaque argument supplied at construction.
func (ev *Event) Arg() any { return ev.arg }

// Pending reports whether the event is currently registered (with the
// backend poller or the timer heap) or active.
func (ev *Event) Pending() bool {
	s := runState(ev.state.Load())
	return s == statePending || s == stateActive
}

// Active reports whether the event is currently queued to run this
// iteration.
func (ev *Event) Active() bool {
	return runState(ev.state.Load()) == stateActive
}

// Add registers the event with its base. If timeout is non-zero it
// overrides the event's configured timeout for this registration.
func (ev *Event) Add(timeout time.Duration) error {
	return ev.base.add(ev, timeout)
}

// Del removes the event from its base's pending sets. It does not wait
// for an in-flight callback for this event on another thread to
// complete; it behaves the same as DelNoBlock.
func (ev *Event) Del() error {
	return ev.base.del(ev, true)
}

// DelNoBlock removes the event without waiting for an in-flight callback
// on another thread to finish.
func (ev *Event) DelNoBlock() error {
	return ev.base.del(ev, false)
}

// Finalize marks the event for teardown: the finalize callback runs after
// any in-flight callback for ev completes, and no further Add/Active is
// permitted afterwards.
func (ev *Event) Finalize(cb FinalizeCallback) error {
	if ev.finalizing.Swap(true) {
		return newAssertion("Finalize", ErrEventFinalizing)
	}
	ev.finalizeCB = cb
	return ev.base.finalize(ev)
}
