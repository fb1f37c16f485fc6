// Package reactor implements an event-driven I/O reactor: a single poller
// backend (epoll, kqueue, or a portable fallback), a timer heap, signal
// delivery, and a priority-ordered dispatch loop, in the shape of
// libevent's event_base/event pair.
//
// A Base owns the poller, the timer heap, one active queue per priority
// level, and a deferred-callback queue. Events register interest in fd
// readiness, a timer deadline, a signal, or a user activation, and are
// invoked from Base.Dispatch in priority order.
package reactor
