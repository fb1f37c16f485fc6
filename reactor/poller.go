package reactor

import "time"

// pollMask is the backend-observed readiness for a single fd.
type pollMask uint8

const (
	pollRead pollMask = 1 << iota
	pollWrite
	pollError
	pollHangup
)

// readyFD is one element of the set returned by Poller.Wait.
type readyFD struct {
	fd   int
	mask pollMask
}

// Capabilities describes what a Poller backend can do.
type Capabilities struct {
	SupportsEdgeTriggered     bool
	SupportsO1Readiness       bool
	SupportsFDsNotJustSockets bool
	SupportsEarlyClose        bool
}

// Poller is the thin capability abstraction over an OS readiness
// mechanism (epoll, kqueue, or a portable busy-poll fallback).
type Poller interface {
	// Add registers fd for the given mask. edgeTriggered requests
	// edge-triggered semantics if Capabilities().SupportsEdgeTriggered.
	Add(fd int, mask pollMask, edgeTriggered bool) error
	// Modify changes the interest mask for an already-registered fd.
	Modify(fd int, mask pollMask) error
	// Del unregisters fd.
	Del(fd int) error
	// Wait blocks until readiness or deadline, returning the ready set.
	// A zero deadline means block forever; Wait must be interruptible by
	// a self-pipe/eventfd write performed by the owning Base.
	Wait(deadline time.Time) ([]readyFD, error)
	// Capabilities reports what this backend supports.
	Capabilities() Capabilities
	// Close releases backend resources.
	Close() error
}

// name returned by each backend for EnvDisableBackends / debugging.
type namedPoller interface {
	Poller
	name() string
}
