package reactor

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// RunFlag modifies a single call to Dispatch.
type RunFlag uint8

const (
	// Once runs at most one pass through steps 3-7 before returning.
	Once RunFlag = 1 << iota
	// NonBlock never calls the poller's Wait with a non-zero deadline;
	// an iteration with no immediately-ready events returns right away.
	NonBlock
)

// Base is the reactor instance: poller + timer heap + priority active
// queues + deferred queue + fd/signal maps + notify channel + loop
// control flags.
type Base struct {
	cfg *config

	mu     sync.Mutex
	noLock bool

	poller    Poller
	caps      Capabilities
	methodName string

	timers *timerHeap
	queues []runQueue // index 0 = highest priority
	defq   *deferredQueue

	byFD         map[int]*fdList
	fdRegistered map[int]struct{}
	bySignal     map[int][]*Event

	wake *selfPipe

	exitRequested     atomic.Bool
	breakRequested    atomic.Bool
	continueRequested atomic.Bool
	running           atomic.Bool

	currentEvent *Event

	cachedNow   time.Time
	noCacheTime bool

	debugMode bool
	closed    bool

	logger Logger
}

// New creates a Base with default configuration.
func New() (*Base, error) {
	return NewWithConfig()
}

// NewWithConfig creates a Base, applying opts over the defaults. Mirrors
// libevent's event_base_new / event_base_new_with_config split, and
// eventloop.New's functional-options resolution.
func NewWithConfig(opts ...Option) (*Base, error) {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, err
	}

	b := &Base{
		cfg:         cfg,
		noLock:      cfg.noLock,
		timers:      newTimerHeap(),
		defq:        newDeferredQueue(),
		byFD:         make(map[int]*fdList),
		fdRegistered: make(map[int]struct{}),
		bySignal:     make(map[int][]*Event),
		noCacheTime: cfg.noCacheTime,
		debugMode:   debugModeEnabled(),
		logger:      cfg.logger,
	}
	b.queues = make([]runQueue, cfg.priorityCount)

	poller, err := selectPoller(cfg)
	if err != nil {
		return nil, err
	}
	b.poller = poller
	b.caps = poller.Capabilities()
	if np, ok := poller.(namedPoller); ok {
		b.methodName = np.name()
	}

	wake, err := newSelfPipe()
	if err != nil {
		_ = poller.Close()
		return nil, err
	}
	b.wake = wake
	if fd := wake.readFD(); fd >= 0 {
		if err := b.poller.Add(fd, pollRead, false); err != nil {
			_ = poller.Close()
			return nil, fmt.Errorf("reactor: register self-pipe: %w", err)
		}
	}

	b.cachedNow = time.Now()
	return b, nil
}

func selectPoller(cfg *config) (Poller, error) {
	if cfg.disabledBackends[platformBackendName] {
		return nil, fmt.Errorf("%w: %s disabled via environment", ErrNoBackend, platformBackendName)
	}
	return newPlatformPoller(cfg)
}

// PriorityCount returns the number of priority levels configured.
func (b *Base) PriorityCount() int { return len(b.queues) }

// DefaultPriority is the middle priority level, assigned to events that
// never call SetPriority.
func (b *Base) DefaultPriority() int { return len(b.queues) / 2 }

// GetMethodName returns the selected poller backend's name ("epoll",
// "kqueue", "generic").
func (b *Base) GetMethodName() string { return b.methodName }

// GetFeatures returns the selected backend's capability set.
func (b *Base) GetFeatures() Capabilities { return b.caps }

// GettimeMonotonic returns the current monotonic time, bypassing any
// cached value.
func (b *Base) GettimeMonotonic() time.Time { return time.Now() }

// UpdateCacheTime refreshes the cached "now" timestamp used when
// noCacheTime is false.
func (b *Base) UpdateCacheTime() {
	b.lock()
	b.cachedNow = time.Now()
	b.unlock()
}

func (b *Base) now() time.Time {
	if b.noCacheTime {
		return time.Now()
	}
	return b.cachedNow
}

func (b *Base) lock() {
	if !b.noLock {
		b.mu.Lock()
	}
}

func (b *Base) unlock() {
	if !b.noLock {
		b.mu.Unlock()
	}
}

// Free releases all resources owned by the Base: the self-pipe and the
// poller. All events must already be freed or Del'd; events still
// registered are not Del'd by Free and keep their pending state.
func (b *Base) Free() error {
	b.lock()
	defer b.unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	_ = b.wake.close()
	return b.poller.Close()
}

// Reinit re-creates the poller backend after a process fork. Existing
// Events are re-registered against the new backend.
func (b *Base) Reinit() error {
	b.lock()
	defer b.unlock()

	_ = b.poller.Close()
	poller, err := selectPoller(b.cfg)
	if err != nil {
		return err
	}
	b.poller = poller
	b.caps = poller.Capabilities()

	for fd, list := range b.byFD {
		var mask pollMask
		edge := false
		list.forEach(func(ev *Event) {
			if ev.flags&Read != 0 {
				mask |= pollRead
			}
			if ev.flags&Write != 0 {
				mask |= pollWrite
			}
			if ev.flags&EdgeTriggered != 0 {
				edge = true
			}
		})
		if err := b.poller.Add(fd, mask, edge); err != nil {
			return err
		}
	}
	return nil
}

// add registers ev. timeout overrides the event's configured timeout
// for this registration when non-zero.
func (b *Base) add(ev *Event, timeout time.Duration) error {
	if ev.finalizing.Load() {
		return newAssertion("Add", ErrEventFinalizing)
	}
	if ev.Pending() {
		if b.debugMode {
			FatalHook(newAssertion("Add", ErrEventPending))
		}
		return newAssertion("Add", ErrEventPending)
	}

	b.lock()
	defer b.unlock()

	if timeout == 0 {
		timeout = ev.timeout
	}

	switch ev.kind {
	case kindFD:
		list, ok := b.byFD[ev.fd]
		if !ok {
			list = &fdList{}
			b.byFD[ev.fd] = list
		}
		list.push(ev)
		if err := b.syncFDLocked(ev.fd, list); err != nil {
			list.remove(ev)
			return err
		}
		if timeout > 0 {
			ev.timerToken = b.timers.insert(ev, timeout, b.now(), !b.cfg.preciseTimer)
			ev.nextDead = b.now().Add(timeout)
		}
	case kindTimer:
		if timeout <= 0 {
			return fmt.Errorf("reactor: timer event requires a positive timeout")
		}
		ev.timerToken = b.timers.insert(ev, timeout, b.now(), !b.cfg.preciseTimer)
		ev.nextDead = b.now().Add(timeout)
	case kindSignal:
		b.bySignal[ev.sig] = append(b.bySignal[ev.sig], ev)
		registerSignalBase(b, ev.sig)
	case kindUser:
		// user events have nothing to register; Pending() becomes true
		// only once queued via Active.
	}

	ev.state.Store(uint32(statePending))
	return nil
}

// syncFDLocked (re)computes the combined interest mask for fd across all
// events registered on it and pushes that to the poller. Must be called
// with b.mu held.
func (b *Base) syncFDLocked(fd int, list *fdList) error {
	if list.empty() {
		return b.poller.Del(fd)
	}
	var mask pollMask
	edge := false
	list.forEach(func(e *Event) {
		if e.flags&Read != 0 {
			mask |= pollRead
		}
		if e.flags&Write != 0 {
			mask |= pollWrite
		}
		if e.flags&EdgeTriggered != 0 {
			edge = true
		}
	})
	if _, wasRegistered := b.fdRegistered[fd]; wasRegistered {
		return b.poller.Modify(fd, mask)
	}
	b.fdRegistered[fd] = struct{}{}
	return b.poller.Add(fd, mask, edge)
}

// del removes ev from pending sets. block is accepted for the Del and
// DelNoBlock entry points but has no effect: neither waits for an
// in-flight callback on another thread to finish.
func (b *Base) del(ev *Event, block bool) error {
	if !ev.Pending() {
		return newAssertion("Del", ErrEventNotPending)
	}

	b.lock()
	defer b.unlock()

	switch ev.kind {
	case kindFD:
		if list, ok := b.byFD[ev.fd]; ok {
			list.remove(ev)
			if list.empty() {
				delete(b.byFD, ev.fd)
				delete(b.fdRegistered, ev.fd)
				_ = b.poller.Del(ev.fd)
			} else {
				_ = b.syncFDLocked(ev.fd, list)
			}
		}
		if ev.timerToken != nil {
			b.timers.cancel(ev.timerToken)
			ev.timerToken = nil
		}
	case kindTimer:
		if ev.timerToken != nil {
			b.timers.cancel(ev.timerToken)
			ev.timerToken = nil
		}
	case kindSignal:
		evs := b.bySignal[ev.sig]
		for i, e := range evs {
			if e == ev {
				b.bySignal[ev.sig] = append(evs[:i], evs[i+1:]...)
				break
			}
		}
		unregisterSignalBase(b, ev.sig)
	case kindUser:
	}

	if ev.Active() {
		q := &b.queues[ev.priority]
		q.remove(ev)
	}
	ev.state.Store(uint32(stateIdle))
	_ = block
	return nil
}

// removeTimer cancels only the timeout portion of ev without otherwise
// un-registering it.
func (b *Base) removeTimer(ev *Event) {
	b.lock()
	defer b.unlock()
	if ev.timerToken != nil {
		b.timers.cancel(ev.timerToken)
		ev.timerToken = nil
	}
}

// activate queues ev into its priority's run queue with the given
// observed mask, deferring to the next iteration if ev is currently the
// one running its own callback: self-activation always runs next
// iteration, never the same one, bounding recursion depth to the loop's
// iteration count.
func (b *Base) activate(ev *Event, observed Flag) {
	b.lock()
	defer b.unlock()
	b.activateLocked(ev, observed)
}

func (b *Base) activateLocked(ev *Event, observed Flag) {
	if ev.Active() {
		ev.observed |= observed
		return
	}
	ev.observed = observed
	ev.state.Store(uint32(stateActive))
	b.queues[ev.priority].pushBack(ev)
}

// finalize schedules ev's finalize callback to run once no callback for
// ev is in flight, after which ev may no longer be Add'd or Active'd.
func (b *Base) finalize(ev *Event) error {
	b.lock()
	inFlight := b.currentEvent == ev
	b.unlock()

	run := func() {
		if ev.finalizeCB != nil {
			ev.finalizeCB(ev)
		}
	}
	if inFlight {
		// runCallback runs finalizeCB once the in-flight callback returns.
		return nil
	}
	run()
	return nil
}

// deliverSignal is invoked by the signal bridge (signal.go) when this
// base is the round-robin recipient of signum.
func (b *Base) deliverSignal(signum int) {
	b.lock()
	evs := append([]*Event(nil), b.bySignal[signum]...)
	for _, ev := range evs {
		b.activateLocked(ev, Signal)
	}
	b.unlock()
	b.wake.notify()
}

// ActivateNow synthesizes an activation for a user event without waiting
// for any condition. It does nothing for an event that is finalizing.
func (ev *Event) ActivateNow(observed Flag) {
	if ev.finalizing.Load() {
		return
	}
	ev.base.activate(ev, observed)
}

// ActiveByFD reports whether any event registered on fd is currently
// active.
func (b *Base) ActiveByFD(fd int) bool {
	b.lock()
	defer b.unlock()
	list, ok := b.byFD[fd]
	if !ok {
		return false
	}
	active := false
	list.forEach(func(ev *Event) {
		if ev.Active() {
			active = true
		}
	})
	return active
}

// ActiveBySignal reports whether any event registered for signum is
// currently active.
func (b *Base) ActiveBySignal(signum int) bool {
	b.lock()
	defer b.unlock()
	for _, ev := range b.bySignal[signum] {
		if ev.Active() {
			return true
		}
	}
	return false
}

// EventVisitor is called once per registered event by ForeachEvent.
type EventVisitor func(ev *Event) error

// ForeachEvent visits every currently-registered event. The base's lock
// is held for the duration; visitors must not call back into the base.
func (b *Base) ForeachEvent(visitor EventVisitor) error {
	b.lock()
	defer b.unlock()
	for _, list := range b.byFD {
		var err error
		list.forEach(func(ev *Event) {
			if err == nil {
				err = visitor(ev)
			}
		})
		if err != nil {
			return err
		}
	}
	for _, evs := range b.bySignal {
		for _, ev := range evs {
			if err := visitor(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// DumpEvents writes a human-readable listing of every registered event,
// for debugging (mirrors libevent's event_base_dump_events).
func (b *Base) DumpEvents(w io.Writer) error {
	return b.ForeachEvent(func(ev *Event) error {
		_, err := fmt.Fprintf(w, "fd=%d sig=%d flags=%#x priority=%d pending=%v active=%v\n",
			ev.fd, ev.sig, ev.flags, ev.priority, ev.Pending(), ev.Active())
		return err
	})
}

// LoopExit schedules the loop to exit after delay (zero means as soon as
// the current iteration's callbacks finish).
func (b *Base) LoopExit(delay time.Duration) error {
	if delay <= 0 {
		b.exitRequested.Store(true)
		b.wake.notify()
		return nil
	}
	t := NewTimer(b, func(*Event, Flag) {
		b.exitRequested.Store(true)
	}, nil)
	return t.Add(delay)
}

// LoopBreak aborts the dispatch loop immediately, without finishing the
// current iteration's remaining active-queue entries.
func (b *Base) LoopBreak() {
	b.breakRequested.Store(true)
	b.wake.notify()
}

// LoopContinue requests that, after the in-flight callback returns, the
// loop re-polls immediately rather than continuing to drain active
// queues from the same iteration.
func (b *Base) LoopContinue() {
	b.continueRequested.Store(true)
}

// GotExit reports whether LoopExit has fired since the last Dispatch
// entry.
func (b *Base) GotExit() bool { return b.exitRequested.Load() }

// GotBreak reports whether LoopBreak has fired since the last Dispatch
// entry.
func (b *Base) GotBreak() bool { return b.breakRequested.Load() }

// DeferCallback enqueues fn to run at the end of the current dispatch
// iteration (or the start of the next one, if called between iterations)
// rather than inline. This is the hook buffer.Buffer.DeferCallbacks uses
// to route mutation callbacks through the loop instead of running them on
// whatever goroutine performed the mutation.
func (b *Base) DeferCallback(fn func()) {
	b.lock()
	b.defq.push(fn)
	b.unlock()
	b.wake.notify()
}

var errNoWork = errors.New("reactor: no registered events or timers")

// Dispatch runs the event loop; flags modify behavior per RunFlag's docs.
func (b *Base) Dispatch(flags RunFlag) error {
	if b.running.Swap(true) {
		return ErrReentrantRun
	}
	defer b.running.Store(false)

	b.exitRequested.Store(false)
	b.breakRequested.Store(false)

	for {
		if b.breakRequested.Load() {
			return nil
		}

		b.lock()
		idle := !b.anyActiveLocked()
		b.unlock()
		if idle && b.cfg.exitOnEmpty && b.empty() {
			return nil
		}

		n, err := b.runIteration(flags)
		if err != nil {
			return err
		}

		if b.exitRequested.Load() {
			return nil
		}
		if n == 0 && b.cfg.exitOnEmpty && b.empty() {
			return nil
		}
		if flags&Once != 0 || flags&NonBlock != 0 {
			return nil
		}
	}
}

func (b *Base) anyActiveLocked() bool {
	for i := range b.queues {
		if !b.queues[i].empty() {
			return true
		}
	}
	return b.defq.len() > 0
}

func (b *Base) empty() bool {
	b.lock()
	defer b.unlock()
	_, anyTimer := b.timers.peekMin()
	return len(b.byFD) == 0 && len(b.bySignal) == 0 && !anyTimer
}

// runIteration executes one wait/dispatch pass: poll for readiness,
// expire timers, activate the events that crossed a threshold, then
// drain the active and deferred queues, returning the number of
// callbacks (event + deferred) invoked.
func (b *Base) runIteration(flags RunFlag) (int, error) {
	b.lock()
	deadline, haveTimer := b.timers.peekMin()
	hasActive := b.anyActiveLocked()
	b.unlock()

	waitDeadline := time.Time{}
	switch {
	case flags&NonBlock != 0, hasActive:
		// Already-active events (e.g. from a user Active() call made
		// before Dispatch) must not be starved by an unbounded Wait.
		waitDeadline = b.now()
	case haveTimer:
		waitDeadline = deadline
	}

	ready, err := b.poller.Wait(waitDeadline)
	if err != nil {
		b.logger.Errorf("reactor: poller wait: %v", err)
		return 0, err
	}

	if !b.noCacheTime {
		b.lock()
		b.cachedNow = time.Now()
		b.unlock()
	}

	b.lock()
	for _, r := range ready {
		if r.fd == b.wake.readFD() {
			b.wake.drain()
			continue
		}
		list, ok := b.byFD[r.fd]
		if !ok {
			continue
		}
		list.forEach(func(ev *Event) {
			var m Flag
			if r.mask&pollRead != 0 && ev.flags&Read != 0 {
				m |= Read
			}
			if r.mask&pollWrite != 0 && ev.flags&Write != 0 {
				m |= Write
			}
			if r.mask&pollHangup != 0 {
				m |= EOF
			}
			if r.mask&pollError != 0 {
				m |= Error
			}
			if m != 0 {
				b.activateLocked(ev, m)
			}
		})
	}

	expired := b.timers.popExpired(b.now())
	for _, ev := range expired {
		ev.timerToken = nil
		b.activateLocked(ev, Timeout)
	}
	b.unlock()

	ran := b.drainQueues()
	ran += b.defq.drain(0)
	return ran, nil
}

// drainQueues runs active-queue callbacks in strict priority order: no
// lower-priority event runs while any higher-priority event is active.
func (b *Base) drainQueues() int {
	ran := 0
	for {
		b.lock()
		var ev *Event
		for i := range b.queues {
			if ev = b.queues[i].popFront(); ev != nil {
				break
			}
		}
		b.unlock()
		if ev == nil {
			return ran
		}

		b.runCallback(ev)
		ran++

		if b.breakRequested.Load() {
			return ran
		}
		if b.continueRequested.Load() {
			b.continueRequested.Store(false)
			return ran
		}
	}
}

func (b *Base) runCallback(ev *Event) {
	b.lock()
	b.currentEvent = ev
	observed := ev.observed
	persistent := ev.flags&Persistent != 0
	b.unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Errorf("reactor: callback panic: %v", r)
			}
		}()
		if ev.cb != nil {
			ev.cb(ev, observed)
		}
	}()

	b.lock()
	b.currentEvent = nil
	if persistent {
		ev.state.Store(uint32(statePending))
		if ev.timeout > 0 {
			ev.timerToken = b.timers.insert(ev, ev.timeout, b.now(), !b.cfg.preciseTimer)
			ev.nextDead = b.now().Add(ev.timeout)
		}
	} else {
		ev.state.Store(uint32(stateIdle))
		if ev.kind == kindFD {
			if list, ok := b.byFD[ev.fd]; ok {
				list.remove(ev)
				if list.empty() {
					delete(b.byFD, ev.fd)
					delete(b.fdRegistered, ev.fd)
					_ = b.poller.Del(ev.fd)
				} else {
					_ = b.syncFDLocked(ev.fd, list)
				}
			}
		}
	}
	finalizing := ev.finalizing.Load()
	b.unlock()

	if finalizing && ev.finalizeCB != nil {
		ev.finalizeCB(ev)
	}
}
