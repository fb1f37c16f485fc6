package bufferevent

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-reactor/buffer"
	"github.com/joeycumines/go-reactor/reactor"
)

// Connected is reported on an EventCallback's mask when a socket-variant
// connect attempt completes successfully. It reuses reactor.Flag's bit
// space one position past Error so the same mask type carries both
// reactor-level and bufferevent-level conditions.
const Connected reactor.Flag = 1 << 10

// IOType selects a direction for Flush/trigger operations.
type IOType int

const (
	Reading IOType = iota
	Writing
)

// FlushMode selects how a filter propagates a flush request.
type FlushMode int

const (
	FlushNormal FlushMode = iota
	FlushNow
	FlushFinished
)

// TriggerOpts modifies a manual Trigger call.
type TriggerOpts struct {
	IgnoreWatermarks bool
	Defer            bool
}

// state is the connect-lifecycle state machine.
type state int

const (
	stateIdle state = iota
	stateConnecting
	stateOpen
	stateEOF
	stateError
)

// ReadCallback fires when input has crossed its low watermark.
type ReadCallback func(be *BufferEvent)

// WriteCallback fires when output has drained to its low watermark.
type WriteCallback func(be *BufferEvent)

// EventCallback fires on state transitions and errors; what carries the
// condition bits (EOF, Error, Connected) combined with Reading/Writing
// direction bits where applicable. Timeout is never reported: a
// direction timeout expiring only makes the driver retry that direction's
// I/O.
type EventCallback func(be *BufferEvent, what reactor.Flag)

// driver is the variant-specific half of a BufferEvent: what actually
// moves bytes for enable/disable and close. socket.go, filter.go, and
// pair.go each implement one.
type driver interface {
	enableRead(be *BufferEvent) error
	enableWrite(be *BufferEvent) error
	disableRead(be *BufferEvent) error
	disableWrite(be *BufferEvent) error
	close(be *BufferEvent) error
}

// BufferEvent is a buffered-stream endpoint: two chained byte buffers
// plus an I/O driver, watermark-gated callbacks, timeouts, and reference
// counting. The zero value is not usable; construct via NewSocket,
// FilterNew, or PairNew (in this package's sibling files).
type BufferEvent struct {
	mu sync.Mutex

	base   *reactor.Base
	driver driver

	Input, Output *buffer.Buffer

	enabled reactor.Flag // subset of reactor.Read|reactor.Write

	readLow, readHigh   int
	writeLow, writeHigh int

	readTimeout, writeTimeout time.Duration

	onRead  ReadCallback
	onWrite WriteCallback
	onEvent EventCallback

	state state

	closeOnFree     bool
	deferCallbacks  bool
	unlockCallbacks bool

	maxSingleRead  int
	maxSingleWrite int

	refs atomic.Int32

	underlying *BufferEvent // non-nil for the filter variant

	limiter *streamLimiter

	logger reactor.Logger
}

const (
	defaultMaxSingleReadWrite = 4096
)

func newCore(base *reactor.Base, d driver) *BufferEvent {
	be := &BufferEvent{
		base:           base,
		driver:         d,
		Input:          buffer.New(),
		Output:         buffer.New(),
		maxSingleRead:  defaultMaxSingleReadWrite,
		maxSingleWrite: defaultMaxSingleReadWrite,
		logger:         noopLogger{},
	}
	be.refs.Store(1)
	return be
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

// SetLogger installs a structured logger, mirroring reactor.WithLogger's
// injection-over-global pattern.
func (be *BufferEvent) SetLogger(l reactor.Logger) {
	be.mu.Lock()
	defer be.mu.Unlock()
	if l == nil {
		l = noopLogger{}
	}
	be.logger = l
}

// SetCallbacks installs the read, write, and event callbacks. Any may be
// nil to leave that callback unset.
func (be *BufferEvent) SetCallbacks(onRead ReadCallback, onWrite WriteCallback, onEvent EventCallback) {
	be.mu.Lock()
	defer be.mu.Unlock()
	be.onRead = onRead
	be.onWrite = onWrite
	be.onEvent = onEvent
}

// Callbacks returns the currently installed callbacks.
func (be *BufferEvent) Callbacks() (ReadCallback, WriteCallback, EventCallback) {
	be.mu.Lock()
	defer be.mu.Unlock()
	return be.onRead, be.onWrite, be.onEvent
}

// SetTimeouts sets the read and write direction timeouts; zero disables
// the corresponding timeout. An expiry does not disable the direction or
// fire the event callback; the socket driver retries the direction's I/O.
func (be *BufferEvent) SetTimeouts(read, write time.Duration) {
	be.mu.Lock()
	be.readTimeout = read
	be.writeTimeout = write
	be.mu.Unlock()
	be.rearmTimeouts()
}

// SetWatermark sets the (low, high) pair for the given direction. A
// high of 0 means unlimited.
func (be *BufferEvent) SetWatermark(dir IOType, low, high int) {
	be.mu.Lock()
	defer be.mu.Unlock()
	if dir == Reading {
		be.readLow, be.readHigh = low, high
	} else {
		be.writeLow, be.writeHigh = low, high
	}
}

// Watermark returns the (low, high) pair for the given direction.
func (be *BufferEvent) Watermark(dir IOType) (low, high int) {
	be.mu.Lock()
	defer be.mu.Unlock()
	if dir == Reading {
		return be.readLow, be.readHigh
	}
	return be.writeLow, be.writeHigh
}

// SetMaxSingleRead bounds how many bytes one readable-event callback
// will move from fd to Input.
func (be *BufferEvent) SetMaxSingleRead(n int) {
	be.mu.Lock()
	defer be.mu.Unlock()
	be.maxSingleRead = n
}

// SetMaxSingleWrite bounds how many bytes one writable-event callback
// will move from Output to fd.
func (be *BufferEvent) SetMaxSingleWrite(n int) {
	be.mu.Lock()
	defer be.mu.Unlock()
	be.maxSingleWrite = n
}

// SetCloseOnFree controls whether the final Decref closes the
// underlying fd (socket variant only).
func (be *BufferEvent) SetCloseOnFree(v bool) {
	be.mu.Lock()
	defer be.mu.Unlock()
	be.closeOnFree = v
}

// SetDeferCallbacks, when v is true, routes the buffer callbacks of both
// Input and Output through base's deferred queue instead of running them
// inline, and defers read/write/event callbacks the same way. Each
// deferred call keeps its own condition mask: masks are not accumulated
// across a loop iteration, and several deferred event callbacks may fire.
func (be *BufferEvent) SetDeferCallbacks(v bool) {
	be.mu.Lock()
	be.deferCallbacks = v
	be.mu.Unlock()
	if v {
		be.Input.DeferCallbacks(be.base)
		be.Output.DeferCallbacks(be.base)
	}
}

// SetUnlockCallbacks permits a callback to call back into this
// BufferEvent while the stream's own lock would otherwise still be
// held; only meaningful combined with SetDeferCallbacks.
func (be *BufferEvent) SetUnlockCallbacks(v bool) {
	be.mu.Lock()
	defer be.mu.Unlock()
	be.unlockCallbacks = v
}

// Enable arms the given directions: if Reading is requested, a read
// event (with the read timeout) is registered; if Writing is requested
// and Output is non-empty, a write event is registered lazily.
func (be *BufferEvent) Enable(mask reactor.Flag) error {
	be.mu.Lock()
	be.enabled |= mask & (reactor.Read | reactor.Write)
	wantRead := mask&reactor.Read != 0
	wantWrite := mask&reactor.Write != 0
	be.mu.Unlock()

	if wantRead {
		if err := be.driver.enableRead(be); err != nil {
			return err
		}
	}
	if wantWrite {
		if err := be.driver.enableWrite(be); err != nil {
			return err
		}
	}
	return nil
}

// Disable cancels interest (and any running timer) for the given
// directions.
func (be *BufferEvent) Disable(mask reactor.Flag) error {
	be.mu.Lock()
	be.enabled &^= mask & (reactor.Read | reactor.Write)
	wantRead := mask&reactor.Read != 0
	wantWrite := mask&reactor.Write != 0
	be.mu.Unlock()

	if wantRead {
		if err := be.driver.disableRead(be); err != nil {
			return err
		}
	}
	if wantWrite {
		if err := be.driver.disableWrite(be); err != nil {
			return err
		}
	}
	return nil
}

// Enabled returns the currently armed direction mask.
func (be *BufferEvent) Enabled() reactor.Flag {
	be.mu.Lock()
	defer be.mu.Unlock()
	return be.enabled
}

// Write appends data to Output and, if output was previously empty and
// writing is enabled, arms the write direction.
func (be *BufferEvent) Write(data []byte) error {
	if err := be.Output.Append(data); err != nil {
		return err
	}
	be.mu.Lock()
	wantWrite := be.enabled&reactor.Write != 0
	be.mu.Unlock()
	if wantWrite {
		return be.driver.enableWrite(be)
	}
	return nil
}

// WriteBuffer moves all of src into Output without copying, then arms
// writing as Write does.
func (be *BufferEvent) WriteBuffer(src *buffer.Buffer) error {
	if err := be.Output.AppendBuffer(src); err != nil {
		return err
	}
	be.mu.Lock()
	wantWrite := be.enabled&reactor.Write != 0
	be.mu.Unlock()
	if wantWrite {
		return be.driver.enableWrite(be)
	}
	return nil
}

// Read drains up to len(dst) bytes from Input into dst.
func (be *BufferEvent) Read(dst []byte) (int, error) {
	return be.Input.Remove(dst)
}

// ReadBuffer moves all of Input into dst without copying.
func (be *BufferEvent) ReadBuffer(dst *buffer.Buffer) (int, error) {
	return dst.Move(be.Input, -1)
}

// GetInput returns the input chain for direct inspection (peek, search).
func (be *BufferEvent) GetInput() *buffer.Buffer { return be.Input }

// GetOutput returns the output chain for direct inspection.
func (be *BufferEvent) GetOutput() *buffer.Buffer { return be.Output }

// GetUnderlying returns the wrapped stream for a filter variant, or nil.
func (be *BufferEvent) GetUnderlying() *BufferEvent {
	be.mu.Lock()
	defer be.mu.Unlock()
	return be.underlying
}

// Incref increments the reference count.
func (be *BufferEvent) Incref() { be.refs.Add(1) }

// Decref decrements the reference count; on reaching zero it closes the
// driver (closing the fd if CloseOnFree is set) and releases resources.
// Cleanup cannot reenter callbacks.
func (be *BufferEvent) Decref() error {
	if be.refs.Add(-1) > 0 {
		return nil
	}
	return be.driver.close(be)
}

// Free is an alias for Decref.
func (be *BufferEvent) Free() error { return be.Decref() }

// fireEvent invokes the event callback, honoring SetDeferCallbacks.
func (be *BufferEvent) fireEvent(what reactor.Flag) {
	be.mu.Lock()
	cb := be.onEvent
	deferIt := be.deferCallbacks
	be.mu.Unlock()
	if cb == nil {
		return
	}
	if deferIt {
		be.base.DeferCallback(func() { cb(be, what) })
		return
	}
	cb(be, what)
}

func (be *BufferEvent) fireRead() {
	be.mu.Lock()
	cb := be.onRead
	deferIt := be.deferCallbacks
	be.mu.Unlock()
	if cb == nil {
		return
	}
	if deferIt {
		be.base.DeferCallback(func() { cb(be) })
		return
	}
	cb(be)
}

func (be *BufferEvent) fireWrite() {
	be.mu.Lock()
	cb := be.onWrite
	deferIt := be.deferCallbacks
	be.mu.Unlock()
	if cb == nil {
		return
	}
	if deferIt {
		be.base.DeferCallback(func() { cb(be) })
		return
	}
	cb(be)
}

// Trigger synthesizes read/write callbacks without advancing I/O.
func (be *BufferEvent) Trigger(dir IOType, opts TriggerOpts) {
	run := func() {
		if dir == Reading {
			be.fireRead()
		} else {
			be.fireWrite()
		}
	}
	if opts.Defer {
		be.base.DeferCallback(run)
		return
	}
	run()
}

// Lock acquires the stream's own mutex, for callers that need to
// perform several operations atomically.
func (be *BufferEvent) Lock() { be.mu.Lock() }

// Unlock releases the stream's own mutex.
func (be *BufferEvent) Unlock() { be.mu.Unlock() }

func (be *BufferEvent) transitionLocked(s state) { be.state = s }
