package bufferevent

import (
	"errors"

	"github.com/joeycumines/go-reactor/buffer"
	"github.com/joeycumines/go-reactor/reactor"
)

// FilterResult is a filter function's verdict.
type FilterResult int

const (
	FilterOK FilterResult = iota
	FilterNeedMore
	FilterError
)

// FilterFunc transforms bytes from src into dst, writing at most
// dstLimit bytes (dstLimit <= 0 means unlimited), honoring mode
// (FlushNormal/FlushNow/FlushFinished). Implementations should Drain src
// only for the bytes they actually consumed.
type FilterFunc func(src, dst *buffer.Buffer, dstLimit int, mode FlushMode) (FilterResult, error)

// IdentityFilter copies all available bytes from src to dst unchanged,
// useful as a default/no-op leg of a filter pair.
func IdentityFilter(src, dst *buffer.Buffer, dstLimit int, mode FlushMode) (FilterResult, error) {
	n := src.Length()
	if dstLimit > 0 && n > dstLimit {
		n = dstLimit
	}
	if n == 0 {
		return FilterOK, nil
	}
	if _, err := dst.Move(src, n); err != nil {
		return FilterError, err
	}
	return FilterOK, nil
}

// filterDriver wraps an underlying BufferEvent, running an input filter
// on its readable bytes and an output filter on this stream's writes.
// It is implemented via callbacks registered on the underlying stream
// rather than a new event type.
type filterDriver struct {
	be         *BufferEvent
	underlying *BufferEvent

	inputFilter  FilterFunc
	outputFilter FilterFunc
}

// FilterNew wraps underlying with an input and output filter. Either
// filter may be nil, in which case IdentityFilter is used for that
// direction.
func FilterNew(underlying *BufferEvent, inputFilter, outputFilter FilterFunc) *BufferEvent {
	if inputFilter == nil {
		inputFilter = IdentityFilter
	}
	if outputFilter == nil {
		outputFilter = IdentityFilter
	}
	d := &filterDriver{underlying: underlying, inputFilter: inputFilter, outputFilter: outputFilter}
	be := newCore(underlying.base, d)
	be.underlying = underlying
	d.be = be

	underlying.SetCallbacks(d.onUnderlyingReadable, d.onUnderlyingWritable, d.onUnderlyingEvent)
	return be
}

func (d *filterDriver) enableRead(be *BufferEvent) error {
	// Pull whatever the underlying stream already buffered before this
	// Enable call, then arm the underlying stream's own read interest.
	d.runInputFilter(FlushNormal)
	return d.underlying.Enable(reactor.Read)
}

func (d *filterDriver) disableRead(be *BufferEvent) error {
	return d.underlying.Disable(reactor.Read)
}

func (d *filterDriver) enableWrite(be *BufferEvent) error {
	d.runOutputFilter(FlushNormal)
	return nil
}

func (d *filterDriver) disableWrite(be *BufferEvent) error {
	return nil
}

func (d *filterDriver) close(be *BufferEvent) error {
	return d.underlying.Decref()
}

// onUnderlyingReadable fires whenever the wrapped stream's input has
// crossed its own low watermark; the input filter consumes from there
// into our Input. The read high watermark is not consulted: each pass
// runs with no destination limit and reading is never suspended.
func (d *filterDriver) onUnderlyingReadable(_ *BufferEvent) {
	d.runInputFilter(FlushNormal)
}

func (d *filterDriver) runInputFilter(mode FlushMode) {
	be := d.be
	be.mu.Lock()
	low := be.readLow
	be.mu.Unlock()

	// The high watermark is a soft bound for the filter variant: pass 0
	// (unlimited) as dstLimit rather than suspending the underlying read.
	_, err := d.inputFilter(d.underlying.Input, be.Input, 0, mode)
	if err != nil {
		be.transitionAndFire(stateError, reactor.Error|reactor.Read)
		return
	}

	if be.Input.Length() >= low {
		be.fireRead()
	}
}

// onUnderlyingWritable fires after the wrapped stream has drained some of
// its output; nothing to do on this side beyond the wrapper's own
// WriteCallback already having run when Write was called.
func (d *filterDriver) onUnderlyingWritable(_ *BufferEvent) {}

func (d *filterDriver) onUnderlyingEvent(_ *BufferEvent, what reactor.Flag) {
	be := d.be
	switch {
	case what&reactor.EOF != 0:
		// Drain any final bytes the underlying stream still holds before
		// surfacing EOF: flush/finish modes propagate end-to-end.
		d.runInputFilter(FlushFinished)
		be.transitionAndFire(stateEOF, reactor.EOF|reactor.Read)
	case what&reactor.Error != 0:
		be.transitionAndFire(stateError, what)
	default:
		be.fireEvent(what)
	}
}

// runOutputFilter pushes bytes appended to be.Output through the output
// filter into the underlying stream's Output, then enables the
// underlying stream for writing.
func (d *filterDriver) runOutputFilter(mode FlushMode) {
	be := d.be
	_, err := d.outputFilter(be.Output, d.underlying.Output, 0, mode)
	if err != nil {
		be.transitionAndFire(stateError, reactor.Error|reactor.Write)
		return
	}
	if err := d.underlying.Enable(reactor.Write); err != nil {
		be.transitionAndFire(stateError, reactor.Error|reactor.Write)
		return
	}

	be.mu.Lock()
	low := be.writeLow
	length := be.Output.Length()
	be.mu.Unlock()
	if length <= low {
		be.fireWrite()
	}
}

// Flush pushes any buffered bytes through the relevant filter
// immediately in the given mode.
func (be *BufferEvent) Flush(dir IOType, mode FlushMode) error {
	d, ok := be.driver.(*filterDriver)
	if !ok {
		return errFilterOnly
	}
	if dir == Reading {
		d.runInputFilter(mode)
	} else {
		d.runOutputFilter(mode)
	}
	return nil
}

var errFilterOnly = errors.New("bufferevent: Flush requires the filter variant")
