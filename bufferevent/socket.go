package bufferevent

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-reactor/reactor"
)

// socketDriver couples a BufferEvent's buffer pair to a nonblocking fd
// via two reactor.Event registrations, wired to reactor.Event/reactor.Base.
type socketDriver struct {
	be *BufferEvent

	fd int

	readEv, writeEv *reactor.Event

	connecting bool
}

// NewSocket creates a socket-variant BufferEvent. fd, if ≥ 0, must
// already be in nonblocking mode; pass -1 and call SocketConnect or
// SetFD to attach one later.
func NewSocket(base *reactor.Base, fd int) *BufferEvent {
	d := &socketDriver{fd: fd}
	be := newCore(base, d)
	d.be = be
	return be
}

// SetFD attaches (or replaces) the underlying fd. Any previously
// registered read/write events are torn down first.
func (be *BufferEvent) SetFD(fd int) error {
	d, ok := be.driver.(*socketDriver)
	if !ok {
		return errSocketOnly
	}
	be.mu.Lock()
	defer be.mu.Unlock()
	if d.readEv != nil {
		_ = d.readEv.Del()
		d.readEv = nil
	}
	if d.writeEv != nil {
		_ = d.writeEv.Del()
		d.writeEv = nil
	}
	d.fd = fd
	return nil
}

// GetFD returns the underlying fd, or -1 if none is attached.
func (be *BufferEvent) GetFD() int {
	d, ok := be.driver.(*socketDriver)
	if !ok {
		return -1
	}
	be.mu.Lock()
	defer be.mu.Unlock()
	return d.fd
}

var errSocketOnly = errors.New("bufferevent: operation requires the socket variant")

// SocketConnect begins a nonblocking connect to addr and arms the write
// direction so connect completion is detected on first writability.
func (be *BufferEvent) SocketConnect(fd int, addr unix.Sockaddr) error {
	d, ok := be.driver.(*socketDriver)
	if !ok {
		return errSocketOnly
	}

	be.mu.Lock()
	d.fd = fd
	d.connecting = true
	be.transitionLocked(stateConnecting)
	be.mu.Unlock()

	err := unix.Connect(fd, addr)
	if err != nil && !errors.Is(err, unix.EINPROGRESS) {
		be.mu.Lock()
		be.transitionLocked(stateError)
		be.mu.Unlock()
		be.fireEvent(reactor.Error)
		return err
	}
	return be.Enable(reactor.Write)
}

func (d *socketDriver) enableRead(be *BufferEvent) error {
	be.mu.Lock()
	defer be.mu.Unlock()
	if d.readEv != nil {
		return nil
	}
	ev := reactor.NewEvent(be.base, d.fd, reactor.Read|reactor.Persistent, d.onReadable, nil)
	d.readEv = ev
	return ev.Add(be.readTimeout)
}

func (d *socketDriver) disableRead(be *BufferEvent) error {
	be.mu.Lock()
	ev := d.readEv
	d.readEv = nil
	be.mu.Unlock()
	if ev == nil {
		return nil
	}
	return ev.Del()
}

func (d *socketDriver) enableWrite(be *BufferEvent) error {
	be.mu.Lock()
	defer be.mu.Unlock()
	if be.enabled&reactor.Write == 0 {
		return nil
	}
	// Writes are armed lazily: only while there is output pending or a
	// connect is still in flight waiting for the completion writable.
	if be.Output.Length() == 0 && !d.connecting {
		return nil
	}
	if d.writeEv != nil {
		return nil
	}
	ev := reactor.NewEvent(be.base, d.fd, reactor.Write|reactor.Persistent, d.onWritable, nil)
	d.writeEv = ev
	return ev.Add(be.writeTimeout)
}

func (d *socketDriver) disableWrite(be *BufferEvent) error {
	be.mu.Lock()
	ev := d.writeEv
	d.writeEv = nil
	be.mu.Unlock()
	if ev == nil {
		return nil
	}
	return ev.Del()
}

func (d *socketDriver) close(be *BufferEvent) error {
	_ = d.disableRead(be)
	_ = d.disableWrite(be)
	be.mu.Lock()
	fd := d.fd
	closeOnFree := be.closeOnFree
	be.mu.Unlock()
	if closeOnFree && fd >= 0 {
		return unix.Close(fd)
	}
	return nil
}

// onReadable is the reactor.Callback for the read event: reads up to
// maxSingleRead bytes (bounded further by any rate-limit bucket) into
// Input.
func (d *socketDriver) onReadable(ev *reactor.Event, observed reactor.Flag) {
	be := d.be
	be.mu.Lock()
	want := be.maxSingleRead
	be.mu.Unlock()

	if be.limiter != nil {
		want = be.limiter.grantRead(be, want)
		if want == 0 {
			return
		}
	}

	iov, err := be.Input.ReserveSpace(want)
	if err != nil {
		be.transitionAndFire(stateError, reactor.Error|reactor.Read)
		return
	}
	buf := iov[0].Bytes
	if len(buf) > want {
		buf = buf[:want]
	}
	n, rerr := unix.Read(d.fd, buf)
	if n > 0 {
		_ = be.Input.CommitSpace(iov, n)
	} else {
		_ = be.Input.CommitSpace(iov, 0)
	}

	switch {
	case n == 0 && rerr == nil:
		be.transitionAndFire(stateEOF, reactor.EOF|reactor.Read)
		_ = d.disableRead(be)
	case rerr != nil && isTemporary(rerr):
		// EAGAIN/EWOULDBLOCK/EINTR: retried implicitly on next readiness.
	case rerr != nil:
		be.transitionAndFire(stateError, reactor.Error|reactor.Read)
		_ = d.disableRead(be)
	default:
		be.mu.Lock()
		high := be.readHigh
		low := be.readLow
		length := be.Input.Length()
		be.mu.Unlock()
		if high > 0 && length >= high {
			_ = d.disableRead(be)
		}
		if length >= low {
			be.fireRead()
		}
	}
}

// onWritable is the reactor.Callback for the write event: either
// completes a pending connect (checking SO_ERROR) or writes up to
// maxSingleWrite bytes from Output.
func (d *socketDriver) onWritable(ev *reactor.Event, observed reactor.Flag) {
	be := d.be

	be.mu.Lock()
	connecting := d.connecting
	be.mu.Unlock()

	if connecting {
		d.completeConnect(be)
		return
	}

	be.mu.Lock()
	want := be.maxSingleWrite
	be.mu.Unlock()
	if be.limiter != nil {
		want = be.limiter.grantWrite(be, want)
		if want == 0 {
			return
		}
	}

	chunk := be.Output.Peek(want)
	if len(chunk) == 0 {
		_ = d.disableWrite(be)
		return
	}
	n, werr := unix.Write(d.fd, chunk)
	if n > 0 {
		_ = be.Output.Drain(n)
	}

	switch {
	case werr != nil && isTemporary(werr):
	case werr != nil:
		be.transitionAndFire(stateError, reactor.Error|reactor.Write)
		_ = d.disableWrite(be)
	default:
		be.mu.Lock()
		low := be.writeLow
		length := be.Output.Length()
		be.mu.Unlock()
		if length <= low {
			be.fireWrite()
		}
		if length == 0 {
			_ = d.disableWrite(be)
		}
	}
}

func (d *socketDriver) completeConnect(be *BufferEvent) {
	errno, err := unix.GetsockoptInt(d.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	be.mu.Lock()
	d.connecting = false
	be.mu.Unlock()

	if err != nil || errno != 0 {
		be.transitionAndFire(stateError, reactor.Error)
		_ = d.disableWrite(be)
		return
	}

	be.mu.Lock()
	be.transitionLocked(stateOpen)
	outputEmpty := be.Output.Length() == 0
	be.mu.Unlock()
	be.fireEvent(Connected)
	if outputEmpty {
		_ = d.disableWrite(be)
	}
}

// transitionAndFire sets the state and fires the event callback in one
// step, used on every failure/EOF path.
func (be *BufferEvent) transitionAndFire(s state, what reactor.Flag) {
	be.mu.Lock()
	be.transitionLocked(s)
	be.mu.Unlock()
	be.fireEvent(what)
}

func isTemporary(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}

// rearmTimeouts is invoked by SetTimeouts and re-registers each direction
// that is already armed, so a newly configured timeout takes
// effect without requiring the caller to re-Enable.
func (be *BufferEvent) rearmTimeouts() {
	d, ok := be.driver.(*socketDriver)
	if !ok {
		return
	}
	be.mu.Lock()
	readEv, writeEv := d.readEv, d.writeEv
	readTO, writeTO := be.readTimeout, be.writeTimeout
	be.mu.Unlock()
	if readEv != nil {
		_ = readEv.Del()
		readEv2 := reactor.NewEvent(be.base, d.fd, reactor.Read|reactor.Persistent, d.onReadable, nil)
		_ = readEv2.Add(readTO)
		be.mu.Lock()
		d.readEv = readEv2
		be.mu.Unlock()
	}
	if writeEv != nil {
		_ = writeEv.Del()
		writeEv2 := reactor.NewEvent(be.base, d.fd, reactor.Write|reactor.Persistent, d.onWritable, nil)
		_ = writeEv2.Add(writeTO)
		be.mu.Lock()
		d.writeEv = writeEv2
		be.mu.Unlock()
	}
}
