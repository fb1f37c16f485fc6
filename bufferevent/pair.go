package bufferevent

import (
	"github.com/joeycumines/go-reactor/buffer"
	"github.com/joeycumines/go-reactor/reactor"
)

// pairDriver implements a memory-to-memory variant: two BufferEvents
// share a cross of buffers (A's output feeds B's input and vice versa),
// moved by deferred callbacks instead of any OS I/O. Appending schedules
// a deferred callback that moves bytes to the peer, reusing
// reactor/deferred.go via Base.DeferCallback exactly as buffer.Buffer's
// own DeferCallbacks hook does.
type pairDriver struct {
	be   *BufferEvent
	peer *BufferEvent

	readEnabled  bool
	writeEnabled bool

	flushScheduled bool
}

// PairNew creates two BufferEvents wired as a cross-connected in-memory
// pair. Writing to one side's Output becomes readable bytes on the
// other side's Input.
func PairNew(base *reactor.Base) (a, b *BufferEvent) {
	da := &pairDriver{}
	db := &pairDriver{}
	a = newCore(base, da)
	b = newCore(base, db)
	da.be, da.peer = a, b
	db.be, db.peer = b, a
	return a, b
}

func (d *pairDriver) enableRead(be *BufferEvent) error {
	d.readEnabled = true
	// The peer may already have unflushed output waiting for us to start
	// reading; give it a chance to deliver now.
	d.peer.driver.(*pairDriver).scheduleFlush()
	return nil
}

func (d *pairDriver) disableRead(be *BufferEvent) error {
	d.readEnabled = false
	return nil
}

func (d *pairDriver) enableWrite(be *BufferEvent) error {
	d.writeEnabled = true
	d.scheduleFlush()
	return nil
}

func (d *pairDriver) disableWrite(be *BufferEvent) error {
	d.writeEnabled = false
	return nil
}

func (d *pairDriver) close(be *BufferEvent) error {
	return nil
}

// scheduleFlush defers a single move of this side's Output into the
// peer's Input, coalescing multiple Write calls within one iteration
// into one move.
func (d *pairDriver) scheduleFlush() {
	be := d.be
	be.mu.Lock()
	if d.flushScheduled {
		be.mu.Unlock()
		return
	}
	d.flushScheduled = true
	be.mu.Unlock()
	be.base.DeferCallback(d.flush)
}

func (d *pairDriver) flush() {
	be := d.be
	peer := d.peer

	be.mu.Lock()
	d.flushScheduled = false
	wantWrite := d.writeEnabled
	be.mu.Unlock()

	if !wantWrite {
		return
	}

	peer.mu.Lock()
	peerWantRead := peer.driver.(*pairDriver).readEnabled
	peerHigh := peer.readHigh
	peer.mu.Unlock()
	if !peerWantRead {
		return
	}

	n := be.Output.Length()
	if n == 0 {
		return
	}
	if peerHigh > 0 {
		room := peerHigh - peer.Input.Length()
		if room <= 0 {
			return
		}
		if n > room {
			n = room
		}
	}

	moved, err := moveBytes(peer.Input, be.Output, n)
	if err != nil || moved == 0 {
		return
	}

	be.mu.Lock()
	outLow := be.writeLow
	outLen := be.Output.Length()
	be.mu.Unlock()
	if outLen <= outLow {
		be.fireWrite()
	}

	peer.mu.Lock()
	inLow := peer.readLow
	inLen := peer.Input.Length()
	inHigh := peer.readHigh
	peer.mu.Unlock()
	if inLen >= inLow {
		peer.fireRead()
	}
	if inHigh > 0 && inLen >= inHigh {
		_ = peer.driver.disableRead(peer)
	}

	// Output may still hold bytes if the peer's high watermark throttled
	// this move; reschedule to keep draining once there's room.
	if be.Output.Length() > 0 {
		d.scheduleFlush()
	}
}

// moveBytes splices up to n bytes from src's head onto dst's tail
// without copying.
func moveBytes(dst, src *buffer.Buffer, n int) (int, error) {
	return dst.Move(src, n)
}
