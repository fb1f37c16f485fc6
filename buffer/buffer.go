package buffer

import "sync"

// CallbackFunc is invoked after every successful mutation of a Buffer,
// with the length before the mutation and the number of bytes added and
// removed by it. A callback may add further callbacks but may not remove
// other callbacks, and must not remove itself while it is the one being
// invoked.
type CallbackFunc func(buf *Buffer, origLength, added, removed int)

type callbackEntry struct {
	fn      CallbackFunc
	removed bool
}

// deferredRunner is the minimal surface DeferCallbacks needs from a
// reactor.Base, kept as an interface here so this package does not import
// the reactor package (avoiding a cycle, since bufferevent depends on
// both).
type deferredRunner interface {
	DeferCallback(func())
}

// Buffer is an ordered chain of byte segments: a chained byte buffer
// supporting zero-copy moves between buffers. The zero value is not
// usable; use New.
type Buffer struct {
	mu sync.Mutex

	first, last *segment
	length      int

	frozenFront bool
	frozenBack  bool

	callbacks []*callbackEntry
	deferTo   deferredRunner

	// reservation tracks an in-flight ReserveSpace call; no other
	// mutation is permitted until CommitSpace closes it out.
	reservation []IOVec
	reserveSeg  *segment

	// generation increments on every mutation; Pos values capture
	// it so stale positions (valid only until the next mutation) can be
	// detected.
	generation uint64
}

// New creates an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Length returns the total number of bytes currently stored.
func (b *Buffer) Length() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// ContiguousSpace returns how many bytes at the head are already
// physically contiguous, without allocating.
func (b *Buffer) ContiguousSpace() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.first == nil {
		return 0
	}
	return b.first.len()
}

// Expand ensures at least n bytes of free tail capacity exist, allocating
// a new segment if necessary, without changing Length.
func (b *Buffer) Expand(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ensureTailCapacity(n)
}

func (b *Buffer) ensureTailCapacity(n int) error {
	if b.last != nil && b.last.freeSpace() >= n {
		return nil
	}
	seg := newOwnedSegment(n)
	b.appendSegment(seg)
	return nil
}

func (b *Buffer) appendSegment(seg *segment) {
	if b.last != nil {
		b.last.next = seg
	} else {
		b.first = seg
	}
	b.last = seg
}

func (b *Buffer) prependSegment(seg *segment) {
	seg.next = b.first
	b.first = seg
	if b.last == nil {
		b.last = seg
	}
}

func (b *Buffer) bumpGeneration() { b.generation++ }

func (b *Buffer) fireCallbacks(origLength, added, removed int) {
	if added == 0 && removed == 0 {
		return
	}
	b.mu.Lock()
	// Snapshot the slice header so a callback appending to b.callbacks
	// does not get invoked in this same pass.
	snapshot := b.callbacks
	deferTo := b.deferTo
	b.mu.Unlock()

	run := func() {
		for _, e := range snapshot {
			if e.removed {
				continue
			}
			e.fn(b, origLength, added, removed)
		}
	}
	if deferTo != nil {
		deferTo.DeferCallback(run)
		return
	}
	run()
}

// Append copies n bytes from src onto the tail.
func (b *Buffer) Append(src []byte) error {
	b.mu.Lock()
	if b.frozenBack {
		b.mu.Unlock()
		return ErrFrozen
	}
	orig := b.length
	n := len(src)

	remaining := src
	if b.last != nil {
		free := b.last.freeSpace()
		if free > 0 {
			k := free
			if k > len(remaining) {
				k = len(remaining)
			}
			copy(b.last.data[b.last.off+b.last.used:], remaining[:k])
			b.last.used += k
			remaining = remaining[k:]
		}
	}
	for len(remaining) > 0 {
		seg := newOwnedSegment(len(remaining))
		k := copy(seg.data, remaining)
		seg.used = k
		b.appendSegment(seg)
		remaining = remaining[k:]
	}

	b.length += n
	b.bumpGeneration()
	b.mu.Unlock()

	b.fireCallbacks(orig, n, 0)
	return nil
}

// AppendBuffer moves all of src's content onto b's tail without copying.
func (b *Buffer) AppendBuffer(src *Buffer) error {
	return b.Move(src, -1)
}

// AppendBufferReference is an alias for AppendBuffer; both move the
// entirety of src.
func (b *Buffer) AppendBufferReference(src *Buffer) error {
	return b.AppendBuffer(src)
}

// Prepend copies n bytes from src onto the head.
func (b *Buffer) Prepend(src []byte) error {
	b.mu.Lock()
	if b.frozenFront {
		b.mu.Unlock()
		return ErrFrozen
	}
	orig := b.length
	n := len(src)

	remaining := src
	if b.first != nil {
		free := b.first.freePrefix()
		if free > 0 {
			k := free
			if k > len(remaining) {
				k = len(remaining)
			}
			tail := remaining[len(remaining)-k:]
			copy(b.first.data[b.first.off-k:b.first.off], tail)
			b.first.off -= k
			b.first.used += k
			remaining = remaining[:len(remaining)-k]
		}
	}
	for len(remaining) > 0 {
		cap := len(remaining)
		if cap < minSegmentCap {
			cap = minSegmentCap
		}
		seg := &segment{data: make([]byte, cap), off: cap - len(remaining)}
		k := copy(seg.data[seg.off:], remaining)
		seg.used = k
		b.prependSegment(seg)
		remaining = nil
	}

	b.length += n
	b.bumpGeneration()
	b.mu.Unlock()

	b.fireCallbacks(orig, n, 0)
	return nil
}

// PrependBuffer moves all of src onto b's head without copying.
func (b *Buffer) PrependBuffer(src *Buffer) error {
	b.mu.Lock()
	if b.frozenFront {
		b.mu.Unlock()
		return ErrFrozen
	}
	src.mu.Lock()
	if src.first == nil {
		src.mu.Unlock()
		b.mu.Unlock()
		return nil
	}
	orig := b.length
	n := src.length

	srcFirst, srcLast := src.first, src.last
	src.first, src.last = nil, nil
	src.length = 0
	src.bumpGeneration()
	src.mu.Unlock()

	srcLast.next = b.first
	b.first = srcFirst
	if b.last == nil {
		b.last = srcLast
	}
	b.length += n
	b.bumpGeneration()
	b.mu.Unlock()

	b.fireCallbacks(orig, n, 0)
	src.fireCallbacks(n, 0, n)
	return nil
}

// Drain advances the read cursor by n bytes, releasing any segment that
// becomes fully consumed. It never copies.
func (b *Buffer) Drain(n int) error {
	b.mu.Lock()
	if b.frozenFront {
		b.mu.Unlock()
		return ErrFrozen
	}
	if n > b.length {
		n = b.length
	}
	orig := b.length
	removed := b.drainLocked(n)
	b.mu.Unlock()
	b.fireCallbacks(orig, 0, removed)
	return nil
}

// drainLocked requires b.mu held; returns bytes actually drained.
func (b *Buffer) drainLocked(n int) int {
	removed := 0
	for n > 0 && b.first != nil {
		seg := b.first
		segLen := seg.len()
		if segLen <= n {
			n -= segLen
			removed += segLen
			b.releaseSegmentLocked(seg)
			b.first = seg.next
			if b.first == nil {
				b.last = nil
			}
			continue
		}
		if seg.file != nil && !seg.file.loaded {
			seg.file.offset += int64(n)
			seg.file.length -= int64(n)
		} else {
			seg.off += n
			seg.used -= n
		}
		removed += n
		n = 0
	}
	b.length -= removed
	b.bumpGeneration()
	return removed
}

func (b *Buffer) releaseSegmentLocked(seg *segment) {
	if seg.referenced && seg.cleanup != nil {
		seg.cleanup(seg.data, seg.cleanupArg)
	}
}

// Remove copies min(len(dst), Length) bytes into dst and drains them, returning
// the number of bytes copied.
func (b *Buffer) Remove(dst []byte) (int, error) {
	n, err := b.CopyOut(0, dst)
	if err != nil && err != ErrShort {
		return n, err
	}
	if derr := b.Drain(n); derr != nil {
		return n, derr
	}
	return n, nil
}

// RemoveBuffer moves up to n bytes from b into dst, splicing whole
// segments where possible and splitting at most one segment when n
// partitions it.
func (b *Buffer) RemoveBuffer(dst *Buffer, n int) (int, error) {
	return dst.Move(b, n)
}

// CopyOut performs a non-destructive read of n bytes starting at the
// given logical offset into dst, without altering Length or cursors.
func (b *Buffer) CopyOut(offset int, dst []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyOutLocked(offset, dst)
}

func (b *Buffer) copyOutLocked(offset int, dst []byte) (int, error) {
	want := len(dst)
	if offset+want > b.length {
		want = b.length - offset
		if want < 0 {
			want = 0
		}
	}
	remaining := offset
	copied := 0
	for seg := b.first; seg != nil && copied < want; seg = seg.next {
		if remaining >= seg.len() {
			remaining -= seg.len()
			continue
		}
		if err := seg.loadFileSegment(); err != nil {
			return copied, err
		}
		avail := seg.bytes()[remaining:]
		k := len(avail)
		if copied+k > want {
			k = want - copied
		}
		copy(dst[copied:], avail[:k])
		copied += k
		remaining = 0
	}
	if copied < len(dst) {
		return copied, ErrShort
	}
	return copied, nil
}

// CopyOutFrom copies from an explicit logical position rather than
// always the head.
func (b *Buffer) CopyOutFrom(pos Pos, dst []byte) (int, error) {
	if err := b.checkPos(pos); err != nil {
		return 0, err
	}
	return b.CopyOut(pos.offset, dst)
}

// Peek returns up to n bytes starting at the head without consuming them.
// A negative n means "the whole buffer". The returned slice aliases
// internal storage and is invalidated by the next mutation (see Pullup).
func (b *Buffer) Peek(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n < 0 || n > b.length {
		n = b.length
	}
	if b.first != nil && b.first.file == nil && b.first.len() >= n {
		return b.first.bytes()[:n]
	}
	out := make([]byte, n)
	_, _ = b.copyOutLocked(0, out)
	return out
}

// Pullup guarantees the first n bytes (n == -1 meaning all of them) are
// physically contiguous after the call, returning a pointer into that
// storage. It never shrinks Length. It may allocate a new segment and
// copy into it, which invalidates any prior pointer obtained from
// Pullup, Peek, or ReserveSpace on this Buffer.
func (b *Buffer) Pullup(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n < 0 {
		n = b.length
	}
	if n > b.length {
		n = b.length
	}
	if n == 0 {
		return nil
	}
	if b.first != nil && b.first.file == nil && b.first.len() >= n {
		return b.first.bytes()[:n]
	}

	merged := newOwnedSegment(n)
	copied, _ := b.copyOutLocked(0, merged.data[:n])
	merged.used = copied

	// Replace however many leading segments covered [0, n) with the
	// single merged segment, keeping any remainder of the last one
	// covered untouched by re-attaching its unconsumed tail.
	remaining := n
	seg := b.first
	for remaining > 0 && seg != nil {
		if seg.len() <= remaining {
			remaining -= seg.len()
			next := seg.next
			b.releaseSegmentLocked(seg)
			seg = next
			continue
		}
		seg.off += remaining
		seg.used -= remaining
		remaining = 0
	}
	merged.next = seg
	b.first = merged
	if seg == nil {
		b.last = merged
	}
	b.bumpGeneration()
	return merged.bytes()
}

// Freeze toggles rejection of head-mutating (front=true) or
// tail-mutating (front=false) operations. Non-nesting: calling Freeze
// twice on the same end has the same effect as once.
func (b *Buffer) Freeze(front bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if front {
		b.frozenFront = true
	} else {
		b.frozenBack = true
	}
}

// Unfreeze reverses Freeze for the given end.
func (b *Buffer) Unfreeze(front bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if front {
		b.frozenFront = false
	} else {
		b.frozenBack = false
	}
}

// DeferCallbacks routes this Buffer's mutation callbacks through base
// instead of running them inline.
func (b *Buffer) DeferCallbacks(base deferredRunner) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deferTo = base
}

// AddCb registers a mutation callback, returning a handle usable with
// RemoveCb.
func (b *Buffer) AddCb(fn CallbackFunc) CbHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := &callbackEntry{fn: fn}
	b.callbacks = append(b.callbacks, e)
	return CbHandle{entry: e}
}

// CbHandle identifies a previously-registered callback.
type CbHandle struct{ entry *callbackEntry }

// RemoveCb unregisters a callback added by AddCb. A callback must not
// remove other callbacks (or itself) while callbacks for the current
// mutation are being invoked; RemoveCb only marks the entry inert, so
// calling it from within a callback is safe. The in-progress pass checks
// the mark just before each entry runs, so an entry removed before its
// turn is skipped in that pass too.
func (b *Buffer) RemoveCb(h CbHandle) {
	if h.entry == nil {
		return
	}
	h.entry.removed = true
}

// RemoveCbEntry is an alias for RemoveCb.
func (b *Buffer) RemoveCbEntry(h CbHandle) { b.RemoveCb(h) }
