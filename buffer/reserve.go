package buffer

// IOVec describes one writable region returned by ReserveSpace, mirroring
// evbuffer.h's evbuffer_iovec: callers write directly into Bytes[:cap(Bytes)]
// and report how much they used via CommitSpace.
type IOVec struct {
	Bytes []byte
}

// ReserveSpace exposes at least n bytes of writable tail capacity as one
// or more IOVecs without copying, so a caller (typically a read(2) or
// readv(2) syscall) can fill it directly. The returned slices are valid
// until the next call to CommitSpace, ReserveSpace, or any other mutating
// method on b. Only one reservation may be outstanding at a time.
func (b *Buffer) ReserveSpace(n int) ([]IOVec, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozenBack {
		return nil, ErrFrozen
	}
	if b.reservation != nil {
		return nil, ErrReserveCommitMismatch
	}

	if err := b.ensureTailCapacity(n); err != nil {
		return nil, err
	}
	seg := b.last
	iov := IOVec{Bytes: seg.data[seg.off+seg.used : cap(seg.data)]}
	b.reservation = []IOVec{iov}
	b.reserveSeg = seg
	return b.reservation, nil
}

// CommitSpace finalizes a prior ReserveSpace call, marking the first n
// bytes of the reserved region(s) as committed data and growing Length by
// n. iovecs must be exactly the slice returned by ReserveSpace (libevent
// allows passing back a modified count of iovecs with reduced lengths;
// this implementation only supports the common single-iovec case).
func (b *Buffer) CommitSpace(iovecs []IOVec, n int) error {
	b.mu.Lock()
	if b.reservation == nil || b.reserveSeg == nil {
		b.mu.Unlock()
		return ErrReserveCommitMismatch
	}
	if len(iovecs) != len(b.reservation) {
		b.mu.Unlock()
		return ErrReserveCommitMismatch
	}
	seg := b.reserveSeg
	if n > len(b.reservation[0].Bytes) {
		b.mu.Unlock()
		return ErrReserveCommitMismatch
	}

	orig := b.length
	seg.used += n
	b.length += n
	b.reservation = nil
	b.reserveSeg = nil
	b.bumpGeneration()
	b.mu.Unlock()

	b.fireCallbacks(orig, n, 0)
	return nil
}
