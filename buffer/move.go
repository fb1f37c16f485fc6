package buffer

import "sync/atomic"

// Move splices up to n bytes (n < 0 meaning all of src) from the head of
// src onto the tail of b, reusing src's segments directly rather than
// copying their contents. At most one segment is physically split (the
// one straddling the n-byte boundary): a move touches O(segments moved)
// memory, not O(bytes moved). Returns the number of bytes actually
// moved.
func (b *Buffer) Move(src *Buffer, n int) (int, error) {
	if src == b {
		return 0, nil
	}

	b.mu.Lock()
	src.mu.Lock()

	if b.frozenBack || src.frozenFront {
		src.mu.Unlock()
		b.mu.Unlock()
		return 0, ErrFrozen
	}

	if n < 0 || n > src.length {
		n = src.length
	}
	if n == 0 {
		src.mu.Unlock()
		b.mu.Unlock()
		return 0, nil
	}

	origDst := b.length
	origSrc := src.length
	moved := 0

	for moved < n && src.first != nil {
		seg := src.first
		remain := n - moved
		if seg.len() <= remain {
			src.first = seg.next
			if src.first == nil {
				src.last = nil
			}
			seg.next = nil
			b.appendSegment(seg)
			moved += seg.len()
			continue
		}

		// seg straddles the boundary: split it into a segment handed to
		// b (the first `remain` bytes) and a shrunk remainder left on
		// src, sharing the same backing array to stay zero-copy.
		head := &segment{
			data:       seg.data,
			off:        seg.off,
			used:       remain,
			referenced: seg.referenced,
			cleanup:    seg.cleanup,
			cleanupArg: seg.cleanupArg,
		}
		if seg.file != nil && !seg.file.loaded {
			// An unloaded file segment's range lives in fileSegment,
			// not off/used, so split that descriptor in two instead of
			// adjusting byte offsets that are not yet meaningful.
			head.file = &fileSegment{fd: seg.file.fd, offset: seg.file.offset, length: int64(remain)}
			seg.file = &fileSegment{fd: seg.file.fd, offset: seg.file.offset + int64(remain), length: seg.file.length - int64(remain)}
		} else {
			seg.off += remain
			seg.used -= remain
		}
		// Only one of head/seg should run the shared cleanup once
		// drained; attribute it to whichever is drained last to avoid a
		// double-free/double-callback.
		if seg.referenced && seg.cleanup != nil {
			cleanup := seg.cleanup
			halves := new(atomic.Int32)
			halves.Store(2)
			shared := func(ptr []byte, arg any) {
				if halves.Add(-1) == 0 {
					cleanup(ptr, arg)
				}
			}
			head.cleanup = shared
			seg.cleanup = shared
		}
		b.appendSegment(head)
		moved += remain
	}

	src.length -= moved
	src.bumpGeneration()
	b.length += moved
	b.bumpGeneration()

	src.mu.Unlock()
	b.mu.Unlock()

	b.fireCallbacks(origDst, moved, 0)
	src.fireCallbacks(origSrc, 0, moved)
	return moved, nil
}
