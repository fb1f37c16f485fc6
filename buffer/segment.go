package buffer

// minSegmentCap is the minimum capacity of a freshly allocated segment,
// chosen so small appends don't thrash allocation (libevent's
// EVBUFFER_CHAIN_MAX / MIN_BUFFER_SIZE serve the same purpose).
const minSegmentCap = 4096

// segment is one node in a Buffer's chain: either an owned byte slice, a
// reference to foreign memory (AddReference), or a file-backed range
// (AddFileSegment). Grounded on evbuffer.h's evbuffer_chain, which bundles
// exactly these cases into one struct with a buffer pointer, a capacity,
// a read offset, a used length, and an optional cleanup/free callback.
type segment struct {
	data []byte // nil for file segments until loaded
	off  int     // read cursor within data
	used int     // bytes valid starting at off

	// referenced/cleanup is set for AddReference segments: data points at
	// foreign memory, and cleanup runs once the segment is fully drained
	// (or copied out by Pullup).
	referenced bool
	cleanup    func(ptr []byte, extra any)
	cleanupArg any

	file *fileSegment // non-nil for AddFileSegment segments

	next *segment
}

// fileSegment backs a segment with an OS file descriptor range. Reads
// are satisfied via an implicit load into data; WriteFileSegmentTo
// (iofd.go) may instead hand an unread one to sendfile(2).
type fileSegment struct {
	fd     int
	offset int64
	length int64
	loaded bool
}

func (s *segment) len() int {
	if s.file != nil && !s.file.loaded {
		return int(s.file.length)
	}
	return s.used
}

func (s *segment) freeSpace() int {
	if s.referenced || s.file != nil {
		return 0
	}
	return cap(s.data) - s.off - s.used
}

func (s *segment) freePrefix() int {
	if s.referenced || s.file != nil {
		return 0
	}
	return s.off
}

func (s *segment) bytes() []byte {
	return s.data[s.off : s.off+s.used]
}

func newOwnedSegment(capacity int) *segment {
	if capacity < minSegmentCap {
		capacity = minSegmentCap
	}
	return &segment{data: make([]byte, capacity)}
}
