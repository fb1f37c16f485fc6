package buffer

import "golang.org/x/sys/unix"

// ReadFrom reads up to n bytes from fd directly into the tail of b
// without an intermediate copy, using ReserveSpace/CommitSpace under the
// hood. Grounded on evbuffer.h's evbuffer_read, which fills a buffer
// straight from a socket/fd the same way. Returns the number of bytes
// read and the raw syscall error (including EAGAIN/EWOULDBLOCK/EINTR,
// which callers are expected to treat as transient).
func (b *Buffer) ReadFrom(fd int, n int) (int, error) {
	iov, err := b.ReserveSpace(n)
	if err != nil {
		return 0, err
	}
	buf := iov[0].Bytes
	if len(buf) > n {
		buf = buf[:n]
	}
	got, rerr := unix.Read(fd, buf)
	if got < 0 {
		got = 0
	}
	if cerr := b.CommitSpace(iov, got); cerr != nil {
		return got, cerr
	}
	return got, rerr
}

// WriteTo writes up to n bytes from the head of b directly to fd without
// an intermediate copy beyond the Peek needed to obtain a contiguous
// span, draining exactly what was written. Grounded on evbuffer.h's
// evbuffer_write; the file-segment zero-copy transfer path (use a
// platform transfer primitive when one is available) is layered on top
// of this by WriteFileSegmentTo.
func (b *Buffer) WriteTo(fd int, n int) (int, error) {
	chunk := b.Peek(n)
	if len(chunk) == 0 {
		return 0, nil
	}
	sent, werr := unix.Write(fd, chunk)
	if sent > 0 {
		if derr := b.Drain(sent); derr != nil {
			return sent, derr
		}
	}
	return sent, werr
}

// WriteFileSegmentTo transfers a file-backed head segment directly to a
// socket fd via sendfile(2) when the head of b is an unread file segment.
// When the head is anything else it writes nothing and returns
// usedSendfile=false; there is no read+write fallback inside this
// function. A sendfile(2) error is returned as is, with nothing drained.
func (b *Buffer) WriteFileSegmentTo(dstFD int) (n int, usedSendfile bool, err error) {
	b.mu.Lock()
	seg := b.first
	b.mu.Unlock()
	if seg == nil || seg.file == nil || seg.file.loaded {
		return 0, false, nil
	}
	fs := seg.file
	off := fs.offset
	remaining := int(fs.length)
	sent, serr := unix.Sendfile(dstFD, fs.fd, &off, remaining)
	if serr != nil {
		return 0, false, serr
	}
	if sent > 0 {
		if derr := b.Drain(sent); derr != nil {
			return sent, true, derr
		}
	}
	return sent, true, nil
}
