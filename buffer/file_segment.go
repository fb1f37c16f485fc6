package buffer

import (
	"fmt"
	"os"
)

// AddReference appends data to the tail as a zero-copy reference: the
// buffer stores the slice itself rather than copying it, and invokes
// cleanup(data, arg) once every byte of it has been drained (or copied
// out by Pullup). A Buffer has no free operation: cleanup does not run
// for bytes still held when the Buffer is dropped. The caller must not
// mutate data until cleanup runs. Grounded on evbuffer.h's evbuffer_add_reference.
func (b *Buffer) AddReference(data []byte, cleanup func(ptr []byte, arg any), arg any) error {
	b.mu.Lock()
	if b.frozenBack {
		b.mu.Unlock()
		return ErrFrozen
	}
	orig := b.length
	seg := &segment{
		data:       data,
		used:       len(data),
		referenced: true,
		cleanup:    cleanup,
		cleanupArg: arg,
	}
	b.appendSegment(seg)
	b.length += len(data)
	b.bumpGeneration()
	b.mu.Unlock()

	b.fireCallbacks(orig, len(data), 0)
	return nil
}

// AddFileSegment appends a byte range of an already-open file descriptor
// to the tail, without reading it into memory immediately. Grounded on
// evbuffer.h's evbuffer_add_file_segment / evbuffer_file_segment; unlike
// the original's shared, refcounted evbuffer_file_segment object, each
// call here owns its range independently, since Go's GC (rather than
// manual refcounting) reclaims the underlying *os.File once unreferenced.
func (b *Buffer) AddFileSegment(fd int, offset, length int64) error {
	b.mu.Lock()
	if b.frozenBack {
		b.mu.Unlock()
		return ErrFrozen
	}
	orig := b.length
	seg := &segment{
		file: &fileSegment{fd: fd, offset: offset, length: length},
	}
	b.appendSegment(seg)
	b.length += int(length)
	b.bumpGeneration()
	b.mu.Unlock()

	b.fireCallbacks(orig, int(length), 0)
	return nil
}

// AddFile opens path and appends its full contents as a file segment,
// combining os.Open with AddFileSegment for the common case where the
// caller does not already hold an open descriptor.
func (b *Buffer) AddFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("buffer: add file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("buffer: add file: %w", err)
	}
	return b.AddFileSegment(int(f.Fd()), 0, info.Size())
}

// loadFileSegment reads a file-backed segment's range into owned memory
// on first access, used by copyOutLocked/Pullup when they encounter one.
func (seg *segment) loadFileSegment() error {
	if seg.file == nil || seg.file.loaded {
		return nil
	}
	buf := make([]byte, seg.file.length)
	f := os.NewFile(uintptr(seg.file.fd), "")
	n, err := f.ReadAt(buf, seg.file.offset)
	if err != nil && n == 0 {
		return fmt.Errorf("buffer: load file segment: %w", err)
	}
	seg.data = buf
	seg.used = n
	seg.file.loaded = true
	return nil
}
