package buffer

import (
	"bytes"
	"testing"
)

func TestAppendDrainRoundTrip(t *testing.T) {
	b := New()
	if err := b.Append([]byte("hello ")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := b.Append([]byte("world")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got, want := b.Length(), len("hello world"); got != want {
		t.Fatalf("Length = %d, want %d", got, want)
	}

	out := make([]byte, b.Length())
	if _, err := b.Remove(out); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("Remove = %q", out)
	}
	if b.Length() != 0 {
		t.Fatalf("expected empty buffer after Remove, got length %d", b.Length())
	}
}

func TestCopyOutDoesNotMutate(t *testing.T) {
	b := New()
	_ = b.Append([]byte("abcdef"))

	dst := make([]byte, 3)
	n, err := b.CopyOut(0, dst)
	if err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	if n != 3 || string(dst) != "abc" {
		t.Fatalf("CopyOut = %q", dst[:n])
	}
	if b.Length() != 6 {
		t.Fatalf("CopyOut must not alter length, got %d", b.Length())
	}
}

func TestPullupLinearizesAndMatchesCopyOut(t *testing.T) {
	b := New()
	// Force multiple segments by appending more than one segment's worth.
	_ = b.Append(bytes.Repeat([]byte{'a'}, minSegmentCap))
	_ = b.Append(bytes.Repeat([]byte{'b'}, minSegmentCap))

	n := minSegmentCap + 10
	ptr := b.Pullup(n)
	if len(ptr) != n {
		t.Fatalf("Pullup returned %d bytes, want %d", len(ptr), n)
	}
	if b.Length() != 2*minSegmentCap {
		t.Fatalf("Pullup must not change length, got %d", b.Length())
	}

	want := make([]byte, n)
	if _, err := b.CopyOut(0, want); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	if !bytes.Equal(ptr, want) {
		t.Fatalf("Pullup result does not match CopyOut")
	}
}

func TestMoveTransfersAndEmptiesSource(t *testing.T) {
	src := New()
	dst := New()
	_ = src.Append([]byte("abcdef"))
	_ = dst.Append([]byte("XYZ"))

	moved, err := dst.Move(src, -1)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if moved != 6 {
		t.Fatalf("Move moved %d bytes, want 6", moved)
	}
	if src.Length() != 0 {
		t.Fatalf("src should be empty after full move, got length %d", src.Length())
	}
	if dst.Length() != 9 {
		t.Fatalf("dst length = %d, want 9", dst.Length())
	}

	out := make([]byte, dst.Length())
	_, _ = dst.CopyOut(0, out)
	if string(out) != "XYZabcdef" {
		t.Fatalf("dst contents = %q, want XYZabcdef", out)
	}
}

func TestMovePartialSplitsOneSegment(t *testing.T) {
	src := New()
	dst := New()
	_ = src.Append([]byte("abcdef"))

	moved, err := dst.Move(src, 3)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if moved != 3 {
		t.Fatalf("moved = %d, want 3", moved)
	}
	if src.Length() != 3 {
		t.Fatalf("src length = %d, want 3", src.Length())
	}

	gotDst := make([]byte, dst.Length())
	_, _ = dst.CopyOut(0, gotDst)
	if string(gotDst) != "abc" {
		t.Fatalf("dst = %q, want abc", gotDst)
	}

	gotSrc := make([]byte, src.Length())
	_, _ = src.CopyOut(0, gotSrc)
	if string(gotSrc) != "def" {
		t.Fatalf("src = %q, want def", gotSrc)
	}
}

func TestSearchThenDrainYieldsNeedle(t *testing.T) {
	b := New()
	_ = b.Append([]byte("the quick brown fox"))

	pos, err := b.Search([]byte("brown"), 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	_ = b.Drain(pos.Offset())
	out := make([]byte, len("brown"))
	if _, err := b.CopyOut(0, out); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	if string(out) != "brown" {
		t.Fatalf("got %q, want brown", out)
	}
}

func TestSearchNotFound(t *testing.T) {
	b := New()
	_ = b.Append([]byte("abc"))
	if _, err := b.Search([]byte("zzz"), 0); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFreezeRejectsMutation(t *testing.T) {
	b := New()
	_ = b.Append([]byte("abc"))
	b.Freeze(false)
	if err := b.Append([]byte("x")); err != ErrFrozen {
		t.Fatalf("expected ErrFrozen on append to frozen-back buffer, got %v", err)
	}
	b.Unfreeze(false)
	if err := b.Append([]byte("x")); err != nil {
		t.Fatalf("Append after unfreeze: %v", err)
	}
}

func TestReadLineCRLF(t *testing.T) {
	b := New()
	_ = b.Append([]byte("first\r\nsecond\r\n"))

	line, ok, err := b.ReadLine(EOLCRLF)
	if err != nil || !ok {
		t.Fatalf("ReadLine: ok=%v err=%v", ok, err)
	}
	if string(line) != "first" {
		t.Fatalf("line = %q, want first", line)
	}

	line, ok, err = b.ReadLine(EOLCRLF)
	if err != nil || !ok {
		t.Fatalf("ReadLine: ok=%v err=%v", ok, err)
	}
	if string(line) != "second" {
		t.Fatalf("line = %q, want second", line)
	}

	if _, ok, _ := b.ReadLine(EOLCRLF); ok {
		t.Fatalf("expected no more complete lines")
	}
}

func TestReadLineCRLFHoldsBackTrailingCR(t *testing.T) {
	b := New()
	_ = b.Append([]byte("first\r"))

	if _, ok, err := b.ReadLine(EOLCRLF); err != nil || ok {
		t.Fatalf("expected trailing lone CR to be held back, got ok=%v err=%v", ok, err)
	}

	_ = b.Append([]byte("\nsecond"))
	line, ok, err := b.ReadLine(EOLCRLF)
	if err != nil || !ok {
		t.Fatalf("ReadLine: ok=%v err=%v", ok, err)
	}
	if string(line) != "first" {
		t.Fatalf("line = %q, want first", line)
	}

	// A CR not immediately followed by an LF is not a terminator by
	// itself: an EOL is an LF, optionally preceded by a CR. Scanning must
	// keep going past the bare CR rather than splitting on it.
	_ = b.Append([]byte("\r"))
	_ = b.Append([]byte(" more"))
	if _, ok, err := b.ReadLine(EOLCRLF); err != nil || ok {
		t.Fatalf("expected no complete line yet (no LF seen), got ok=%v err=%v", ok, err)
	}

	_ = b.Append([]byte("\n"))
	line, ok, err = b.ReadLine(EOLCRLF)
	if err != nil || !ok {
		t.Fatalf("ReadLine: ok=%v err=%v", ok, err)
	}
	if string(line) != "second\r more" {
		t.Fatalf("line = %q, want %q", line, "second\r more")
	}
}

func TestReserveCommitSpace(t *testing.T) {
	b := New()
	iov, err := b.ReserveSpace(16)
	if err != nil {
		t.Fatalf("ReserveSpace: %v", err)
	}
	n := copy(iov[0].Bytes, []byte("hello"))
	if err := b.CommitSpace(iov, n); err != nil {
		t.Fatalf("CommitSpace: %v", err)
	}
	if b.Length() != 5 {
		t.Fatalf("Length = %d, want 5", b.Length())
	}
	out := make([]byte, 5)
	_, _ = b.CopyOut(0, out)
	if string(out) != "hello" {
		t.Fatalf("got %q, want hello", out)
	}
}

func TestAddCbFiresOnMutation(t *testing.T) {
	b := New()
	var calls int
	var lastAdded, lastRemoved int
	b.AddCb(func(_ *Buffer, _, added, removed int) {
		calls++
		lastAdded, lastRemoved = added, removed
	})

	_ = b.Append([]byte("abc"))
	if calls != 1 || lastAdded != 3 || lastRemoved != 0 {
		t.Fatalf("after append: calls=%d added=%d removed=%d", calls, lastAdded, lastRemoved)
	}

	_ = b.Drain(2)
	if calls != 2 || lastAdded != 0 || lastRemoved != 2 {
		t.Fatalf("after drain: calls=%d added=%d removed=%d", calls, lastAdded, lastRemoved)
	}
}

func TestRemoveCbStopsFutureInvocations(t *testing.T) {
	b := New()
	var calls int
	h := b.AddCb(func(*Buffer, int, int, int) { calls++ })

	_ = b.Append([]byte("a"))
	b.RemoveCb(h)
	_ = b.Append([]byte("b"))

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestAppendBufferMovesEntireSource(t *testing.T) {
	src := New()
	dst := New()
	_ = src.Append([]byte("payload"))

	if err := dst.AppendBuffer(src); err != nil {
		t.Fatalf("AppendBuffer: %v", err)
	}
	if src.Length() != 0 {
		t.Fatalf("src should be drained, got length %d", src.Length())
	}
	out := make([]byte, dst.Length())
	_, _ = dst.CopyOut(0, out)
	if string(out) != "payload" {
		t.Fatalf("dst = %q", out)
	}
}
