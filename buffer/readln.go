package buffer

// ReadLine drains and returns one line (excluding its terminator) per
// style, or ok=false if no complete line is yet buffered. Grounded on
// evbuffer.h's evbuffer_readln, layered on SearchEOL plus CopyOut/Drain.
func (b *Buffer) ReadLine(style eolStyle) (line []byte, ok bool, err error) {
	pos, eolLen, serr := b.SearchEOL(0, style)
	if serr == ErrNotFound {
		return nil, false, nil
	}
	if serr != nil {
		return nil, false, serr
	}

	line = make([]byte, pos.offset)
	if _, err := b.CopyOut(0, line); err != nil && err != ErrShort {
		return nil, false, err
	}
	if err := b.Drain(pos.offset + eolLen); err != nil {
		return nil, false, err
	}
	return line, true, nil
}
