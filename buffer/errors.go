package buffer

import "errors"

var (
	// ErrFrozen is returned by an operation rejected because the buffer
	// end it would mutate is frozen (see Freeze/Unfreeze).
	ErrFrozen = errors.New("buffer: frozen")
	// ErrPosInvalid is returned when a Pos passed to CopyOutFrom no
	// longer refers to a valid location (the buffer was mutated since the
	// position was obtained), and by SearchEOL for an out-of-range start.
	ErrPosInvalid = errors.New("buffer: position invalidated by mutation")
	// ErrShort is returned by CopyOut when fewer than the requested bytes
	// are available; Remove treats it as success and returns the count.
	ErrShort = errors.New("buffer: fewer bytes available than requested")
	// ErrReserveCommitMismatch is returned when CommitSpace is passed
	// descriptors that do not match the most recent ReserveSpace call.
	ErrReserveCommitMismatch = errors.New("buffer: commit does not match reservation")
	// ErrNotFound is returned by Search when the needle is absent.
	ErrNotFound = errors.New("buffer: needle not found")
)
