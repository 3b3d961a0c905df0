package fsm

import "errors"

// Sentinel errors for the public fsm API, matching the taxonomy spec.md §7
// describes: NotFound, OutOfSpace, OutOfInodes, InvalidArgument, IOError.
var (
	// ErrNotFound is returned when an inode load lands on a slot with
	// fileType <= 0 (free/unused), or a directory lookup finds no entry.
	ErrNotFound = errors.New("fsm: not found")
	// ErrOutOfSpace is returned when the Sector Space Manager is exhausted.
	ErrOutOfSpace = errors.New("fsm: out of space")
	// ErrOutOfInodes is returned when the Inode Store has no free inode.
	ErrOutOfInodes = errors.New("fsm: out of inodes")
	// ErrInvalidArgument completes the taxonomy; no operation in this
	// package returns it. Names longer than 8 bytes are truncated by
	// encodeName rather than rejected.
	ErrInvalidArgument = errors.New("fsm: invalid argument")
	// ErrIOError completes the taxonomy; no operation in this package
	// returns or wraps it. Failures from the backing store (image,
	// inodestore) are returned to the caller as those packages report them.
	ErrIOError = errors.New("fsm: io error")
)
