package journal

import "errors"

// Sentinel errors returned by Attach. Callers that see ErrBusy should treat
// the cache as disabled for this object and fall back to the remote. A
// header that does not match the remote object and corrupt fragment
// records are not reported as errors: Attach purges the journal and
// continues with an empty one.
var (
	// ErrNotFound is returned by Attach when ifExists is true and the
	// backing file does not exist.
	ErrNotFound = errors.New("journal: not found")

	// ErrInvalid is returned by Attach when ifExists is true and the
	// backing file is shorter than a journal header.
	ErrInvalid = errors.New("journal: invalid or truncated header")

	// ErrBusy is returned when another process already holds the
	// advisory write lock on this journal file.
	ErrBusy = errors.New("journal: locked by another process")

	// ErrClosed is returned by any operation performed after Detach.
	ErrClosed = errors.New("journal: detached")
)
