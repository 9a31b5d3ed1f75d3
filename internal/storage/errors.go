package storage

// storageError is a sentinel error that can classify itself.
type storageError struct {
	msg      string
	notFound bool
}

func (e *storageError) Error() string { return e.msg }

// NotFound lets callers outside this package classify the error without
// importing it.
func (e *storageError) NotFound() bool { return e.notFound }

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound error = &storageError{msg: "storage: record not found", notFound: true}

	// ErrConflict is returned when an append collides with a concurrent
	// writer (same wallet, program and sequence).
	ErrConflict error = &storageError{msg: "storage: version conflict"}
)
