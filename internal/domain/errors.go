package domain

import "errors"

// Domain errors.
var (
	// ErrStorageUnavailable is returned when the catalog store cannot be
	// reached or a query against it fails.
	ErrStorageUnavailable = errors.New("catalog storage unavailable")

	// ErrVideoNotFound is returned when a video cannot be found.
	ErrVideoNotFound = errors.New("video not found")

	// ErrUploaderNotFound is returned when an uploader cannot be found.
	ErrUploaderNotFound = errors.New("uploader not found")
)

// StorageError wraps a failed store operation. It matches both
// ErrStorageUnavailable and the underlying cause with errors.Is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageUnavailable, e.Err}
}

// NewStorageError creates a new StorageError. A nil err yields nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
