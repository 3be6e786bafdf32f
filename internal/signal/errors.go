package signal

import "errors"

var (
	// ErrNilBackend is returned when constructing a signal without a backend.
	ErrNilBackend = errors.New("signal: backend must not be nil")

	// ErrNoValue is returned when reading a soft backend that has never
	// been written.
	ErrNoValue = errors.New("signal: no value has been written")
)
