package serialization

import "errors"

var (
	// ErrUnsupportedVersion is returned for artifacts written by a
	// format version this build does not know how to read.
	ErrUnsupportedVersion = errors.New("serialization: unsupported format version")

	// ErrMalformed is returned when a dictionary is missing required
	// fields or holds values of the wrong type.
	ErrMalformed = errors.New("serialization: malformed dictionary")

	// ErrUnknownOperation is returned when a node record names an
	// operation this build has no kernel for.
	ErrUnknownOperation = errors.New("serialization: unknown operation")
)
