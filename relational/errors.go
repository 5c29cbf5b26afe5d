package relational

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match with errors.Is; messages carry the
// specifics.
var (
	// ErrSchemeViolation marks a row whose attributes differ from the
	// relation's scheme, or an operation combining relations with
	// incompatible schemes.
	ErrSchemeViolation = errors.New("scheme violation")

	// ErrStorage wraps an adapter-returned error (I/O, corruption,
	// missing file).
	ErrStorage = errors.New("storage error")

	// ErrSerialization marks a malformed plist on read or an
	// unserializable value on write.
	ErrSerialization = errors.New("serialization error")

	// ErrInvariantViolation marks an internal bug, such as a
	// willChange without a matching didChange.
	ErrInvariantViolation = errors.New("invariant violation")
)

// SchemeViolationf builds a scheme violation with detail.
func SchemeViolationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSchemeViolation, fmt.Sprintf(format, args...))
}

// StorageErrorf wraps an adapter error with context.
func StorageErrorf(err error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, fmt.Sprintf(format, args...), err)
}

// SerializationErrorf builds a serialization error with detail.
func SerializationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSerialization, fmt.Sprintf(format, args...))
}
