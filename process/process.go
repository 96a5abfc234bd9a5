// Package process defines the capabilities the toolkit needs from a target process
package process

import "errors"

const (
	// DefaultMaxModules bounds module enumeration
	DefaultMaxModules = 1024

	// DefaultStringLength is the character cap for unsized string reads
	DefaultStringLength = 1024
)

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	ErrInvalidPointer = errors.New("invalid pointer read")

	// ErrNullPointer is returned when a pointer chain hits a zero address
	ErrNullPointer = errors.New("null pointer in chain")

	ErrModuleNotFound = errors.New("module not found")
)
