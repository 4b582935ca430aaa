package chainfs

import "fmt"

// DriverError is the error interface returned by the public API. Every error
// is either one of the Err* constants below or wraps exactly one of them, so
// callers can always dispatch with [errors.Is].
type DriverError interface {
	error
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

// Error is an errno-like error code with a fixed message.
type Error string

const ErrAlreadyInProgress = Error("Operation already in progress")
const ErrArgumentOutOfRange = Error("Numerical argument out of domain")
const ErrBusy = Error("Device or resource busy")
const ErrDeviceTooSmall = Error("Device too small for file system")
const ErrExists = Error("File exists")
const ErrFileSystemCorrupted = Error("Structure needs cleaning")
const ErrFileTooLarge = Error("File too large")
const ErrInvalidArgument = Error("Invalid argument")
const ErrInvalidFileDescriptor = Error("Bad file descriptor")
const ErrIOFailed = Error("Input/output error")
const ErrNameTooLong = Error("File name too long")
const ErrNoSpaceOnDevice = Error("No space left on device")
const ErrNotFound = Error("No such file or directory")
const ErrNotMounted = Error("File system not mounted")
const ErrTooManyOpenFiles = Error("Too many open files in system")

func (e Error) Error() string {
	return string(e)
}

// WithMessage returns a new error that appends detail to this error's message.
// The result still matches the original error under [errors.Is].
func (e Error) WithMessage(message string) DriverError {
	return wrappedError{
		message: fmt.Sprintf("%s: %s", e.Error(), message),
		parents: []error{e},
	}
}

// Wrap returns a new error with `err` as its cause. The result matches both
// this error and `err` under [errors.Is].
func (e Error) Wrap(err error) DriverError {
	return wrappedError{
		message: fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		parents: []error{e, err},
	}
}

// -----------------------------------------------------------------------------

type wrappedError struct {
	message string
	parents []error
}

func (e wrappedError) Error() string {
	return e.message
}

func (e wrappedError) WithMessage(message string) DriverError {
	return wrappedError{
		message: fmt.Sprintf("%s: %s", e.message, message),
		parents: []error{e},
	}
}

func (e wrappedError) Wrap(err error) DriverError {
	return wrappedError{
		message: fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		parents: []error{e, err},
	}
}

func (e wrappedError) Unwrap() []error {
	return e.parents
}
