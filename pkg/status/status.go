// Package status defines the outcome taxonomy shared between the engines and
// the boundary layer, together with the mapping from each outcome code to a
// POSIX errno and a default human-readable message.
package status

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Code classifies the outcome of an engine operation.
type Code int

const (
	OK Code = iota
	InvalidArgument
	ResourceUnavailable
	Unimplemented
	Exception
	OperationCanceled
	PermissionDenied
)

// Status carries an outcome code plus an optional descriptive message. It
// implements error so engines can return it through ordinary error channels.
// A nil *Status reads as OK.
type Status struct {
	code Code
	msg  string
}

// New returns a Status with the given code and message.
func New(code Code, msg string) *Status {
	return &Status{code: code, msg: msg}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(code Code, format string, args ...interface{}) *Status {
	return &Status{code: code, msg: fmt.Sprintf(format, args...)}
}

// Exceptionf builds an Exception status, the kind used for failures that do
// not fit the taxonomy (recovered panics, unknown engine errors).
func Exceptionf(format string, args ...interface{}) *Status {
	return Newf(Exception, format, args...)
}

// Code returns the outcome code.
func (s *Status) Code() Code {
	if s == nil {
		return OK
	}
	return s.code
}

// Message returns the descriptive text, which may be empty.
func (s *Status) Message() string {
	if s == nil {
		return ""
	}
	return s.msg
}

func (s *Status) Error() string {
	if s == nil {
		return "OK"
	}
	if s.msg == "" {
		return s.code.String()
	}
	return s.code.String() + ": " + s.msg
}

// Is matches statuses by code so errors.Is works across wrapped values.
func (s *Status) Is(target error) bool {
	t, ok := target.(*Status)
	return ok && s.Code() == t.Code()
}

// FromError normalizes an arbitrary error into a Status. A nil error maps to
// OK; a *Status passes through; anything else becomes an Exception carrying
// the error's text.
func FromError(err error) *Status {
	if err == nil {
		return nil
	}
	if st, ok := err.(*Status); ok {
		return st
	}
	return New(Exception, err.Error())
}

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case InvalidArgument:
		return "InvalidArgument"
	case ResourceUnavailable:
		return "ResourceUnavailable"
	case Unimplemented:
		return "Unimplemented"
	case Exception:
		return "Exception"
	case OperationCanceled:
		return "OperationCanceled"
	case PermissionDenied:
		return "PermissionDenied"
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Errno maps an outcome code to its POSIX errno and default message. OK maps
// to errno 0 with no message; codes outside the taxonomy map to ENOSYS.
func (c Code) Errno() (int, string) {
	switch c {
	case OK:
		return 0, ""
	case InvalidArgument:
		return int(unix.EINVAL), "Invalid argument"
	case ResourceUnavailable:
		return int(unix.EAGAIN), "Resource temporarily unavailable"
	case Unimplemented:
		return int(unix.ENOSYS), "Function not implemented"
	case Exception:
		return int(unix.EINTR), "Exception raised"
	case OperationCanceled:
		return int(unix.EINTR), "Operation canceled"
	case PermissionDenied:
		return int(unix.EACCES), "Permission denied"
	}
	return int(unix.ENOSYS), "Error: unrecognised code"
}
