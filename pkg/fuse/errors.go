// See the file LICENSE for copyright and licensing information.

package fuse

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// An ErrorNumber is an error with a specific error number.
//
// Operations may return an error value that implements ErrorNumber to
// control what specific error number (errno) to return.
type ErrorNumber interface {
	// Errno returns the the error number (errno) for this error.
	Errno() Errno
}

// Errno implements Error and ErrorNumber using a syscall.Errno.
type Errno syscall.Errno

var _ = ErrorNumber(Errno(0))
var _ = error(Errno(0))

const (
	// ENOSYS indicates that the call is not supported.
	ENOSYS = Errno(unix.ENOSYS)

	// EINTR indicates request was interrupted by an InterruptRequest.
	EINTR = Errno(unix.EINTR)

	// EPROTO answers an INIT from a kernel that is too old.
	EPROTO = Errno(unix.EPROTO)

	EEXIST    = Errno(unix.EEXIST)
	ENOTSUP   = Errno(unix.ENOTSUP)
	ERANGE    = Errno(unix.ERANGE)
	EIO       = Errno(unix.EIO)
	ENOENT    = Errno(unix.ENOENT)
	EPERM     = Errno(unix.EPERM)
	EACCES    = Errno(unix.EACCES)
	ENOTDIR   = Errno(unix.ENOTDIR)
	EISDIR    = Errno(unix.EISDIR)
	ENOTEMPTY = Errno(unix.ENOTEMPTY)
	EINVAL    = Errno(unix.EINVAL)
	EBADF     = Errno(unix.EBADF)
	ENODATA   = Errno(unix.ENODATA)
	ESTALE    = Errno(unix.ESTALE)
)

// DefaultErrno is the errno used when error returned does not
// implement ErrorNumber.
const DefaultErrno = EIO

var errnoNames = map[Errno]string{
	ENOSYS:    "ENOSYS",
	EINTR:     "EINTR",
	EPROTO:    "EPROTO",
	EEXIST:    "EEXIST",
	ENOTSUP:   "ENOTSUP",
	ERANGE:    "ERANGE",
	EIO:       "EIO",
	ENOENT:    "ENOENT",
	EPERM:     "EPERM",
	EACCES:    "EACCES",
	ENOTDIR:   "ENOTDIR",
	EISDIR:    "EISDIR",
	ENOTEMPTY: "ENOTEMPTY",
	EINVAL:    "EINVAL",
	EBADF:     "EBADF",
	ENODATA:   "ENODATA",
	ESTALE:    "ESTALE",
}

func (e Errno) Errno() Errno {
	return e
}

func (e Errno) String() string {
	return syscall.Errno(e).Error()
}

func (e Errno) Error() string {
	return syscall.Errno(e).Error()
}

// ErrnoName returns the short non-numeric identifier for this errno.
// For example, "EIO".
func (e Errno) ErrnoName() string {
	s := errnoNames[e]
	if s == "" {
		s = fmt.Sprint(int32(e))
	}
	return s
}

func (e Errno) MarshalText() ([]byte, error) {
	s := e.ErrnoName()
	return []byte(s), nil
}

// ToErrno maps an error returned by a file system operation to the
// errno sent to the kernel. A nil error maps to 0. ErrorNumber and
// syscall.Errno values, wrapped or not, pick the errno; anything else
// is DefaultErrno, as is a zero errno from a non-nil error.
func ToErrno(err error) Errno {
	if err == nil {
		return 0
	}
	var errno Errno
	var en ErrorNumber
	var se syscall.Errno
	switch {
	case errors.As(err, &en):
		errno = en.Errno()
	case errors.As(err, &se):
		errno = Errno(se)
	}
	if errno == 0 {
		return DefaultErrno
	}
	return errno
}

// OldVersionError is returned by NegotiateProtocol for kernels older
// than MinProtocol.
type OldVersionError struct {
	Kernel     Protocol
	LibraryMin Protocol
}

func (e *OldVersionError) Error() string {
	return fmt.Sprintf("kernel FUSE version is too old: %v < %v", e.Kernel, e.LibraryMin)
}

func (e *OldVersionError) Errno() Errno {
	return EPROTO
}

// DecodeErrorKind classifies a message that could not be decoded.
type DecodeErrorKind int

const (
	// Malformed messages are too short, carry a length that disagrees
	// with the bytes read, or have a payload of the wrong shape.
	Malformed DecodeErrorKind = iota
	// UnsupportedOperation messages carry an opcode this package does
	// not know.
	UnsupportedOperation
)

func (k DecodeErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case UnsupportedOperation:
		return "unsupported"
	}
	return "invalid"
}

// A DecodeError reports a kernel message DecodeRequest rejected. When
// HasID is set the header was readable and ID and Opcode identify the
// request, so it can still be answered.
type DecodeError struct {
	Kind   DecodeErrorKind
	HasID  bool
	ID     RequestID
	Opcode Opcode
	Reason string
}

func (e *DecodeError) Error() string {
	if !e.HasID {
		return fmt.Sprintf("fuse: %v message: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("fuse: %v message id=%v op=%v: %s", e.Kind, e.ID, e.Opcode, e.Reason)
}

// Errno returns the errno a decode failure is answered with.
func (e *DecodeError) Errno() Errno {
	if e.Kind == UnsupportedOperation {
		return ENOSYS
	}
	return EIO
}

// ChannelErrorKind classifies a device failure.
type ChannelErrorKind int

const (
	// Closed means the device is gone: unmounted, aborted or closed
	// locally.
	Closed ChannelErrorKind = iota
	// Interrupted means the read was cut short and may be retried.
	Interrupted
	// Fatal means the device can no longer be trusted.
	Fatal
	// NotFound means the kernel no longer knows the request a reply
	// was written for, usually because it was interrupted.
	NotFound
)

func (k ChannelErrorKind) String() string {
	switch k {
	case Closed:
		return "closed"
	case Interrupted:
		return "interrupted"
	case Fatal:
		return "fatal"
	case NotFound:
		return "not found"
	}
	return "invalid"
}

// Sentinels matched with errors.Is against a *ChannelError.
var (
	ErrClosed      = errors.New("fuse: channel closed")
	ErrInterrupted = errors.New("fuse: channel read interrupted")
	ErrFatal       = errors.New("fuse: channel failed")
	ErrNotFound    = errors.New("fuse: request no longer known to the kernel")
)

// A ChannelError is returned by Channel operations.
type ChannelError struct {
	Kind ChannelErrorKind
	Op   string
	Err  error
}

func (e *ChannelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fuse: %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("fuse: %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *ChannelError) Is(target error) bool {
	switch target {
	case ErrClosed:
		return e.Kind == Closed
	case ErrInterrupted:
		return e.Kind == Interrupted
	case ErrFatal:
		return e.Kind == Fatal
	case ErrNotFound:
		return e.Kind == NotFound
	}
	return false
}

type bugShortKernelWrite struct {
	Written int64
	Length  int64
	Error   string
	Stack   string
}

func (b bugShortKernelWrite) String() string {
	return fmt.Sprintf("short kernel write: written=%d/%d error=%q stack=\n%s", b.Written, b.Length, b.Error, b.Stack)
}

// safe to call even with nil error
func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
