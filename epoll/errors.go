//go:build linux

package epoll

import (
	"errors"
	"strconv"

	"golang.org/x/sys/unix"
)

// Error kinds. Every error returned by this package is an *OpError whose Kind
// is one of these, so callers branch with errors.Is.
var (
	ErrInvalidArgument = errors.New("epoll: invalid argument")
	ErrResource        = errors.New("epoll: kernel resource error")
	ErrConflict        = errors.New("epoll: descriptor already registered")
	ErrNotFound        = errors.New("epoll: descriptor not registered")
	ErrInterrupted     = errors.New("epoll: wait interrupted")
)

// ErrClosed is the cause reported, under ErrInvalidArgument, for any use of an
// Instance after Destroy.
var ErrClosed = errors.New("epoll: instance destroyed")

// Operation names carried by OpError.Op.
const (
	opCreate = "epoll_create"
	opAdd    = "epoll_ctl_add"
	opMod    = "epoll_ctl_mod"
	opDel    = "epoll_ctl_del"
	opWait   = "epoll_wait"
	opClose  = "epoll_close"
)

// OpError describes a failed operation.
type OpError struct {
	// Op is the originating operation, e.g. "epoll_ctl_add".
	Op string
	// Fd is the target descriptor, or -1 when the operation has none.
	Fd int
	// Kind is one of the Err* kinds of this package.
	Kind error
	// Err is the underlying cause, usually a unix.Errno. It may be nil when the
	// argument was rejected before reaching the kernel.
	Err error
}

func (e *OpError) Error() string {
	s := e.Op
	if e.Fd >= 0 {
		s += " fd=" + strconv.Itoa(e.Fd)
	}
	s += ": " + e.Kind.Error()
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the kind and the cause, so errors.Is matches either,
// e.g. ErrConflict as well as unix.EEXIST.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalidArgument(op string, fd int, cause error) *OpError {
	return &OpError{Op: op, Fd: fd, Kind: ErrInvalidArgument, Err: cause}
}

// syscallError wraps a kernel failure of op, classifying the errno.
func syscallError(op string, fd int, err error) *OpError {
	return &OpError{Op: op, Fd: fd, Kind: classify(op, err), Err: err}
}

// classify maps an errno reported by op onto an error kind.
func classify(op string, err error) error {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return ErrResource
	}
	switch errno {
	case unix.EEXIST:
		return ErrConflict
	case unix.ENOENT:
		return ErrNotFound
	case unix.EINTR:
		return ErrInterrupted
	case unix.EBADF, unix.EINVAL, unix.ELOOP, unix.EFAULT:
		return ErrInvalidArgument
	case unix.EPERM:
		// epoll_ctl reports EPERM for descriptors that do not support polling,
		// such as regular files; anywhere else it is a permission refusal.
		if op == opAdd || op == opMod || op == opDel {
			return ErrInvalidArgument
		}
		return ErrResource
	default:
		// EMFILE, ENFILE, ENOMEM, ENOSPC and anything not modeled.
		return ErrResource
	}
}
