//go:build linux

package epoll

import (
	"math"
	"time"

	"github.com/joeycumines/logiface"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// MaxEvents is the largest maxEvents accepted by Wait, the kernel's own bound
// (INT_MAX / sizeof(struct epoll_event)).
const MaxEvents = math.MaxInt32 / 12

// waitBatch caps the kernel buffer of one Wait. Larger maxEvents are accepted
// but a single call reports at most waitBatch events; the rest stay ready for
// the next call.
const waitBatch = 1024

// Indefinitely, passed as a Wait timeout, blocks until an event arrives. Any
// negative duration behaves the same.
const Indefinitely time.Duration = -1

// Seams for tests.
var (
	epollCreate1 = unix.EpollCreate1
	epollCtl     = unix.EpollCtl
	epollWait    = unix.EpollWait
	closeFd      = unix.Close
)

// Event reports one ready descriptor. It is only meaningful while the caller
// processes the Wait result it came from.
type Event struct {
	Fd    int
	Ready Set
}

// Instance owns one kernel epoll context.
//
// An Instance holds no record of its registrations; all of its methods are
// safe for concurrent use and none of them take a lock, so goroutines blocked
// in Wait do not serialize one another or the control operations.
type Instance struct {
	fd         int
	destroyed  atomic.Bool
	log        *logiface.Logger[logiface.Event]
	interrupts bool
}

// Create opens a new epoll context.
//
// sizeHint is advisory and must not be negative. The kernel has ignored the
// size of epoll_create since Linux 2.6.8, so it is only validated.
func Create(sizeHint int, opts ...Option) (*Instance, error) {
	if sizeHint < 0 {
		return nil, invalidArgument(opCreate, -1, nil)
	}
	o := resolveOptions(opts)

	fd, err := epollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, syscallError(opCreate, -1, err)
	}

	o.log.Debug().
		Int("epfd", fd).
		Int("size_hint", sizeHint).
		Log("epoll instance created")

	return &Instance{
		fd:         fd,
		log:        o.log,
		interrupts: o.interrupts,
	}, nil
}

// Register starts monitoring fd for interest. It fails with ErrConflict if fd
// is already registered on this instance.
func (ep *Instance) Register(fd int, interest Set) error {
	return ep.ctl(opAdd, unix.EPOLL_CTL_ADD, fd, interest)
}

// Modify replaces the interest set of a registered fd. The new set supersedes
// the old one entirely. An empty set keeps fd registered and stops the
// requested conditions, but Errored and Hangup are still delivered; use
// Deregister to silence fd entirely. It fails with ErrNotFound if fd is not
// registered.
func (ep *Instance) Modify(fd int, interest Set) error {
	return ep.ctl(opMod, unix.EPOLL_CTL_MOD, fd, interest)
}

// Deregister stops monitoring fd. It fails with ErrNotFound if fd is not
// registered, including when it was already deregistered.
func (ep *Instance) Deregister(fd int) error {
	return ep.ctl(opDel, unix.EPOLL_CTL_DEL, fd, 0)
}

func (ep *Instance) ctl(op string, ctlOp int, fd int, interest Set) error {
	if ep.destroyed.Load() {
		return invalidArgument(op, fd, ErrClosed)
	}
	if fd < 0 || fd > math.MaxInt32 || !interest.valid() {
		return invalidArgument(op, fd, nil)
	}

	var event *unix.EpollEvent
	if ctlOp != unix.EPOLL_CTL_DEL {
		event = &unix.EpollEvent{
			Events: Encode(interest),
			Fd:     int32(fd),
		}
	}

	if err := epollCtl(ep.fd, ctlOp, fd, event); err != nil {
		ep.log.Debug().
			Str("op", op).
			Int("fd", fd).
			Err(err).
			Log("epoll control failed")
		return syscallError(op, fd, err)
	}

	ep.log.Trace().
		Str("op", op).
		Int("fd", fd).
		Stringer("interest", interest).
		Log("epoll control")
	return nil
}

// Wait blocks until at least one registered descriptor is ready, timeout
// elapses, or an error occurs, and returns at most maxEvents events, and never
// more than 1024 in one call. Descriptors ready beyond that are reported by
// later calls. Each call allocates a buffer of that many events.
//
// A negative timeout blocks indefinitely and zero polls without blocking.
// Positive timeouts are rounded up to whole milliseconds. When the timeout
// expires Wait returns an empty slice and a nil error. The order of events is
// chosen by the kernel.
//
// Interruption by a signal is retried with the remaining time, unless the
// Instance was created WithInterrupts, in which case ErrInterrupted is
// returned.
func (ep *Instance) Wait(maxEvents int, timeout time.Duration) ([]Event, error) {
	if ep.destroyed.Load() {
		return nil, invalidArgument(opWait, -1, ErrClosed)
	}
	if maxEvents <= 0 || maxEvents > MaxEvents {
		return nil, invalidArgument(opWait, -1, nil)
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	raw := make([]unix.EpollEvent, min(maxEvents, waitBatch))
	for {
		n, err := epollWait(ep.fd, raw, timeoutMillis(timeout))
		if err == nil {
			events := make([]Event, n)
			for i := range events {
				events[i] = Event{
					Fd:    int(raw[i].Fd),
					Ready: Decode(raw[i].Events),
				}
			}
			return events, nil
		}

		if err != unix.EINTR || ep.interrupts {
			return nil, syscallError(opWait, -1, err)
		}

		ep.log.Debug().Log("epoll wait interrupted, retrying")
		if timeout > 0 {
			timeout = time.Until(deadline)
			if timeout <= 0 {
				return []Event{}, nil
			}
		}
	}
}

// timeoutMillis converts a Wait timeout to the epoll_wait argument.
func timeoutMillis(timeout time.Duration) int {
	switch {
	case timeout < 0:
		return -1
	case timeout == 0:
		return 0
	}
	ms := (timeout + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}

// Destroy closes the epoll context. Every registration vanishes with it.
// Subsequent calls on the Instance, Destroy included, fail with ErrClosed.
//
// Destroy does not wake goroutines blocked in Wait; wake them first, for
// example through a registered Waker.
func (ep *Instance) Destroy() error {
	if !ep.destroyed.CompareAndSwap(false, true) {
		return invalidArgument(opClose, -1, ErrClosed)
	}
	if err := closeFd(ep.fd); err != nil {
		return syscallError(opClose, -1, err)
	}
	ep.log.Debug().Int("epfd", ep.fd).Log("epoll instance destroyed")
	return nil
}

// Close is Destroy, for use as an io.Closer.
func (ep *Instance) Close() error {
	return ep.Destroy()
}
