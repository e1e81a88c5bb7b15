//go:build linux

package epoll

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrWakerClosed is returned by Wake and Drain after Close.
var ErrWakerClosed = errors.New("epoll: waker closed")

// Waker is an eventfd used purely to wake goroutines blocked in Wait. Register
// Fd for Readable on the Instance; Wake makes it ready and Drain resets it.
//
// Wake, Drain and Close may race one another; Close waits for an in-flight
// Wake or Drain, so neither ever touches a closed, possibly reused,
// descriptor.
type Waker struct {
	fd     int
	mu     sync.RWMutex
	closed bool
}

// NewWaker opens a non-blocking eventfd.
func NewWaker() (*Waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &Waker{fd: fd}, nil
}

// Fd returns the descriptor to register.
func (w *Waker) Fd() int {
	return w.fd
}

// Wake makes the descriptor readable. It is safe to call from any goroutine,
// and wakes issued before the next Drain coalesce.
func (w *Waker) Wake() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWakerClosed
	}

	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(w.fd, buf[:])
		switch err {
		case nil, unix.EAGAIN:
			// EAGAIN means the counter is saturated, which is still readable.
			return nil
		case unix.EINTR:
			continue
		default:
			return fmt.Errorf("eventfd write: %w", err)
		}
	}
}

// Drain resets the descriptor so it is no longer readable.
func (w *Waker) Drain() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWakerClosed
	}

	var buf [8]byte
	for {
		_, err := unix.Read(w.fd, buf[:])
		switch err {
		case nil, unix.EAGAIN:
			return nil
		case unix.EINTR:
			continue
		default:
			return fmt.Errorf("eventfd read: %w", err)
		}
	}
}

// Close releases the descriptor. It does not deregister it. Calls after the
// first return nil.
func (w *Waker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return unix.Close(w.fd)
}
