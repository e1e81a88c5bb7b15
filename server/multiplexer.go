//go:build linux

package server

import (
	"time"

	"github.com/Viet-ph/epoll-go/epoll"
)

// Iomultiplexer is the readiness-notification surface the event loop uses.
type Iomultiplexer interface {
	Register(fd int, interest epoll.Set) error
	Modify(fd int, interest epoll.Set) error
	Deregister(fd int) error
	Wait(maxEvents int, timeout time.Duration) ([]epoll.Event, error)
	Destroy() error
}

var _ Iomultiplexer = (*epoll.Instance)(nil)
