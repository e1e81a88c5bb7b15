package config

import "time"

var (
	Host string = "0.0.0.0"
	Port int    = 7878

	// Backlog is the listen(2) backlog.
	Backlog = 128

	DefaultMessageSize = 1024

	// SizeHint is passed to epoll.Create.
	SizeHint = 100
	// MaxEvents bounds the events taken from one epoll wait.
	MaxEvents = 128
	// PollTimeout bounds each wait; negative blocks until an event arrives.
	PollTimeout = 100 * time.Millisecond

	// EdgeTriggered registers client sockets edge-triggered.
	EdgeTriggered = false

	Debug = false
)
