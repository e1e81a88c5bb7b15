//go:build linux

package epoll

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// kernelBits maps each condition to its epoll_event.events bit.
var kernelBits = [numConditions]uint32{
	Readable:      unix.EPOLLIN,
	Priority:      unix.EPOLLPRI,
	Writable:      unix.EPOLLOUT,
	ReadNormal:    unix.EPOLLRDNORM,
	ReadBand:      unix.EPOLLRDBAND,
	WriteNormal:   unix.EPOLLWRNORM,
	WriteBand:     unix.EPOLLWRBAND,
	Message:       unix.EPOLLMSG,
	Errored:       unix.EPOLLERR,
	Hangup:        unix.EPOLLHUP,
	PeerClosed:    unix.EPOLLRDHUP,
	OneShot:       unix.EPOLLONESHOT,
	EdgeTriggered: unix.EPOLLET,
}

// knownBits is the union of every bit in kernelBits.
var knownBits = func() (mask uint32) {
	for _, bit := range kernelBits {
		mask |= bit
	}
	return
}()

// Encode returns the kernel bitmask for s.
//
// It panics if s holds anything other than declared conditions, which can only
// happen when a Set is converted from an arbitrary integer. The Instance
// methods validate their Set arguments and return ErrInvalidArgument instead.
func Encode(s Set) uint32 {
	if !s.valid() {
		panic(fmt.Sprintf("epoll: set %s holds undeclared conditions", s))
	}
	var mask uint32
	for c := Condition(0); c < numConditions; c++ {
		if s&(1<<c) != 0 {
			mask |= kernelBits[c]
		}
	}
	return mask
}

// Decode returns the set of declared conditions whose bits are present in
// mask.
//
// Bits that belong to no declared condition are dropped without error. This is
// deliberate: a newer kernel may report flags this package does not model, and
// a caller receiving them can do nothing with them. Use UnknownBits to inspect
// what was dropped.
func Decode(mask uint32) Set {
	var s Set
	for c := Condition(0); c < numConditions; c++ {
		if mask&kernelBits[c] != 0 {
			s |= 1 << c
		}
	}
	return s
}

// UnknownBits returns the bits of mask that Decode drops.
func UnknownBits(mask uint32) uint32 {
	return mask &^ knownBits
}
