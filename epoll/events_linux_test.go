//go:build linux

package epoll

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestKernelBits_distinctSingleBits(t *testing.T) {
	var union uint32
	for c := Condition(0); c < numConditions; c++ {
		bit := kernelBits[c]
		require.Equal(t, 1, bits.OnesCount32(bit), "condition %s", c)
		require.Zero(t, union&bit, "condition %s shares a bit", c)
		union |= bit
	}
	assert.Equal(t, knownBits, union)
}

func TestEncode_knownValues(t *testing.T) {
	assert.Equal(t, uint32(0), Encode(0))
	assert.Equal(t, uint32(unix.EPOLLIN), Encode(NewSet(Readable)))
	assert.Equal(t, uint32(unix.EPOLLIN|unix.EPOLLOUT|unix.EPOLLRDHUP), Encode(NewSet(Readable, Writable, PeerClosed)))
	assert.Equal(t, uint32(unix.EPOLLONESHOT|unix.EPOLLET), Encode(NewSet(OneShot, EdgeTriggered)))
}

func TestEncode_undeclaredPanics(t *testing.T) {
	assert.Panics(t, func() { Encode(Set(1 << 15)) })
}

func TestDecode_roundTrip(t *testing.T) {
	for s := Set(0); s <= allConditions; s++ {
		if got := Decode(Encode(s)); got != s {
			t.Fatalf("Decode(Encode(%s)) = %s", s, got)
		}
	}
}

func TestDecode_ignoresUnknownBits(t *testing.T) {
	unknown := ^knownBits
	require.NotZero(t, unknown)

	assert.True(t, Decode(unknown).IsEmpty())
	assert.Equal(t, NewSet(Readable, Hangup), Decode(unknown|unix.EPOLLIN|unix.EPOLLHUP))
	assert.Equal(t, unknown, UnknownBits(0xffffffff))
	assert.Zero(t, UnknownBits(Encode(allConditions)))

	// bits the kernel defines but this package does not model
	assert.True(t, Decode(unix.EPOLLEXCLUSIVE|unix.EPOLLWAKEUP).IsEmpty())
}
