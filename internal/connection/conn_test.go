//go:build linux

package connection_test

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/Viet-ph/epoll-go/internal/connection"
	custom_err "github.com/Viet-ph/epoll-go/internal/error"
)

// newPair returns a Conn over one end of a non-blocking socketpair, and the
// other end.
func newPair(t *testing.T) (*connection.Conn, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	conn, err := connection.NewConn(fds[0], &unix.SockaddrUnix{}, 16)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		_ = unix.Close(fds[1])
	})
	return conn, fds[1]
}

func TestNewConn_address(t *testing.T) {
	conn, err := connection.NewConn(-1, &unix.SockaddrInet4{Port: 4242, Addr: [4]byte{127, 0, 0, 1}}, 0)
	require.NoError(t, err)
	ip, port := conn.GetRemoteAddress()
	assert.Equal(t, "127.0.0.1", ip.String())
	assert.Equal(t, 4242, port)
	assert.NotEqual(t, uuid.Nil, conn.ID)

	other, err := connection.NewConn(-1, &unix.SockaddrInet6{Port: 1}, 0)
	require.NoError(t, err)
	assert.NotEqual(t, conn.ID, other.ID)

	_, err = connection.NewConn(-1, &unix.SockaddrNetlink{}, 0)
	assert.ErrorIs(t, err, custom_err.ErrorUnknownAddress)
}

func TestConn_readDrainsAvailable(t *testing.T) {
	conn, peer := newPair(t)
	payload := bytes.Repeat([]byte("abcdefgh"), 10)
	_, err := unix.Write(peer, payload)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := conn.Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf.Bytes())

	// nothing pending
	buf.Reset()
	n, err = conn.Read(&buf)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConn_readDetectsClose(t *testing.T) {
	conn, peer := newPair(t)
	_, err := unix.Write(peer, []byte("bye"))
	require.NoError(t, err)
	require.NoError(t, unix.Shutdown(peer, unix.SHUT_WR))

	var buf bytes.Buffer
	n, err := conn.Read(&buf)
	assert.ErrorIs(t, err, custom_err.ErrorClientDisconnected)
	assert.Equal(t, 3, n)
	assert.Equal(t, "bye", buf.String())
}

func TestConn_queueWritesImmediately(t *testing.T) {
	conn, peer := newPair(t)
	require.NoError(t, conn.QueueDatas([]byte("one "), nil, []byte("two")))
	assert.Zero(t, conn.Pending())

	got := make([]byte, 32)
	n, err := unix.Read(peer, got)
	require.NoError(t, err)
	assert.Equal(t, "one two", string(got[:n]))
}

func TestConn_partialWriteKeepsOrder(t *testing.T) {
	conn, peer := newPair(t)
	require.NoError(t, unix.SetsockoptInt(conn.Fd, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))

	first := make([]byte, 1<<20)
	for i := range first {
		first[i] = byte(i % 251)
	}
	second := []byte("tail")
	err := conn.QueueDatas(first, second)
	require.ErrorIs(t, err, custom_err.ErrorNotFullyWritten)
	require.Positive(t, conn.Pending())

	var received bytes.Buffer
	chunk := make([]byte, 64<<10)
	for {
		n, rerr := unix.Read(peer, chunk)
		if rerr == nil {
			received.Write(chunk[:n])
		}
		err = conn.DrainQueue()
		if err == nil {
			break
		}
		require.ErrorIs(t, err, custom_err.ErrorNotFullyWritten)
	}
	for {
		n, rerr := unix.Read(peer, chunk)
		if rerr != nil || n == 0 {
			break
		}
		received.Write(chunk[:n])
	}

	assert.Zero(t, conn.Pending())
	require.Equal(t, len(first)+len(second), received.Len())
	assert.True(t, bytes.Equal(first, received.Bytes()[:len(first)]), "head resumed at the wrong offset")
	assert.Equal(t, second, received.Bytes()[len(first):])
}

func TestConn_writeToClosedPeer(t *testing.T) {
	conn, peer := newPair(t)
	require.NoError(t, unix.Close(peer))

	err := conn.QueueDatas([]byte("lost"))
	assert.ErrorIs(t, err, custom_err.ErrorClientDisconnected)
}
