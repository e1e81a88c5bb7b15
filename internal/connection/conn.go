//go:build linux

package connection

import (
	"bytes"
	"net"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	custom_err "github.com/Viet-ph/epoll-go/internal/error"
)

// Conn is a non-blocking client socket with a queue of outbound data.
type Conn struct {
	Fd         int
	ID         uuid.UUID
	writeQueue *queue.Queue
	// headOff counts the bytes of the queue head already written.
	headOff    int
	remoteIP   net.IP
	remotePort int
	readSize   int
}

// NewConn takes ownership of connFd, an accepted socket with peer address sa.
// readSize is the chunk size used by Read.
func NewConn(connFd int, sa unix.Sockaddr, readSize int) (*Conn, error) {
	var (
		ip   net.IP
		port int
	)
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		ip = net.IPv4(addr.Addr[0], addr.Addr[1], addr.Addr[2], addr.Addr[3])
		port = addr.Port
	case *unix.SockaddrInet6:
		ip = net.IP(addr.Addr[:])
		port = addr.Port
	case *unix.SockaddrUnix:
		// unix sockets carry no ip or port
	default:
		return nil, custom_err.ErrorUnknownAddress
	}
	if readSize <= 0 {
		readSize = 1024
	}
	return &Conn{
		Fd:         connFd,
		ID:         uuid.New(),
		writeQueue: queue.New(),
		remoteIP:   ip,
		remotePort: port,
		readSize:   readSize,
	}, nil
}

// Read drains everything currently available on the socket into buf and
// returns the number of bytes read. It returns ErrorClientDisconnected once
// the peer has closed or reset the connection, after buf has received any
// data that arrived before the close.
func (conn *Conn) Read(buf *bytes.Buffer) (int, error) {
	temp := make([]byte, conn.readSize)
	totalLength := 0
	for {
		bytesRead, err := unix.Read(conn.Fd, temp)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			// Nothing left in the kernel buffer, return to the event loop.
			return totalLength, nil
		case err == unix.ECONNRESET || err == unix.EPIPE:
			return totalLength, custom_err.ErrorClientDisconnected
		case err != nil:
			return totalLength, custom_err.ErrorReadingSocket
		case bytesRead == 0:
			// Orderly shutdown by the peer.
			return totalLength, custom_err.ErrorClientDisconnected
		}

		buf.Write(temp[:bytesRead])
		totalLength += bytesRead
	}
}

// DrainQueue writes queued data until the queue is empty or the socket would
// block. It returns ErrorNotFullyWritten when data remains queued.
func (conn *Conn) DrainQueue() error {
	for conn.writeQueue.Length() > 0 {
		data := conn.writeQueue.Peek().([]byte)[conn.headOff:]
		n, err := unix.Write(conn.Fd, data)
		if err != nil {
			switch err {
			case unix.EINTR:
				continue
			case unix.EAGAIN:
				// Socket is not ready for writing, wait for a writable event
				return custom_err.ErrorNotFullyWritten
			case unix.EPIPE, unix.ECONNRESET:
				return custom_err.ErrorClientDisconnected
			}
			return err
		}
		if n < len(data) {
			// Partial write, the rest of the head goes out on the next drain
			conn.headOff += n
			return custom_err.ErrorNotFullyWritten
		}

		conn.writeQueue.Remove()
		conn.headOff = 0
	}

	return nil
}

// QueueDatas appends data to the outbound queue and tries to write it
// immediately. It returns ErrorNotFullyWritten when some of it is still queued.
func (conn *Conn) QueueDatas(datas ...[]byte) error {
	for _, data := range datas {
		if len(data) > 0 {
			conn.writeQueue.Add(data)
		}
	}
	return conn.DrainQueue()
}

// Pending reports the number of queued, unwritten buffers.
func (conn *Conn) Pending() int {
	return conn.writeQueue.Length()
}

func (conn *Conn) Close() error {
	return unix.Close(conn.Fd)
}

func (conn *Conn) GetRemoteAddress() (net.IP, int) {
	return conn.remoteIP, conn.remotePort
}
