//go:build linux

package server

import (
	"bytes"
	"errors"
	"fmt"
	"net"

	"github.com/joeycumines/logiface"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/Viet-ph/epoll-go/config"
	"github.com/Viet-ph/epoll-go/epoll"
	"github.com/Viet-ph/epoll-go/internal/connection"
	custom_err "github.com/Viet-ph/epoll-go/internal/error"
)

var (
	listenerInterest = epoll.NewSet(epoll.Readable)
	readInterest     = epoll.NewSet(epoll.Readable, epoll.PeerClosed)
	writeInterest    = epoll.NewSet(epoll.Writable, epoll.PeerClosed)
	// PeerClosed stays set once the peer shuts down, so a half-closed
	// connection waits on writability alone.
	drainInterest = epoll.NewSet(epoll.Writable)
)

// Option configures an AsyncServer.
type Option func(*AsyncServer)

// WithLogger sets the server logger, which is also handed to the epoll
// instance.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return func(server *AsyncServer) {
		server.log = log
	}
}

// Stats is a snapshot of server counters.
type Stats struct {
	Accepted    uint64
	Active      int64
	BytesEchoed uint64
}

// AsyncServer is a single-threaded TCP echo server driven by epoll readiness
// events. Every byte a client sends is written back to it.
type AsyncServer struct {
	iomultiplexer Iomultiplexer
	waker         *epoll.Waker
	fd            int
	addr          *net.TCPAddr
	clients       map[int]*connection.Conn
	draining      map[int]bool
	extraInterest epoll.Set
	log           *logiface.Logger[logiface.Event]

	running  *atomic.Bool
	stopping *atomic.Bool
	accepted *atomic.Uint64
	active   *atomic.Int64
	echoed   *atomic.Uint64
}

// NewAsyncServer binds and listens on config.Host:config.Port. Port 0 picks a
// free port; see Addr.
func NewAsyncServer(opts ...Option) (*AsyncServer, error) {
	server := &AsyncServer{
		fd:       -1,
		clients:  make(map[int]*connection.Conn),
		draining: make(map[int]bool),
		running:  atomic.NewBool(false),
		stopping: atomic.NewBool(false),
		accepted: atomic.NewUint64(0),
		active:   atomic.NewInt64(0),
		echoed:   atomic.NewUint64(0),
	}
	for _, opt := range opts {
		opt(server)
	}
	if config.EdgeTriggered {
		server.extraInterest = epoll.NewSet(epoll.EdgeTriggered)
	}

	if err := server.listen(); err != nil {
		server.close()
		return nil, err
	}

	ep, err := epoll.Create(config.SizeHint, epoll.WithLogger(server.log))
	if err != nil {
		server.close()
		return nil, fmt.Errorf("creating epoll instance: %w", err)
	}
	server.iomultiplexer = ep

	server.waker, err = epoll.NewWaker()
	if err != nil {
		server.close()
		return nil, err
	}

	if err := server.iomultiplexer.Register(server.fd, listenerInterest); err != nil {
		server.close()
		return nil, fmt.Errorf("adding listener to epoll: %w", err)
	}
	if err := server.iomultiplexer.Register(server.waker.Fd(), listenerInterest); err != nil {
		server.close()
		return nil, fmt.Errorf("adding waker to epoll: %w", err)
	}

	return server, nil
}

func (server *AsyncServer) listen() error {
	serverFD, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	server.fd = serverFD

	if err := unix.SetsockoptInt(serverFD, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("setsockopt: %w", err)
	}

	ip4 := net.ParseIP(config.Host).To4()
	if ip4 == nil {
		return fmt.Errorf("host %q is not an IPv4 address", config.Host)
	}
	if err := unix.Bind(serverFD, &unix.SockaddrInet4{
		Port: config.Port,
		Addr: [4]byte{ip4[0], ip4[1], ip4[2], ip4[3]},
	}); err != nil {
		return fmt.Errorf("bind: %w", err)
	}

	if err := unix.Listen(serverFD, config.Backlog); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	sa, err := unix.Getsockname(serverFD)
	if err != nil {
		return fmt.Errorf("getsockname: %w", err)
	}
	bound := sa.(*unix.SockaddrInet4)
	server.addr = &net.TCPAddr{IP: net.IP(bound.Addr[:]), Port: bound.Port}
	return nil
}

// Addr returns the address the server listens on.
func (server *AsyncServer) Addr() *net.TCPAddr {
	return server.addr
}

// Stats returns the current counters. It is safe to call concurrently with
// Start.
func (server *AsyncServer) Stats() Stats {
	return Stats{
		Accepted:    server.accepted.Load(),
		Active:      server.active.Load(),
		BytesEchoed: server.echoed.Load(),
	}
}

// Start runs the event loop until Shutdown is called or the epoll instance
// fails. On return every client is disconnected and all descriptors are
// closed; the server cannot be started again.
func (server *AsyncServer) Start() error {
	if !server.running.CompareAndSwap(false, true) {
		return custom_err.ErrorServerRunning
	}
	defer server.close()

	server.log.Info().
		Stringer("addr", server.addr).
		Bool("edge_triggered", config.EdgeTriggered).
		Log("ready to accept connections")

	for {
		events, err := server.iomultiplexer.Wait(config.MaxEvents, config.PollTimeout)
		if err != nil {
			server.log.Err().Err(err).Log("epoll wait failed")
			return err
		}
		if len(events) > 0 {
			server.log.Trace().Int("events", len(events)).Log("polled")
		}

		stop := false
		for _, event := range events {
			switch event.Fd {
			case server.waker.Fd():
				if err := server.waker.Drain(); err != nil {
					server.log.Warning().Err(err).Log("draining waker")
				}
				// Shutdown writes to the waker after setting stopping, so
				// once its wakeup is seen the waker is safe to close.
				stop = server.stopping.Load()
			case server.fd:
				server.acceptNewConnections()
			default:
				server.handleEvent(event)
			}
		}
		if stop {
			break
		}
	}

	server.log.Info().
		Int64("clients", server.active.Load()).
		Log("shutting down")
	return nil
}

// Shutdown asks a running Start to return. It may be called from any
// goroutine, and only the first call has an effect. Start returns once it has
// observed the wakeup; if Start already returned, Shutdown reports
// epoll.ErrWakerClosed.
func (server *AsyncServer) Shutdown() error {
	if !server.stopping.CompareAndSwap(false, true) {
		return custom_err.ErrorServerClosed
	}
	return server.waker.Wake()
}

func (server *AsyncServer) acceptNewConnections() {
	for {
		connFD, sa, err := unix.Accept4(server.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EINTR || err == unix.ECONNABORTED {
				continue
			}
			server.log.Warning().Err(err).Log("error accepting connection")
			return
		}

		conn, err := connection.NewConn(connFD, sa, config.DefaultMessageSize)
		if err != nil {
			server.log.Warning().Err(err).Log("error creating connection")
			unix.Close(connFD)
			continue
		}

		if err := server.iomultiplexer.Register(connFD, readInterest|server.extraInterest); err != nil {
			server.log.Warning().Err(err).Log("error subscribing client to epoll")
			conn.Close()
			continue
		}

		server.clients[connFD] = conn
		server.accepted.Inc()
		server.active.Inc()

		ip, port := conn.GetRemoteAddress()
		server.log.Info().
			Stringer("conn", conn.ID).
			Stringer("ip", ip).
			Int("port", port).
			Log("client connected")
	}
}

func (server *AsyncServer) handleEvent(event epoll.Event) {
	conn, exists := server.clients[event.Fd]
	if !exists {
		return
	}

	if event.Ready.Has(epoll.Errored) {
		server.CloseConnection(conn, "socket error")
		return
	}

	if server.draining[conn.Fd] {
		// Nothing left to read, only the echo backlog.
		switch {
		case event.Ready.Has(epoll.Hangup):
			server.CloseConnection(conn, "hangup while draining")
		case event.Ready.Has(epoll.Writable):
			server.handleWritableEvent(conn)
		}
		return
	}

	if event.Ready.Has(epoll.Readable) || event.Ready.Has(epoll.PeerClosed) || event.Ready.Has(epoll.Hangup) {
		if err := server.handleReadableEvent(conn); err != nil {
			if !errors.Is(err, custom_err.ErrorClientDisconnected) {
				server.CloseConnection(conn, err.Error())
				return
			}
			if conn.Pending() == 0 {
				server.CloseConnection(conn, "peer closed")
				return
			}
			server.drain(conn)
			return
		}
	}

	if event.Ready.Has(epoll.Writable) {
		server.handleWritableEvent(conn)
	}
}

// handleReadableEvent echoes whatever is available. Data that arrived before
// the peer closed is still echoed before the disconnect is reported.
func (server *AsyncServer) handleReadableEvent(conn *connection.Conn) error {
	var buffer bytes.Buffer
	bytesRead, readErr := conn.Read(&buffer)
	if bytesRead > 0 {
		if err := server.respond(conn, buffer.Bytes()); err != nil {
			return err
		}
	}
	return readErr
}

// drain keeps a half-closed connection open until its queued echo has been
// written.
func (server *AsyncServer) drain(conn *connection.Conn) {
	server.draining[conn.Fd] = true
	if err := server.iomultiplexer.Modify(conn.Fd, drainInterest|server.extraInterest); err != nil {
		server.CloseConnection(conn, err.Error())
		return
	}
	server.log.Debug().
		Stringer("conn", conn.ID).
		Int("pending", conn.Pending()).
		Log("peer closed, draining echo")
}

func (server *AsyncServer) respond(conn *connection.Conn, data []byte) error {
	server.echoed.Add(uint64(len(data)))
	pending := conn.Pending() > 0

	err := conn.QueueDatas(data)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, custom_err.ErrorNotFullyWritten):
		if pending {
			// already waiting for a writable event
			return nil
		}
		// Resubscribe for writability and wait for it.
		return server.iomultiplexer.Modify(conn.Fd, writeInterest|server.extraInterest)
	default:
		return err
	}
}

func (server *AsyncServer) handleWritableEvent(conn *connection.Conn) {
	draining := server.draining[conn.Fd]
	err := conn.DrainQueue()
	if errors.Is(err, custom_err.ErrorNotFullyWritten) {
		if config.EdgeTriggered {
			// re-arm so the next writable edge is reported
			interest := writeInterest
			if draining {
				interest = drainInterest
			}
			err = server.iomultiplexer.Modify(conn.Fd, interest|server.extraInterest)
			if err == nil {
				return
			}
		} else {
			return
		}
	}
	if err != nil {
		server.CloseConnection(conn, err.Error())
		return
	}
	if draining {
		server.CloseConnection(conn, "peer closed")
		return
	}

	// Everything written, poll for reads only.
	if err := server.iomultiplexer.Modify(conn.Fd, readInterest|server.extraInterest); err != nil {
		server.CloseConnection(conn, err.Error())
	}
}

// CloseConnection deregisters and closes a client.
func (server *AsyncServer) CloseConnection(conn *connection.Conn, reason string) {
	if err := server.iomultiplexer.Deregister(conn.Fd); err != nil {
		server.log.Warning().Err(err).Int("fd", conn.Fd).Log("error removing client from epoll")
	}
	if err := conn.Close(); err != nil {
		server.log.Warning().Err(err).Int("fd", conn.Fd).Log("error closing client")
	}
	delete(server.clients, conn.Fd)
	delete(server.draining, conn.Fd)
	server.active.Dec()

	ip, port := conn.GetRemoteAddress()
	server.log.Info().
		Stringer("conn", conn.ID).
		Stringer("ip", ip).
		Int("port", port).
		Str("reason", reason).
		Log("client disconnected")
}

func (server *AsyncServer) close() {
	for _, conn := range server.clients {
		server.CloseConnection(conn, "server shutdown")
	}
	if server.iomultiplexer != nil {
		if err := server.iomultiplexer.Destroy(); err != nil {
			server.log.Warning().Err(err).Log("error destroying epoll instance")
		}
	}
	if server.waker != nil {
		server.waker.Close()
	}
	if server.fd >= 0 {
		unix.Close(server.fd)
	}
}
