//go:build linux

package ws

import (
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// eventBatchSize bounds how many ready descriptors a single Wait call
// returns. Larger batches amortize the syscall; the worker pool still
// bounds how many are processed concurrently.
const eventBatchSize = 128

// Epoll multiplexes read readiness for every chat connection over a single
// kernel epoll instance, so an idle room full of lurkers costs file
// descriptors rather than goroutines. Only the event loop calls Wait; Add
// and Remove are safe to call from any goroutine.
type Epoll struct {
	fd     int
	byFd   map[int]net.Conn
	mu     sync.RWMutex // protects byFd
	events []unix.EpollEvent
}

// NewEpoll creates the epoll instance.
func NewEpoll() (*Epoll, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Epoll{
		fd:     fd,
		byFd:   make(map[int]net.Conn),
		events: make([]unix.EpollEvent, eventBatchSize),
	}, nil
}

// Add puts the connection's descriptor on the interest list for read and
// hangup events.
func (e *Epoll) Add(conn net.Conn) error {
	fd := socketFD(conn)
	if err := unix.EpollCtl(e.fd, syscall.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLHUP,
		Fd:     int32(fd),
	}); err != nil {
		return err
	}

	e.mu.Lock()
	e.byFd[fd] = conn
	e.mu.Unlock()
	return nil
}

// Remove takes the connection's descriptor off the interest list.
func (e *Epoll) Remove(conn net.Conn) error {
	fd := socketFD(conn)
	if err := unix.EpollCtl(e.fd, syscall.EPOLL_CTL_DEL, fd, nil); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.byFd, fd)
	e.mu.Unlock()
	return nil
}

// Wait blocks until at least one registered connection is readable and
// returns the ready connections. A descriptor removed between the kernel
// wait and the map lookup is skipped.
func (e *Epoll) Wait() ([]net.Conn, error) {
	n, err := unix.EpollWait(e.fd, e.events, -1)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	conns := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		if conn, ok := e.byFd[int(e.events[i].Fd)]; ok {
			conns = append(conns, conn)
		}
	}
	e.mu.RUnlock()
	return conns, nil
}

// Close releases the epoll descriptor. Registered connections are closed by
// their owner, not here.
func (e *Epoll) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byFd = nil
	return unix.Close(e.fd)
}

// socketFD extracts the descriptor from a net.Conn via SyscallConn, which
// unlike File() does not duplicate the fd. Epoll registration needs the
// original descriptor.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}

	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}

	var fd int
	_ = raw.Control(func(sfd uintptr) {
		fd = int(sfd)
	})
	return fd
}
