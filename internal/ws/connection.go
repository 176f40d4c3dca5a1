package ws

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/studychat/chat-server/internal/metrics"
)

// Connection represents a single WebSocket client connection with its
// associated metadata, a write mutex for serializing outbound frames, and a
// bounded outbound queue drained by a dedicated writer goroutine.
type Connection struct {
	ID         string    // connection ID (UUID)
	Conn       net.Conn  // underlying TCP connection
	Fd         int       // file descriptor for epoll lookups
	CreatedAt  time.Time // when the connection was established
	LastPing   time.Time // last heartbeat received from the client
	writeMu    sync.Mutex // serializes writes to this connection
	processing int32      // atomic flag: 0 = idle, 1 = being read by handleConn
	out        chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

// newConnection builds a Connection with an outbound queue of the given
// capacity. The writer goroutine is started separately via startWriter once
// the connection is registered.
func newConnection(id string, conn net.Conn, fd int, queueSize int) *Connection {
	now := time.Now()
	return &Connection{
		ID:        id,
		Conn:      conn,
		Fd:        fd,
		CreatedAt: now,
		LastPing:  now,
		out:       make(chan []byte, queueSize),
		done:      make(chan struct{}),
	}
}

// Enqueue places a frame on the connection's outbound queue without ever
// blocking the caller. When the queue is full the oldest frame is dropped to
// make room: chat delivery is best-effort and a slow consumer must not stall
// the sender's event processing.
func (c *Connection) Enqueue(data []byte) {
	for {
		select {
		case c.out <- data:
			return
		default:
		}
		select {
		case <-c.out:
			metrics.FramesDropped.Inc()
		default:
		}
	}
}

// startWriter launches the goroutine that drains the outbound queue onto the
// socket. It exits on write error or when the connection is closed; a failed
// write leaves cleanup to the read path and the heartbeat monitor.
func (c *Connection) startWriter(writeTimeout time.Duration) {
	go func() {
		for {
			select {
			case <-c.done:
				return
			case data := <-c.out:
				if writeTimeout > 0 {
					_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				}
				err := c.WriteMessage(data)
				_ = c.Conn.SetWriteDeadline(time.Time{})
				if err != nil {
					return
				}
			}
		}
	}()
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a WebSocket protocol-level ping frame (opcode 0x9) on the
// connection. The write mutex ensures this does not interleave with other
// outbound frames.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// Close stops the writer goroutine and closes the underlying network
// connection. Safe to call multiple times.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.Conn.Close()
	})
	return err
}

// ConnectionManager is a thread-safe registry that maps connection IDs and
// file descriptors to their respective Connection objects. It supports O(1)
// lookups by both ID and fd.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection // conn_id -> Connection
	byFd map[int]*Connection    // fd -> Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID: make(map[string]*Connection),
		byFd: make(map[int]*Connection),
	}
}

// Add registers a new connection in both the ID and fd lookup maps.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.byFd[conn.Fd] = conn
	cm.mu.Unlock()
}

// Remove removes a connection by ID, closes the underlying network
// connection, and removes it from both lookup maps. Returns true if the
// connection was found and removed, false if it was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
		delete(cm.byFd, conn.Fd)
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for the given ID, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// GetByFd returns the connection for the given file descriptor, or nil if
// not found.
func (cm *ConnectionManager) GetByFd(fd int) *Connection {
	cm.mu.RLock()
	conn := cm.byFd[fd]
	cm.mu.RUnlock()
	return conn
}

// GetByConn returns the connection for the given net.Conn by extracting
// its file descriptor. Returns nil if not found.
func (cm *ConnectionManager) GetByConn(c net.Conn) *Connection {
	fd := socketFD(c)
	return cm.GetByFd(fd)
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
