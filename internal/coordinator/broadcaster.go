package coordinator

import (
	"log"

	"github.com/studychat/chat-server/internal/protocol"
)

// Sender delivers an encoded frame to a single connection. Delivery is
// best-effort: implementations must treat an unknown or closed connection as
// a silent no-op and must never block on a slow receiver (the transport
// layer queues per-connection with a drop policy).
type Sender interface {
	Unicast(connID string, data []byte)
}

// Broadcaster is the outbound fan-out primitive. It encodes a server message
// once and hands it to the Sender per destination connection.
type Broadcaster struct {
	sender Sender
}

// NewBroadcaster creates a Broadcaster delivering through the given Sender.
func NewBroadcaster(sender Sender) *Broadcaster {
	return &Broadcaster{sender: sender}
}

// Unicast sends one event to one connection.
func (b *Broadcaster) Unicast(connID, eventName string, payload interface{}) {
	data, err := protocol.NewServerMessage(eventName, payload)
	if err != nil {
		log.Printf("coordinator: failed to build %s for conn=%s: %v", eventName, connID, err)
		return
	}
	b.sender.Unicast(connID, data)
}

// BroadcastToRoom delivers one event to every member in the snapshot,
// optionally excluding one connection (pass "" to exclude nobody). The
// snapshot is taken at call time; a client that joins mid-broadcast is not
// guaranteed inclusion.
func (b *Broadcaster) BroadcastToRoom(members []Member, eventName string, payload interface{}, excludeConnID string) {
	if len(members) == 0 {
		return
	}
	data, err := protocol.NewServerMessage(eventName, payload)
	if err != nil {
		log.Printf("coordinator: failed to build %s broadcast: %v", eventName, err)
		return
	}
	for _, member := range members {
		if member.ConnID == excludeConnID {
			continue
		}
		b.sender.Unicast(member.ConnID, data)
	}
}
