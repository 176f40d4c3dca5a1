package coordinator

import (
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studychat/chat-server/internal/metrics"
	"github.com/studychat/chat-server/internal/protocol"
)

// Publisher mirrors committed room events to an external feed (the NATS
// firehose). Implementations must not block the caller for long; publishing
// failures are logged and never affect client delivery.
type Publisher interface {
	PublishRoomEvent(roomID string, data []byte) error
}

// Router is the coordinator's single entry point for inbound client events.
// It owns the Registry, Membership, and TypingTracker tables and guards them
// with one mutex, so every event's state mutation and its room broadcasts
// form a single atomic step: observers in a room see events in exactly the
// order they were applied to the shared state, and no broadcast ever carries
// a stale member or typing snapshot.
type Router struct {
	mu         sync.Mutex
	registry   *Registry
	membership *Membership
	typing     *TypingTracker
	bcast      *Broadcaster
	publisher  Publisher // optional firehose, may be nil
}

// NewRouter creates a Router with fresh state tables, delivering outbound
// events through the given Sender.
func NewRouter(sender Sender) *Router {
	return &Router{
		registry:   NewRegistry(),
		membership: NewMembership(),
		typing:     NewTypingTracker(),
		bcast:      NewBroadcaster(sender),
	}
}

// SetPublisher attaches an optional room-event firehose. Call before the
// transport starts delivering events.
func (rt *Router) SetPublisher(p Publisher) {
	rt.publisher = p
}

// HandleUserConnect processes an identity announcement. On success the
// client receives connection_confirmed; a repeated announce overwrites the
// identity and confirms again.
func (rt *Router) HandleUserConnect(connID string, msg protocol.UserConnectMsg) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := rt.registry.Announce(connID, Identity{UserID: msg.UserID, Username: msg.Username}); err != nil {
		return err
	}
	metrics.AnnouncedIdentities.Set(float64(rt.registry.Count()))

	rt.bcast.Unicast(connID, protocol.TypeConnectionConfirmed, protocol.ConnectionConfirmedMsg{
		Message:   "Connected to Study Chat server",
		Timestamp: timestamp(),
	})
	log.Printf("coordinator: user %s announced conn=%s", msg.Username, connID)
	return nil
}

// HandleJoinRoom moves the connection into a room, leaving its previous room
// first if it had one. The joiner gets room_joined and a room_users_update
// snapshot; the other members get user_joined with the refreshed list; the
// old room (if any) observes user_left before the new room observes
// user_joined. Re-joining the current room is a silent no-op.
func (rt *Router) HandleJoinRoom(connID string, msg protocol.JoinRoomMsg) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	id, ok := rt.registry.Lookup(connID)
	if !ok {
		return ErrNotAuthenticated
	}

	if cur, in := rt.membership.CurrentRoomOf(connID); in && cur == msg.RoomID {
		return nil
	}

	// Leave the old room first so no observer ever sees the client in two
	// rooms. The old room's user_left precedes the new room's user_joined.
	rt.leaveCurrentRoomLocked(connID, id)

	rt.membership.Join(connID, msg.RoomID, id)
	metrics.ActiveRooms.Set(float64(rt.membership.RoomCount()))

	rt.bcast.Unicast(connID, protocol.TypeRoomJoined, protocol.RoomJoinedMsg{
		RoomID:    msg.RoomID,
		RoomName:  msg.RoomName,
		Message:   "Welcome to " + msg.RoomName + "!",
		Timestamp: timestamp(),
	})

	members := rt.membership.MembersOf(msg.RoomID)
	joined := protocol.UserJoinedMsg{
		Username:  id.Username,
		Message:   id.Username + " joined the room",
		Timestamp: timestamp(),
		RoomUsers: roomUsers(members),
	}
	rt.bcast.BroadcastToRoom(members, protocol.TypeUserJoined, joined, connID)
	rt.bcast.Unicast(connID, protocol.TypeRoomUsersUpdate, protocol.RoomUsersUpdateMsg{
		RoomUsers: roomUsers(members),
	})
	rt.publishLocked(msg.RoomID, protocol.TypeUserJoined, joined)

	log.Printf("coordinator: %s joined room=%s conn=%s (members=%d)", id.Username, msg.RoomID, connID, len(members))
	return nil
}

// HandleSendMessage validates and broadcasts a chat message to every member
// of the sender's current room, sender included; the echo doubles as the
// delivery/ordering confirmation. Sending a message also clears the
// sender's typing state.
func (rt *Router) HandleSendMessage(connID string, msg protocol.SendMessageMsg) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	id, ok := rt.registry.Lookup(connID)
	if !ok {
		return ErrNotAuthenticated
	}

	text := strings.TrimSpace(msg.Message)
	if text == "" {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return ErrEmptyMessage
	}

	roomID, in := rt.membership.CurrentRoomOf(connID)
	if !in {
		return ErrNotInRoom
	}

	// A message ends the sender's typing indicator without requiring an
	// explicit typing_stop from the client.
	if rt.typing.Stop(roomID, id.Username) {
		rt.broadcastTypingLocked(roomID, id.Username, false, connID)
	}

	start := time.Now()
	payload := protocol.NewMessageMsg{
		ID:        newMessageID(),
		Username:  id.Username,
		Message:   text,
		Timestamp: timestamp(),
		RoomID:    roomID,
	}
	members := rt.membership.MembersOf(roomID)
	rt.bcast.BroadcastToRoom(members, protocol.TypeNewMessage, payload, "")
	rt.publishLocked(roomID, protocol.TypeNewMessage, payload)

	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	metrics.BroadcastLatency.Observe(time.Since(start).Seconds())
	return nil
}

// HandleTypingStart marks the sender as typing in its current room and
// notifies the other members. A connection outside any room is a no-op
// (typing implies membership).
func (rt *Router) HandleTypingStart(connID string, msg protocol.TypingStartMsg) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	id, ok := rt.registry.Lookup(connID)
	if !ok {
		return ErrNotAuthenticated
	}
	roomID, in := rt.membership.CurrentRoomOf(connID)
	if !in {
		return nil
	}

	rt.typing.Start(roomID, id.Username)
	rt.broadcastTypingLocked(roomID, id.Username, true, connID)
	return nil
}

// HandleTypingStop clears the sender's typing state in its current room.
// Idempotent: a repeated stop broadcasts the same typing set again.
func (rt *Router) HandleTypingStop(connID string, msg protocol.TypingStopMsg) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	id, ok := rt.registry.Lookup(connID)
	if !ok {
		return ErrNotAuthenticated
	}
	roomID, in := rt.membership.CurrentRoomOf(connID)
	if !in {
		return nil
	}

	rt.typing.Stop(roomID, id.Username)
	rt.broadcastTypingLocked(roomID, id.Username, false, connID)
	return nil
}

// HandleDisconnect tears down all state for a closed connection: membership,
// typing, and the registry entry, broadcasting user_left (and a typing
// update when needed) to the former room. Safe to call more than once for
// the same connection; the second call finds nothing to clean up.
func (rt *Router) HandleDisconnect(connID string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	id, announced := rt.registry.Lookup(connID)
	if announced {
		rt.leaveCurrentRoomLocked(connID, id)
	}
	rt.registry.Forget(connID)
	metrics.AnnouncedIdentities.Set(float64(rt.registry.Count()))
	if announced {
		log.Printf("coordinator: %s disconnected conn=%s", id.Username, connID)
	}
}

// AnnouncedConnections reports the number of announced connections for the
// liveness probe.
func (rt *Router) AnnouncedConnections() int {
	return rt.registry.Count()
}

// ActiveRooms reports the number of rooms with at least one member.
func (rt *Router) ActiveRooms() int {
	return rt.membership.RoomCount()
}

// Membership exposes the membership table for read-only inspection in tests
// and the health endpoint.
func (rt *Router) Membership() *Membership {
	return rt.membership
}

// Typing exposes the typing tracker for read-only inspection.
func (rt *Router) Typing() *TypingTracker {
	return rt.typing
}

// leaveCurrentRoomLocked removes the connection from its current room, if
// any, and broadcasts user_left plus a typing update to the remaining
// members. Callers must hold rt.mu.
func (rt *Router) leaveCurrentRoomLocked(connID string, id Identity) {
	roomID, _, ok := rt.membership.Leave(connID)
	if !ok {
		return
	}
	metrics.ActiveRooms.Set(float64(rt.membership.RoomCount()))

	remaining := rt.membership.MembersOf(roomID)
	left := protocol.UserLeftMsg{
		Username:  id.Username,
		Message:   id.Username + " left the room",
		Timestamp: timestamp(),
		RoomUsers: roomUsers(remaining),
	}
	rt.bcast.BroadcastToRoom(remaining, protocol.TypeUserLeft, left, "")
	rt.publishLocked(roomID, protocol.TypeUserLeft, left)

	// Clear any typing indicator the leaver left behind so it cannot
	// outlive the membership ("ghost typing").
	if rt.typing.Stop(roomID, id.Username) {
		rt.broadcastTypingLocked(roomID, id.Username, false, connID)
	}
}

// broadcastTypingLocked sends a user_typing update with the room's current
// typing snapshot to every member except the typist. Callers must hold rt.mu.
func (rt *Router) broadcastTypingLocked(roomID, username string, isTyping bool, excludeConnID string) {
	members := rt.membership.MembersOf(roomID)
	rt.bcast.BroadcastToRoom(members, protocol.TypeUserTyping, protocol.UserTypingMsg{
		Username:    username,
		IsTyping:    isTyping,
		TypingUsers: rt.typing.Snapshot(roomID),
	}, excludeConnID)
}

// publishLocked mirrors a committed room event to the firehose, if attached.
func (rt *Router) publishLocked(roomID, eventName string, payload interface{}) {
	if rt.publisher == nil {
		return
	}
	data, err := protocol.NewServerMessage(eventName, payload)
	if err != nil {
		log.Printf("coordinator: firehose encode %s failed: %v", eventName, err)
		return
	}
	if err := rt.publisher.PublishRoomEvent(roomID, data); err != nil {
		log.Printf("coordinator: firehose publish %s room=%s failed: %v", eventName, roomID, err)
	}
}

// timestamp returns the coordinator-assigned ISO-8601 instant for outbound
// events. Clients never supply their own timestamps.
func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// newMessageID builds a message id that sorts roughly by send time: the
// current unix-millis in base 36 followed by a random suffix. Uniqueness
// within a room is all that matters; ordering is already guaranteed by the
// serialized broadcast order.
func newMessageID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + suffix
}

// roomUsers converts a membership snapshot into the wire representation.
func roomUsers(members []Member) []protocol.RoomUser {
	users := make([]protocol.RoomUser, 0, len(members))
	for _, m := range members {
		users = append(users, protocol.RoomUser{
			Username: m.Identity.Username,
			UserID:   m.Identity.UserID,
			JoinedAt: m.JoinedAt.Format(time.RFC3339),
		})
	}
	return users
}
