package coordinator

import (
	"sort"
	"sync"
	"time"
)

// Member is one entry in a room membership snapshot: the identity present in
// the room, the connection carrying it, and when it entered the room.
type Member struct {
	ConnID   string
	Identity Identity
	JoinedAt time.Time
}

// Membership tracks which identities occupy which rooms. A connection
// belongs to at most one room at a time; joining a new room implicitly
// leaves the previous one. Room entries with no members are pruned
// immediately so an empty room and an unknown room are indistinguishable.
type Membership struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]*Member // room_id -> conn_id -> member
	current map[string]string             // conn_id -> room_id
}

// NewMembership creates an empty Membership table.
func NewMembership() *Membership {
	return &Membership{
		rooms:   make(map[string]map[string]*Member),
		current: make(map[string]string),
	}
}

// Join adds the identity to roomID's member set and points the connection at
// that room, leaving any previous room first. It returns the previous room
// id (empty if none) and whether the connection was already in roomID, in
// which case nothing changed.
func (m *Membership) Join(connID, roomID string, id Identity) (prevRoom string, same bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prevRoom = m.current[connID]
	if prevRoom == roomID {
		return prevRoom, true
	}
	if prevRoom != "" {
		m.removeLocked(connID, prevRoom)
	}

	members, ok := m.rooms[roomID]
	if !ok {
		members = make(map[string]*Member)
		m.rooms[roomID] = members
	}
	members[connID] = &Member{
		ConnID:   connID,
		Identity: id,
		JoinedAt: time.Now().UTC(),
	}
	m.current[connID] = roomID
	return prevRoom, false
}

// Leave removes the connection from its current room, pruning the room entry
// if it is now empty, and clears the connection's current-room pointer. It
// returns the room that was left and the identity that was removed; ok is
// false if the connection had no current room.
func (m *Membership) Leave(connID string) (roomID string, id Identity, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok = m.current[connID]
	if !ok {
		return "", Identity{}, false
	}
	if member, present := m.rooms[roomID][connID]; present {
		id = member.Identity
	}
	m.removeLocked(connID, roomID)
	return roomID, id, true
}

// removeLocked deletes the membership record and prunes the room if empty.
// Callers must hold m.mu.
func (m *Membership) removeLocked(connID, roomID string) {
	if members, ok := m.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(m.rooms, roomID)
		}
	}
	delete(m.current, connID)
}

// MembersOf returns a point-in-time copy of a room's member set, ordered by
// join time (ties broken by connection id). The snapshot stays valid across
// subsequent mutations; an unknown or empty room yields an empty slice.
func (m *Membership) MembersOf(roomID string) []Member {
	m.mu.RLock()
	members := make([]Member, 0, len(m.rooms[roomID]))
	for _, member := range m.rooms[roomID] {
		members = append(members, *member)
	}
	m.mu.RUnlock()

	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].ConnID < members[j].ConnID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members
}

// CurrentRoomOf returns the room the connection currently occupies. The
// second return value is false if the connection is in no room.
func (m *Membership) CurrentRoomOf(connID string) (string, bool) {
	m.mu.RLock()
	roomID, ok := m.current[connID]
	m.mu.RUnlock()
	return roomID, ok
}

// RoomCount returns the number of rooms with at least one member. Pruning
// guarantees every tracked room is non-empty.
func (m *Membership) RoomCount() int {
	m.mu.RLock()
	n := len(m.rooms)
	m.mu.RUnlock()
	return n
}
