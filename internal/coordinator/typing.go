package coordinator

import (
	"sort"
	"sync"
)

// TypingTracker records which usernames are currently typing in each room.
// A room's entry exists only while at least one user is typing there. Any
// action that removes a user from a room (leave, disconnect) must also stop
// its typing state so a stale "is typing" indicator never outlives the user.
type TypingTracker struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{} // room_id -> set of usernames
}

// NewTypingTracker creates an empty TypingTracker.
func NewTypingTracker() *TypingTracker {
	return &TypingTracker{
		rooms: make(map[string]map[string]struct{}),
	}
}

// Start marks the username as typing in the room. Idempotent.
func (t *TypingTracker) Start(roomID, username string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	typing, ok := t.rooms[roomID]
	if !ok {
		typing = make(map[string]struct{})
		t.rooms[roomID] = typing
	}
	typing[username] = struct{}{}
}

// Stop clears the username's typing state in the room, pruning the room
// entry when it empties. Idempotent; returns whether the user was typing.
func (t *TypingTracker) Stop(roomID, username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	typing, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	if _, was := typing[username]; !was {
		return false
	}
	delete(typing, username)
	if len(typing) == 0 {
		delete(t.rooms, roomID)
	}
	return true
}

// Snapshot returns a sorted copy of the usernames currently typing in the
// room. An unknown room yields an empty slice.
func (t *TypingTracker) Snapshot(roomID string) []string {
	t.mu.Lock()
	users := make([]string, 0, len(t.rooms[roomID]))
	for username := range t.rooms[roomID] {
		users = append(users, username)
	}
	t.mu.Unlock()

	sort.Strings(users)
	return users
}
