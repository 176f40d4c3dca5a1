package coordinator

// Error is a per-event rejection. Every Error is local and non-fatal: the
// offending event is dropped, the error is unicast back to the originating
// connection, and the connection stays open for subsequent events. Code is
// the stable wire identifier sent to clients.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return "coordinator: " + e.Code + ": " + e.Message
}

var (
	// ErrIdentityInvalid rejects an identity announcement with an empty
	// userId or username.
	ErrIdentityInvalid = &Error{Code: "identity_invalid", Message: "userId and username must be non-empty"}

	// ErrNotAuthenticated rejects any event from a connection that has not
	// announced an identity.
	ErrNotAuthenticated = &Error{Code: "not_authenticated", Message: "connection has not announced an identity"}

	// ErrEmptyMessage rejects a chat message whose text is empty after
	// trimming whitespace.
	ErrEmptyMessage = &Error{Code: "empty_message", Message: "message cannot be empty"}

	// ErrNotInRoom rejects a chat message from a connection that has not
	// joined a room.
	ErrNotInRoom = &Error{Code: "not_in_room", Message: "join a room before sending messages"}

	// ErrUnknownEvent rejects an event type the server does not recognize.
	ErrUnknownEvent = &Error{Code: "unknown_event", Message: "unsupported event type"}
)
