// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeUserConnect = "user_connect"
	TypeJoinRoom    = "join_room"
	TypeSendMessage = "send_message"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
	TypePing        = "ping"
)

// Server -> Client message types.
const (
	TypeConnectionConfirmed = "connection_confirmed"
	TypeRoomJoined          = "room_joined"
	TypeRoomUsersUpdate     = "room_users_update"
	TypeUserJoined          = "user_joined"
	TypeUserLeft            = "user_left"
	TypeNewMessage          = "new_message"
	TypeUserTyping          = "user_typing"
	TypeRateLimited         = "rate_limited"
	TypeError               = "error"
	TypePong                = "pong"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// UserConnectMsg is sent by the client immediately after the WebSocket
// upgrade to announce the authenticated identity for this connection.
type UserConnectMsg struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// JoinRoomMsg is sent by the client to enter a chat room. Joining a new room
// implicitly leaves the current one. RoomName is display-only and is echoed
// back in the room_joined confirmation.
type JoinRoomMsg struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

// SendMessageMsg is a text message sent by the client to its current room.
type SendMessageMsg struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// TypingStartMsg signals that the client has started typing in a room.
type TypingStartMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// TypingStopMsg signals that the client has stopped typing in a room.
type TypingStopMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// RoomUser is one entry in a room membership snapshot sent to clients.
type RoomUser struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
	JoinedAt string `json:"joinedAt"`
}

// ConnectionConfirmedMsg acknowledges a successful identity announcement.
type ConnectionConfirmedMsg struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// RoomJoinedMsg confirms to the joining client that it entered a room.
type RoomJoinedMsg struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId"`
	RoomName  string `json:"roomName"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// RoomUsersUpdateMsg carries the current member list of the client's room.
type RoomUsersUpdateMsg struct {
	Type      string     `json:"type"`
	RoomUsers []RoomUser `json:"roomUsers"`
}

// UserJoinedMsg notifies room members that another user entered the room.
// It carries the refreshed member list so recipients need no separate fetch.
type UserJoinedMsg struct {
	Type      string     `json:"type"`
	Username  string     `json:"username"`
	Message   string     `json:"message"`
	Timestamp string     `json:"timestamp"`
	RoomUsers []RoomUser `json:"roomUsers"`
}

// UserLeftMsg notifies room members that a user left the room, either
// explicitly (switching rooms) or by disconnecting.
type UserLeftMsg struct {
	Type      string     `json:"type"`
	Username  string     `json:"username"`
	Message   string     `json:"message"`
	Timestamp string     `json:"timestamp"`
	RoomUsers []RoomUser `json:"roomUsers"`
}

// NewMessageMsg is a chat message broadcast to every member of a room,
// including the sender.
type NewMessageMsg struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	RoomID    string `json:"roomId"`
}

// UserTypingMsg relays a typing indicator change to the other room members.
type UserTypingMsg struct {
	Type        string   `json:"type"`
	Username    string   `json:"username"`
	IsTyping    bool     `json:"isTyping"`
	TypingUsers []string `json:"typingUsers"`
}

// RateLimitedMsg is sent by the server when the client has been rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeUserConnect:
		var m UserConnectMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeJoinRoom:
		var m JoinRoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTypingStart:
		var m TypingStartMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTypingStop:
		var m TypingStopMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
