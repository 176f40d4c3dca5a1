package coordinator

import (
	"encoding/json"
	"testing"

	"github.com/studychat/chat-server/internal/protocol"
)

// frame is one decoded outbound event captured by the fake sender.
type frame struct {
	ConnID string
	Event  map[string]interface{}
}

func (f frame) Type() string {
	t, _ := f.Event["type"].(string)
	return t
}

// fakeSender records every unicast frame in delivery order.
type fakeSender struct {
	frames []frame
}

func (s *fakeSender) Unicast(connID string, data []byte) {
	var event map[string]interface{}
	if err := json.Unmarshal(data, &event); err != nil {
		panic("fakeSender: invalid frame: " + err.Error())
	}
	s.frames = append(s.frames, frame{ConnID: connID, Event: event})
}

// framesFor returns the frames delivered to one connection, in order.
func (s *fakeSender) framesFor(connID string) []frame {
	var out []frame
	for _, f := range s.frames {
		if f.ConnID == connID {
			out = append(out, f)
		}
	}
	return out
}

// typesFor returns just the event types delivered to one connection.
func (s *fakeSender) typesFor(connID string) []string {
	var out []string
	for _, f := range s.framesFor(connID) {
		out = append(out, f.Type())
	}
	return out
}

func (s *fakeSender) reset() {
	s.frames = nil
}

func newTestRouter(t *testing.T) (*Router, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	return NewRouter(sender), sender
}

// connect announces an identity and fails the test if the announce is rejected.
func connect(t *testing.T, rt *Router, connID, userID, username string) {
	t.Helper()
	err := rt.HandleUserConnect(connID, protocol.UserConnectMsg{UserID: userID, Username: username})
	if err != nil {
		t.Fatalf("HandleUserConnect(%s): %v", connID, err)
	}
}

func join(t *testing.T, rt *Router, connID, roomID string) {
	t.Helper()
	err := rt.HandleJoinRoom(connID, protocol.JoinRoomMsg{RoomID: roomID, RoomName: roomID})
	if err != nil {
		t.Fatalf("HandleJoinRoom(%s, %s): %v", connID, roomID, err)
	}
}

func TestUserConnectConfirms(t *testing.T) {
	rt, sender := newTestRouter(t)

	connect(t, rt, "c1", "u1", "alice")

	frames := sender.framesFor("c1")
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if got := frames[0].Type(); got != protocol.TypeConnectionConfirmed {
		t.Errorf("expected %s, got %s", protocol.TypeConnectionConfirmed, got)
	}
	if rt.AnnouncedConnections() != 1 {
		t.Errorf("expected 1 announced connection, got %d", rt.AnnouncedConnections())
	}
}

func TestUserConnectRejectsEmptyIdentity(t *testing.T) {
	rt, sender := newTestRouter(t)

	cases := []protocol.UserConnectMsg{
		{UserID: "", Username: "alice"},
		{UserID: "u1", Username: ""},
		{},
	}
	for _, msg := range cases {
		if err := rt.HandleUserConnect("c1", msg); err != ErrIdentityInvalid {
			t.Errorf("userId=%q username=%q: expected ErrIdentityInvalid, got %v", msg.UserID, msg.Username, err)
		}
	}
	if len(sender.frames) != 0 {
		t.Errorf("expected no frames on rejected announce, got %d", len(sender.frames))
	}
	if rt.AnnouncedConnections() != 0 {
		t.Errorf("expected 0 announced connections, got %d", rt.AnnouncedConnections())
	}
}

func TestJoinRoomRequiresAnnounce(t *testing.T) {
	rt, sender := newTestRouter(t)

	err := rt.HandleJoinRoom("c1", protocol.JoinRoomMsg{RoomID: "math-101"})
	if err != ErrNotAuthenticated {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if len(sender.frames) != 0 {
		t.Errorf("expected no frames, got %d", len(sender.frames))
	}
	if rt.ActiveRooms() != 0 {
		t.Errorf("expected no active rooms, got %d", rt.ActiveRooms())
	}
}

func TestJoinRoomNotifiesJoinerAndMembers(t *testing.T) {
	rt, sender := newTestRouter(t)
	connect(t, rt, "c1", "u1", "alice")
	connect(t, rt, "c2", "u2", "bob")
	join(t, rt, "c1", "math-101")
	sender.reset()

	join(t, rt, "c2", "math-101")

	// The joiner gets room_joined followed by the member snapshot, but never
	// its own user_joined.
	gotJoiner := sender.typesFor("c2")
	wantJoiner := []string{protocol.TypeRoomJoined, protocol.TypeRoomUsersUpdate}
	if len(gotJoiner) != len(wantJoiner) {
		t.Fatalf("joiner frames = %v, want %v", gotJoiner, wantJoiner)
	}
	for i := range wantJoiner {
		if gotJoiner[i] != wantJoiner[i] {
			t.Fatalf("joiner frames = %v, want %v", gotJoiner, wantJoiner)
		}
	}

	// The existing member gets user_joined with the refreshed list.
	memberFrames := sender.framesFor("c1")
	if len(memberFrames) != 1 || memberFrames[0].Type() != protocol.TypeUserJoined {
		t.Fatalf("expected one user_joined for c1, got %v", sender.typesFor("c1"))
	}
	users, ok := memberFrames[0].Event["roomUsers"].([]interface{})
	if !ok || len(users) != 2 {
		t.Fatalf("expected 2 roomUsers in user_joined, got %v", memberFrames[0].Event["roomUsers"])
	}
}

func TestRejoinCurrentRoomIsNoOp(t *testing.T) {
	rt, sender := newTestRouter(t)
	connect(t, rt, "c1", "u1", "alice")
	join(t, rt, "c1", "math-101")
	sender.reset()

	join(t, rt, "c1", "math-101")

	if len(sender.frames) != 0 {
		t.Errorf("expected no frames on re-join, got %v", sender.frames)
	}
	if room, _ := rt.Membership().CurrentRoomOf("c1"); room != "math-101" {
		t.Errorf("expected c1 in math-101, got %q", room)
	}
}

func TestJoinSwitchesRooms(t *testing.T) {
	rt, sender := newTestRouter(t)
	connect(t, rt, "c1", "u1", "alice")
	connect(t, rt, "c2", "u2", "bob")
	connect(t, rt, "c3", "u3", "carol")
	join(t, rt, "c1", "math-101")
	join(t, rt, "c2", "math-101")
	join(t, rt, "c3", "physics-201")
	sender.reset()

	// bob switches from math-101 to physics-201.
	join(t, rt, "c2", "physics-201")

	// The old room observes the departure.
	aliceFrames := sender.framesFor("c1")
	if len(aliceFrames) != 1 || aliceFrames[0].Type() != protocol.TypeUserLeft {
		t.Fatalf("expected user_left for c1, got %v", sender.typesFor("c1"))
	}
	if remaining, _ := aliceFrames[0].Event["roomUsers"].([]interface{}); len(remaining) != 1 {
		t.Errorf("expected 1 remaining member in user_left, got %v", aliceFrames[0].Event["roomUsers"])
	}

	// The new room observes the arrival.
	carolFrames := sender.framesFor("c3")
	if len(carolFrames) != 1 || carolFrames[0].Type() != protocol.TypeUserJoined {
		t.Fatalf("expected user_joined for c3, got %v", sender.typesFor("c3"))
	}

	// The switcher occupies exactly one room.
	if room, _ := rt.Membership().CurrentRoomOf("c2"); room != "physics-201" {
		t.Errorf("expected c2 in physics-201, got %q", room)
	}
	for _, m := range rt.Membership().MembersOf("math-101") {
		if m.ConnID == "c2" {
			t.Error("c2 still listed in math-101 after switching")
		}
	}
}

func TestSendMessageBroadcastsTrimmed(t *testing.T) {
	rt, sender := newTestRouter(t)
	connect(t, rt, "c1", "u1", "alice")
	connect(t, rt, "c2", "u2", "bob")
	join(t, rt, "c1", "math-101")
	join(t, rt, "c2", "math-101")
	sender.reset()

	err := rt.HandleSendMessage("c1", protocol.SendMessageMsg{Message: "  hello  "})
	if err != nil {
		t.Fatalf("HandleSendMessage: %v", err)
	}

	// Every member receives the message, sender included, with identical
	// trimmed text and the same id.
	var ids []string
	for _, connID := range []string{"c1", "c2"} {
		frames := sender.framesFor(connID)
		if len(frames) != 1 || frames[0].Type() != protocol.TypeNewMessage {
			t.Fatalf("expected one new_message for %s, got %v", connID, sender.typesFor(connID))
		}
		event := frames[0].Event
		if event["message"] != "hello" {
			t.Errorf("%s: expected trimmed message %q, got %q", connID, "hello", event["message"])
		}
		if event["username"] != "alice" {
			t.Errorf("%s: expected username alice, got %v", connID, event["username"])
		}
		if event["roomId"] != "math-101" {
			t.Errorf("%s: expected roomId math-101, got %v", connID, event["roomId"])
		}
		id, _ := event["id"].(string)
		if id == "" {
			t.Errorf("%s: expected non-empty message id", connID)
		}
		ids = append(ids, id)
	}
	if ids[0] != ids[1] {
		t.Errorf("expected identical message ids across recipients, got %q and %q", ids[0], ids[1])
	}
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	rt, sender := newTestRouter(t)
	connect(t, rt, "c1", "u1", "alice")
	join(t, rt, "c1", "math-101")
	sender.reset()

	for _, text := range []string{"", "   ", "\t\n"} {
		if err := rt.HandleSendMessage("c1", protocol.SendMessageMsg{Message: text}); err != ErrEmptyMessage {
			t.Errorf("message %q: expected ErrEmptyMessage, got %v", text, err)
		}
	}
	if len(sender.frames) != 0 {
		t.Errorf("expected no frames for rejected messages, got %d", len(sender.frames))
	}
}

func TestSendMessageRequiresRoom(t *testing.T) {
	rt, _ := newTestRouter(t)
	connect(t, rt, "c1", "u1", "alice")

	if err := rt.HandleSendMessage("c1", protocol.SendMessageMsg{Message: "hi"}); err != ErrNotInRoom {
		t.Fatalf("expected ErrNotInRoom, got %v", err)
	}
}

func TestSendMessageRequiresAnnounce(t *testing.T) {
	rt, _ := newTestRouter(t)

	if err := rt.HandleSendMessage("c1", protocol.SendMessageMsg{Message: "hi"}); err != ErrNotAuthenticated {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestSendMessageClearsTyping(t *testing.T) {
	rt, sender := newTestRouter(t)
	connect(t, rt, "c1", "u1", "alice")
	connect(t, rt, "c2", "u2", "bob")
	join(t, rt, "c1", "math-101")
	join(t, rt, "c2", "math-101")

	if err := rt.HandleTypingStart("c1", protocol.TypingStartMsg{}); err != nil {
		t.Fatalf("HandleTypingStart: %v", err)
	}
	sender.reset()

	if err := rt.HandleSendMessage("c1", protocol.SendMessageMsg{Message: "done typing"}); err != nil {
		t.Fatalf("HandleSendMessage: %v", err)
	}

	// The observer sees the typing indicator clear before the message lands.
	got := sender.typesFor("c2")
	want := []string{protocol.TypeUserTyping, protocol.TypeNewMessage}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("observer frames = %v, want %v", got, want)
	}
	typing := sender.framesFor("c2")[0].Event
	if typing["isTyping"] != false {
		t.Errorf("expected isTyping false, got %v", typing["isTyping"])
	}
	if users := rt.Typing().Snapshot("math-101"); len(users) != 0 {
		t.Errorf("expected empty typing set, got %v", users)
	}
}

func TestTypingNotifiesOthersOnly(t *testing.T) {
	rt, sender := newTestRouter(t)
	connect(t, rt, "c1", "u1", "alice")
	connect(t, rt, "c2", "u2", "bob")
	join(t, rt, "c1", "math-101")
	join(t, rt, "c2", "math-101")
	sender.reset()

	if err := rt.HandleTypingStart("c1", protocol.TypingStartMsg{}); err != nil {
		t.Fatalf("HandleTypingStart: %v", err)
	}

	if frames := sender.framesFor("c1"); len(frames) != 0 {
		t.Errorf("typist should not receive its own typing update, got %v", sender.typesFor("c1"))
	}
	observer := sender.framesFor("c2")
	if len(observer) != 1 || observer[0].Type() != protocol.TypeUserTyping {
		t.Fatalf("expected user_typing for c2, got %v", sender.typesFor("c2"))
	}
	event := observer[0].Event
	if event["username"] != "alice" || event["isTyping"] != true {
		t.Errorf("unexpected typing event: %v", event)
	}
	users, _ := event["typingUsers"].([]interface{})
	if len(users) != 1 || users[0] != "alice" {
		t.Errorf("expected typingUsers [alice], got %v", event["typingUsers"])
	}
}

func TestTypingOutsideRoomIsNoOp(t *testing.T) {
	rt, sender := newTestRouter(t)
	connect(t, rt, "c1", "u1", "alice")
	sender.reset()

	if err := rt.HandleTypingStart("c1", protocol.TypingStartMsg{}); err != nil {
		t.Fatalf("HandleTypingStart: %v", err)
	}
	if err := rt.HandleTypingStop("c1", protocol.TypingStopMsg{}); err != nil {
		t.Fatalf("HandleTypingStop: %v", err)
	}
	if len(sender.frames) != 0 {
		t.Errorf("expected no frames, got %v", sender.frames)
	}
}

func TestTypingStopIsIdempotent(t *testing.T) {
	rt, sender := newTestRouter(t)
	connect(t, rt, "c1", "u1", "alice")
	connect(t, rt, "c2", "u2", "bob")
	join(t, rt, "c1", "math-101")
	join(t, rt, "c2", "math-101")
	sender.reset()

	// Stop without ever starting, twice. Both broadcast the same cleared set.
	for i := 0; i < 2; i++ {
		if err := rt.HandleTypingStop("c1", protocol.TypingStopMsg{}); err != nil {
			t.Fatalf("HandleTypingStop #%d: %v", i+1, err)
		}
	}

	observer := sender.framesFor("c2")
	if len(observer) != 2 {
		t.Fatalf("expected 2 typing updates, got %v", sender.typesFor("c2"))
	}
	for _, f := range observer {
		if f.Type() != protocol.TypeUserTyping || f.Event["isTyping"] != false {
			t.Errorf("unexpected typing frame: %v", f.Event)
		}
	}
}

func TestDisconnectBroadcastsLeaveAndClearsTyping(t *testing.T) {
	rt, sender := newTestRouter(t)
	connect(t, rt, "c1", "u1", "alice")
	connect(t, rt, "c2", "u2", "bob")
	join(t, rt, "c1", "math-101")
	join(t, rt, "c2", "math-101")

	if err := rt.HandleTypingStart("c2", protocol.TypingStartMsg{}); err != nil {
		t.Fatalf("HandleTypingStart: %v", err)
	}
	sender.reset()

	// bob drops mid-typing.
	rt.HandleDisconnect("c2")

	got := sender.typesFor("c1")
	want := []string{protocol.TypeUserLeft, protocol.TypeUserTyping}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("observer frames = %v, want %v", got, want)
	}
	left := sender.framesFor("c1")[0].Event
	if remaining, _ := left["roomUsers"].([]interface{}); len(remaining) != 1 {
		t.Errorf("expected 1 remaining member in user_left, got %v", left["roomUsers"])
	}
	if users := rt.Typing().Snapshot("math-101"); len(users) != 0 {
		t.Errorf("expected ghost typing cleared, got %v", users)
	}
	if rt.AnnouncedConnections() != 1 {
		t.Errorf("expected 1 announced connection after disconnect, got %d", rt.AnnouncedConnections())
	}
}

func TestDisconnectPrunesEmptyRoom(t *testing.T) {
	rt, _ := newTestRouter(t)
	connect(t, rt, "c1", "u1", "alice")
	join(t, rt, "c1", "math-101")

	rt.HandleDisconnect("c1")

	if rt.ActiveRooms() != 0 {
		t.Errorf("expected 0 active rooms, got %d", rt.ActiveRooms())
	}
	if members := rt.Membership().MembersOf("math-101"); len(members) != 0 {
		t.Errorf("expected empty room, got %v", members)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	rt, sender := newTestRouter(t)
	connect(t, rt, "c1", "u1", "alice")
	join(t, rt, "c1", "math-101")
	sender.reset()

	rt.HandleDisconnect("c1")
	framesAfterFirst := len(sender.frames)
	rt.HandleDisconnect("c1")

	if len(sender.frames) != framesAfterFirst {
		t.Errorf("second disconnect produced frames: %v", sender.frames[framesAfterFirst:])
	}
}

func TestDisconnectUnannouncedConnection(t *testing.T) {
	rt, sender := newTestRouter(t)

	// Must not panic or emit anything.
	rt.HandleDisconnect("never-seen")

	if len(sender.frames) != 0 {
		t.Errorf("expected no frames, got %v", sender.frames)
	}
}

// fakePublisher records firehose publishes.
type fakePublisher struct {
	published []struct {
		RoomID string
		Data   []byte
	}
}

func (p *fakePublisher) PublishRoomEvent(roomID string, data []byte) error {
	p.published = append(p.published, struct {
		RoomID string
		Data   []byte
	}{roomID, data})
	return nil
}

func TestFirehoseMirrorsRoomEvents(t *testing.T) {
	rt, _ := newTestRouter(t)
	pub := &fakePublisher{}
	rt.SetPublisher(pub)

	connect(t, rt, "c1", "u1", "alice")
	join(t, rt, "c1", "math-101")
	if err := rt.HandleSendMessage("c1", protocol.SendMessageMsg{Message: "hi"}); err != nil {
		t.Fatalf("HandleSendMessage: %v", err)
	}
	rt.HandleDisconnect("c1")

	// join, message, leave: three mirrored events, all for the same room.
	if len(pub.published) != 3 {
		t.Fatalf("expected 3 published events, got %d", len(pub.published))
	}
	wantTypes := []string{protocol.TypeUserJoined, protocol.TypeNewMessage, protocol.TypeUserLeft}
	for i, p := range pub.published {
		if p.RoomID != "math-101" {
			t.Errorf("event %d: expected room math-101, got %s", i, p.RoomID)
		}
		var event map[string]interface{}
		if err := json.Unmarshal(p.Data, &event); err != nil {
			t.Fatalf("event %d: invalid JSON: %v", i, err)
		}
		if event["type"] != wantTypes[i] {
			t.Errorf("event %d: expected type %s, got %v", i, wantTypes[i], event["type"])
		}
	}
}
