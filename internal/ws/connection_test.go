package ws

import (
	"net"
	"testing"
)

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	conn := newConnection("c1", nil, 0, 2)

	conn.Enqueue([]byte("first"))
	conn.Enqueue([]byte("second"))
	conn.Enqueue([]byte("third")) // queue full: "first" is dropped

	got := []string{string(<-conn.out), string(<-conn.out)}
	if got[0] != "second" || got[1] != "third" {
		t.Errorf("queue contents = %v, want [second third]", got)
	}

	select {
	case extra := <-conn.out:
		t.Errorf("unexpected extra frame: %s", extra)
	default:
	}
}

func TestEnqueueNeverBlocks(t *testing.T) {
	conn := newConnection("c1", nil, 0, 1)

	// Far more frames than capacity; must return promptly every time.
	for i := 0; i < 100; i++ {
		conn.Enqueue([]byte("frame"))
	}
	if len(conn.out) != 1 {
		t.Errorf("expected queue depth 1, got %d", len(conn.out))
	}
}

func TestConnectionManagerAddRemove(t *testing.T) {
	cm := NewConnectionManager()
	server, client := net.Pipe()
	defer client.Close()

	conn := newConnection("c1", server, 7, 16)
	cm.Add(conn)

	if cm.Count() != 1 {
		t.Fatalf("expected count 1, got %d", cm.Count())
	}
	if cm.Get("c1") != conn {
		t.Error("Get by ID failed")
	}
	if cm.GetByFd(7) != conn {
		t.Error("Get by fd failed")
	}

	if !cm.Remove("c1") {
		t.Fatal("expected Remove to report true")
	}
	if cm.Remove("c1") {
		t.Error("expected second Remove to report false")
	}
	if cm.Get("c1") != nil || cm.GetByFd(7) != nil {
		t.Error("expected both lookup maps cleared")
	}
	if cm.Count() != 0 {
		t.Errorf("expected count 0, got %d", cm.Count())
	}
}

func TestConnectionManagerAll(t *testing.T) {
	cm := NewConnectionManager()
	for i, id := range []string{"c1", "c2", "c3"} {
		cm.Add(newConnection(id, nil, i+1, 16))
	}

	all := cm.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 connections, got %d", len(all))
	}
	seen := make(map[string]bool)
	for _, c := range all {
		seen[c.ID] = true
	}
	for _, id := range []string{"c1", "c2", "c3"} {
		if !seen[id] {
			t.Errorf("missing connection %s in All()", id)
		}
	}
}
