package coordinator

import (
	"reflect"
	"testing"
)

func TestTypingStartAndSnapshot(t *testing.T) {
	tr := NewTypingTracker()

	tr.Start("math-101", "bob")
	tr.Start("math-101", "alice")
	tr.Start("math-101", "alice") // idempotent

	got := tr.Snapshot("math-101")
	want := []string{"alice", "bob"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot = %v, want %v", got, want)
	}
}

func TestTypingStopReportsWhetherTyping(t *testing.T) {
	tr := NewTypingTracker()
	tr.Start("math-101", "alice")

	if !tr.Stop("math-101", "alice") {
		t.Error("expected Stop to report alice was typing")
	}
	if tr.Stop("math-101", "alice") {
		t.Error("expected repeated Stop to report false")
	}
	if tr.Stop("math-101", "never-typed") {
		t.Error("expected Stop for unknown user to report false")
	}
	if tr.Stop("unknown-room", "alice") {
		t.Error("expected Stop for unknown room to report false")
	}
}

func TestTypingRoomsAreIndependent(t *testing.T) {
	tr := NewTypingTracker()
	tr.Start("math-101", "alice")
	tr.Start("physics-201", "alice")

	tr.Stop("math-101", "alice")

	if got := tr.Snapshot("math-101"); len(got) != 0 {
		t.Errorf("expected math-101 cleared, got %v", got)
	}
	if got := tr.Snapshot("physics-201"); len(got) != 1 {
		t.Errorf("expected physics-201 untouched, got %v", got)
	}
}

func TestTypingUnknownRoomSnapshot(t *testing.T) {
	tr := NewTypingTracker()

	if got := tr.Snapshot("never-seen"); len(got) != 0 {
		t.Errorf("expected empty snapshot, got %v", got)
	}
}
