package session

import "testing"

func TestStart_SequentialRoomIDs(t *testing.T) {
	r := NewRouter()

	roomID, created := r.Start("sam")
	if !created {
		t.Fatal("first Start did not create a session")
	}
	if roomID != "room_1" {
		t.Fatalf("roomID = %q, want %q", roomID, "room_1")
	}

	roomID2, created := r.Start("alex")
	if !created || roomID2 != "room_2" {
		t.Fatalf("second user: created=%v roomID=%q, want room_2", created, roomID2)
	}
}

func TestStart_IdempotentWhileOpen(t *testing.T) {
	r := NewRouter()

	first, _ := r.Start("sam")
	second, created := r.Start("sam")
	if created {
		t.Fatal("repeated Start created a new session")
	}
	if second != first {
		t.Fatalf("repeated Start returned %q, want %q", second, first)
	}
}

func TestStart_NewRoomAfterClose(t *testing.T) {
	r := NewRouter()

	first, _ := r.Start("sam")
	if !r.Close(first) {
		t.Fatal("Close failed")
	}

	second, created := r.Start("sam")
	if !created {
		t.Fatal("Start after close did not create a session")
	}
	if second == first {
		t.Fatal("Start after close reused the closed room ID")
	}

	// The old room's record survives for exports and the dashboard.
	if _, ok := r.Get(first); !ok {
		t.Error("closed session record was dropped")
	}
}

func TestClose_Idempotent(t *testing.T) {
	r := NewRouter()
	roomID, _ := r.Start("sam")

	if !r.Close(roomID) {
		t.Fatal("first Close returned false")
	}
	if r.Close(roomID) {
		t.Error("second Close reported a transition")
	}
	if r.IsOpen(roomID) {
		t.Error("room still open after Close")
	}
	if r.Close("room_404") {
		t.Error("Close on unknown room reported a transition")
	}
}

func TestJoin_ClosedOrUnknownRoom(t *testing.T) {
	r := NewRouter()
	roomID, _ := r.Start("sam")
	r.Close(roomID)

	if r.Join(roomID, "conn1") {
		t.Error("Join on closed room succeeded")
	}
	if r.Join("room_404", "conn1") {
		t.Error("Join on unknown room succeeded")
	}
}

func TestMembers_JoinAndLeave(t *testing.T) {
	r := NewRouter()
	roomID, _ := r.Start("sam")

	if !r.Join(roomID, "conn1") {
		t.Fatal("Join failed")
	}
	r.Join(roomID, "conn2")

	if n := len(r.Members(roomID)); n != 2 {
		t.Fatalf("expected 2 members, got %d", n)
	}

	r.Leave("conn1")
	members := r.Members(roomID)
	if len(members) != 1 || members[0] != "conn2" {
		t.Fatalf("members after leave = %v", members)
	}
}

func TestSessions_SnapshotIncludesClosed(t *testing.T) {
	r := NewRouter()
	open, _ := r.Start("sam")
	closed, _ := r.Start("alex")
	r.Close(closed)

	all := r.Sessions()
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(all))
	}
	for _, s := range all {
		switch s.RoomID {
		case open:
			if !s.Open() {
				t.Errorf("session %s should be open", s.RoomID)
			}
		case closed:
			if s.Open() {
				t.Errorf("session %s should be closed", s.RoomID)
			}
		default:
			t.Errorf("unexpected session %q", s.RoomID)
		}
	}
}
