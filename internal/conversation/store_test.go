package conversation

import (
	"testing"
	"time"

	"github.com/haven/support-chat/internal/moderation"
)

func newTestStore() *Store {
	return NewStore(moderation.NewTermFilter(nil), moderation.NewSpamFilter())
}

func TestAppend_UnknownRoom(t *testing.T) {
	s := newTestStore()

	if _, _, ok := s.Append("room_404", "sam", "hello"); ok {
		t.Fatal("Append to unknown room succeeded")
	}
	if s.Len("room_404") != 0 {
		t.Fatal("unknown room has messages")
	}
}

func TestAppend_IndexAndOrder(t *testing.T) {
	s := newTestStore()
	s.CreateRoom("room_1")

	for i, text := range []string{"first", "second", "third"} {
		msg, index, ok := s.Append("room_1", "sam", text)
		if !ok {
			t.Fatalf("Append %d failed", i)
		}
		if index != i {
			t.Errorf("message %d: index = %d, want %d", i, index, i)
		}
		if msg.Text != text {
			t.Errorf("message %d: text = %q, want %q", i, msg.Text, text)
		}
	}

	list := s.List("room_1")
	if len(list) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(list))
	}
	if list[0].Text != "first" || list[2].Text != "third" {
		t.Errorf("messages out of order: %+v", list)
	}
}

func TestAppend_TimestampsStrictlyIncreasing(t *testing.T) {
	s := newTestStore()
	s.CreateRoom("room_1")

	// Freeze the clock so every append lands on the same millisecond.
	fixed := time.Now()
	s.now = func() time.Time { return fixed }

	for i := 0; i < 5; i++ {
		if _, _, ok := s.Append("room_1", "sam", "tick"); !ok {
			t.Fatalf("Append %d failed", i)
		}
	}

	list := s.List("room_1")
	for i := 1; i < len(list); i++ {
		if list[i].Ts <= list[i-1].Ts {
			t.Fatalf("ts not strictly increasing at %d: %d <= %d", i, list[i].Ts, list[i-1].Ts)
		}
	}
}

func TestAppend_Classification(t *testing.T) {
	s := newTestStore()
	s.CreateRoom("room_1")

	msg, _, ok := s.Append("room_1", "sam", "You IDIOT")
	if !ok {
		t.Fatal("Append failed")
	}
	if !msg.HasFlag(FlagProfanity) {
		t.Fatalf("expected profanity flag, got %+v", msg.Flags)
	}
	if msg.Flags[0].Detail != "idiot" {
		t.Errorf("flag detail = %q, want %q", msg.Flags[0].Detail, "idiot")
	}

	clean, _, _ := s.Append("room_1", "sam", "have a nice day")
	if len(clean.Flags) != 0 {
		t.Errorf("clean message carries flags: %+v", clean.Flags)
	}
	if clean.Flags == nil {
		t.Error("flags should be an empty slice, not nil")
	}
}

func TestAppend_SpamFlag(t *testing.T) {
	s := newTestStore()
	s.CreateRoom("room_1")

	msg, _, _ := s.Append("room_1", "sam", "visit http://spam.example now")
	if !msg.HasFlag(FlagSpam) {
		t.Fatalf("expected spam flag, got %+v", msg.Flags)
	}
}

func TestAppendUnfiltered_SkipsClassifiers(t *testing.T) {
	s := newTestStore()
	s.CreateRoom("room_1")

	msg, _, ok := s.AppendUnfiltered("room_1", "admin", "You are not an idiot")
	if !ok {
		t.Fatal("AppendUnfiltered failed")
	}
	if len(msg.Flags) != 0 {
		t.Errorf("unfiltered append carries flags: %+v", msg.Flags)
	}
}

func TestAnnotations(t *testing.T) {
	s := newTestStore()
	s.CreateRoom("room_1")
	s.Append("room_1", "sam", "hello")

	updated, ok := s.SetReaction("room_1", 0, "❤️")
	if !ok || updated.Reaction != "❤️" {
		t.Fatalf("SetReaction: ok=%v reaction=%q", ok, updated.Reaction)
	}

	updated, ok = s.MarkSeen("room_1", 0)
	if !ok || !updated.Seen {
		t.Fatalf("MarkSeen: ok=%v seen=%v", ok, updated.Seen)
	}

	updated, ok = s.AddReport("room_1", 0, "uncomfortable")
	if !ok || !updated.HasFlag(FlagReport) {
		t.Fatalf("AddReport: ok=%v flags=%+v", ok, updated.Flags)
	}

	// Annotations must persist in the stored sequence.
	list := s.List("room_1")
	if !list[0].Seen || list[0].Reaction != "❤️" || !list[0].HasFlag(FlagReport) {
		t.Errorf("annotations not persisted: %+v", list[0])
	}
}

func TestAnnotate_OutOfRange(t *testing.T) {
	s := newTestStore()
	s.CreateRoom("room_1")
	s.Append("room_1", "sam", "hello")

	if _, ok := s.MarkSeen("room_1", 1); ok {
		t.Error("MarkSeen past end succeeded")
	}
	if _, ok := s.MarkSeen("room_1", -1); ok {
		t.Error("MarkSeen at -1 succeeded")
	}
	if _, ok := s.SetReaction("room_404", 0, "👍"); ok {
		t.Error("SetReaction on unknown room succeeded")
	}
}

func TestList_ReturnsCopy(t *testing.T) {
	s := newTestStore()
	s.CreateRoom("room_1")
	s.Append("room_1", "sam", "hello")

	list := s.List("room_1")
	list[0].Text = "mutated"

	if s.List("room_1")[0].Text != "hello" {
		t.Error("List exposed internal storage")
	}
}

func TestValidateText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"normal", "hello there", false},
		{"empty", "", true},
		{"at char limit", repeat("a", MaxTextChars), false},
		{"over char limit", repeat("a", MaxTextChars+1), true},
		{"over byte limit", repeat("ab", MaxMessageBytes), true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateText(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateText(%d chars) error = %v, wantErr %v", len(tt.input), err, tt.wantErr)
			}
		})
	}
}

func repeat(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
