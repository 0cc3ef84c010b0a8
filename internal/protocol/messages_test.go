package protocol

import (
	"encoding/json"
	"testing"

	"github.com/haven/support-chat/internal/conversation"
)

// ---------------------------------------------------------------------------
// Test: Parsing valid client messages
// ---------------------------------------------------------------------------

func TestParseClientMessage_Presence(t *testing.T) {
	input := []byte(`{"type":"presence","username":"sam","role":"user"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypePresence {
		t.Fatalf("expected type %q, got %q", TypePresence, msgType)
	}

	pm, ok := msg.(PresenceMsg)
	if !ok {
		t.Fatalf("expected PresenceMsg, got %T", msg)
	}
	if pm.Username != "sam" || pm.Role != "user" {
		t.Errorf("unexpected payload: %+v", pm)
	}
}

func TestParseClientMessage_ChatMessage(t *testing.T) {
	input := []byte(`{"type":"chat:message","roomId":"room_1","sender":"sam","text":"Hello!"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeChatMessage {
		t.Fatalf("expected type %q, got %q", TypeChatMessage, msgType)
	}

	cm, ok := msg.(ChatMessageMsg)
	if !ok {
		t.Fatalf("expected ChatMessageMsg, got %T", msg)
	}
	if cm.RoomID != "room_1" {
		t.Errorf("expected roomId %q, got %q", "room_1", cm.RoomID)
	}
	if cm.Sender != "sam" || cm.Text != "Hello!" {
		t.Errorf("unexpected payload: %+v", cm)
	}
}

func TestParseClientMessage_React(t *testing.T) {
	input := []byte(`{"type":"chat:react","roomId":"room_1","index":2,"reaction":"❤️"}`)

	_, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rm, ok := msg.(ReactMsg)
	if !ok {
		t.Fatalf("expected ReactMsg, got %T", msg)
	}
	if rm.Index != 2 || rm.Reaction != "❤️" {
		t.Errorf("unexpected payload: %+v", rm)
	}
}

func TestParseClientMessage_AllClientTypes(t *testing.T) {
	// Every client event must round-trip through the parse switch.
	inputs := map[string]string{
		TypePresence:     `{"type":"presence","username":"sam","role":"user"}`,
		TypeMood:         `{"type":"presence:mood","username":"sam","mood":"calm"}`,
		TypeChatStart:    `{"type":"chat:start","username":"sam"}`,
		TypeChatMessage:  `{"type":"chat:message","roomId":"room_1","sender":"sam","text":"hi"}`,
		TypeQuickReply:   `{"type":"chat:quickReply","roomId":"room_1","sender":"admin","text":"I hear you."}`,
		TypeTyping:       `{"type":"chat:typing","roomId":"room_1","sender":"sam","typing":true}`,
		TypeReact:        `{"type":"chat:react","roomId":"room_1","index":0,"reaction":"👍"}`,
		TypeSeen:         `{"type":"chat:seen","roomId":"room_1","index":0}`,
		TypeReport:       `{"type":"chat:report","roomId":"room_1","index":0,"reason":"spam"}`,
		TypeExport:       `{"type":"chat:export","roomId":"room_1"}`,
		TypeAdminJoin:    `{"type":"admin:joinRoom","roomId":"room_1"}`,
		TypeCloseSession: `{"type":"admin:closeSession","roomId":"room_1"}`,
		TypePing:         `{"type":"ping"}`,
	}

	for wantType, raw := range inputs {
		msgType, msg, err := ParseClientMessage([]byte(raw))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", wantType, err)
			continue
		}
		if msgType != wantType {
			t.Errorf("parsed type %q, want %q", msgType, wantType)
		}
		if msg == nil {
			t.Errorf("%s: nil decoded message", wantType)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: Parse failures
// ---------------------------------------------------------------------------

func TestParseClientMessage_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `hello`},
		{"missing type", `{"text":"hi"}`},
		{"empty type", `{"type":""}`},
		{"unknown type", `{"type":"bogus"}`},
		{"server-only type", `{"type":"chat:joined","roomId":"room_1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseClientMessage([]byte(tt.input)); err == nil {
				t.Errorf("ParseClientMessage(%q) succeeded, want error", tt.input)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Test: Server message construction
// ---------------------------------------------------------------------------

func TestNewServerMessage_InjectsType(t *testing.T) {
	data, err := NewServerMessage(TypeJoined, JoinedMsg{RoomID: "room_1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["type"] != TypeJoined {
		t.Errorf("type = %v, want %q", decoded["type"], TypeJoined)
	}
	if decoded["roomId"] != "room_1" {
		t.Errorf("roomId = %v, want %q", decoded["roomId"], "room_1")
	}
}

func TestNewServerMessage_NoticeKind(t *testing.T) {
	// The notice variant rides in "kind"; "type" stays the envelope
	// discriminator.
	data, err := NewServerMessage(TypeNotice, NoticeMsg{Kind: NoticeNudge, Text: "easy now"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["type"] != TypeNotice {
		t.Errorf("type = %v, want %q", decoded["type"], TypeNotice)
	}
	if decoded["kind"] != NoticeNudge {
		t.Errorf("kind = %v, want %q", decoded["kind"], NoticeNudge)
	}
}

func TestNewServerChatMsg_EmptyFlags(t *testing.T) {
	m := conversation.Message{Sender: "sam", Text: "hi", Ts: 1700000000000, Flags: []conversation.Flag{}}
	out := NewServerChatMsg("room_1", 0, m)

	data, err := NewServerMessage(TypeChatMessage, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	flags, ok := decoded["flags"].([]interface{})
	if !ok {
		t.Fatalf("flags serialized as %T, want array", decoded["flags"])
	}
	if len(flags) != 0 {
		t.Errorf("expected empty flags array, got %v", flags)
	}
}
