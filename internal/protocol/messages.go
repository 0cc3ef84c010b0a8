// Package protocol defines the realtime message types exchanged between
// clients and the server. All messages are JSON with a consistent envelope
// carrying a "type" discriminator; the parse switch is the single exhaustive
// list of client events, so an unknown event is a parse error rather than a
// silently ignored string.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/haven/support-chat/internal/conversation"
	"github.com/haven/support-chat/internal/presence"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypePresence     = "presence"
	TypeMood         = "presence:mood"
	TypeChatStart    = "chat:start"
	TypeChatMessage  = "chat:message"
	TypeQuickReply   = "chat:quickReply"
	TypeTyping       = "chat:typing"
	TypeReact        = "chat:react"
	TypeSeen         = "chat:seen"
	TypeReport       = "chat:report"
	TypeExport       = "chat:export"
	TypeAdminJoin    = "admin:joinRoom"
	TypeCloseSession = "admin:closeSession"
	TypePing         = "ping"
)

// Server -> Client message types. TypeChatMessage, TypeTyping, and
// TypeExport are reused in both directions, as the event names suggest.
const (
	TypeJoined         = "chat:joined"
	TypeUpdate         = "chat:update"
	TypeNotice         = "chat:notice"
	TypeSessionClosed  = "admin:sessionClosed"
	TypePresenceUpdate = "presence:update"
	TypeError          = "error"
	TypePong           = "pong"
)

// Notice kinds carried by chat:notice payloads.
const (
	NoticeNudge  = "nudge"
	NoticeReport = "report"
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

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so the rest of the payload can be decoded later into the
// appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

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

// PresenceMsg binds the sending connection to an identity.
type PresenceMsg struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// MoodMsg updates the sender's mood shown in the lobby.
type MoodMsg struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Mood     string `json:"mood"`
}

// ChatStartMsg asks for the user's room, creating one if needed.
type ChatStartMsg struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

// ChatMessageMsg is a text message sent into a room.
type ChatMessageMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// QuickReplyMsg is a canned one-click message sent into a room. It skips
// content classification since the text is server-provided.
type QuickReplyMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// TypingMsg toggles the sender's typing indicator for the room.
type TypingMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Sender string `json:"sender"`
	Typing bool   `json:"typing"`
}

// ReactMsg sets a reaction on the message at Index.
type ReactMsg struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	Index    int    `json:"index"`
	Reaction string `json:"reaction"`
}

// SeenMsg marks the message at Index as read.
type SeenMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Index  int    `json:"index"`
}

// ReportMsg reports the message at Index for admin review.
type ReportMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ExportMsg requests the room's full conversation history.
type ExportMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// AdminJoinMsg attaches the admin connection to a room's delivery group.
type AdminJoinMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// CloseSessionMsg closes a session. Admin only; terminal.
type CloseSessionMsg struct {
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

// JoinedMsg acknowledges a chat:start or admin:joinRoom with the room ID.
type JoinedMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// ServerChatMsg delivers a stored message to room members. Index is the
// message's position in the room's sequence, used by clients for reactions
// and read receipts.
type ServerChatMsg struct {
	Type     string              `json:"type"`
	RoomID   string              `json:"roomId"`
	Index    int                 `json:"index"`
	Sender   string              `json:"sender"`
	Text     string              `json:"text"`
	Ts       int64               `json:"ts"`
	Flags    []conversation.Flag `json:"flags"`
	Reaction string              `json:"reaction,omitempty"`
	Seen     bool                `json:"seen"`
}

// NewServerChatMsg builds a ServerChatMsg from a stored message.
func NewServerChatMsg(roomID string, index int, m conversation.Message) ServerChatMsg {
	return ServerChatMsg{
		RoomID:   roomID,
		Index:    index,
		Sender:   m.Sender,
		Text:     m.Text,
		Ts:       m.Ts,
		Flags:    m.Flags,
		Reaction: m.Reaction,
		Seen:     m.Seen,
	}
}

// ServerTypingMsg relays a participant's typing indicator.
type ServerTypingMsg struct {
	Type   string `json:"type"`
	Sender string `json:"sender"`
	Typing bool   `json:"typing"`
}

// UpdateMsg re-broadcasts a message after an in-place annotation.
type UpdateMsg struct {
	Type    string               `json:"type"`
	Index   int                  `json:"index"`
	Message conversation.Message `json:"message"`
}

// NoticeMsg is a room-scoped moderation or report notice. The kind field
// distinguishes notice variants since "type" is taken by the envelope.
type NoticeMsg struct {
	Type string `json:"type"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// ServerExportMsg returns a room's full history to the requester.
type ServerExportMsg struct {
	Type   string                 `json:"type"`
	RoomID string                 `json:"roomId"`
	Data   []conversation.Message `json:"data"`
}

// SessionClosedMsg announces that a session was closed by the admin.
type SessionClosedMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// PresenceUpdateMsg broadcasts the current lobby state to everyone.
type PresenceUpdateMsg struct {
	Type        string          `json:"type"`
	Users       []presence.User `json:"users"`
	AdminOnline bool            `json:"adminOnline"`
}

// ErrorMsg communicates an error condition.
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

// ParseClientMessage parses raw frame bytes into a typed client message. It
// returns the message type string, the decoded struct, and any error. An
// error is returned for unknown or server-only message types.
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
	case TypePresence:
		var m PresenceMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeMood:
		var m MoodMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatStart:
		var m ChatStartMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatMessage:
		var m ChatMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeQuickReply:
		var m QuickReplyMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReact:
		var m ReactMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSeen:
		var m SeenMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReport:
		var m ReportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeExport:
		var m ExportMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeAdminJoin:
		var m AdminJoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeCloseSession:
		var m CloseSessionMsg
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

// NewServerMessage creates the JSON bytes for a server message. The msgType
// is injected into the payload under the "type" key; payload should be one
// of the server message structs above.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
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
