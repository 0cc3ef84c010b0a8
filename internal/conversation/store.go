// Package conversation holds per-room message history. Each room's log is
// append-only: entries are never deleted or reordered, only annotated in
// place (reaction, seen, report flags), so message indices handed out at
// append time stay valid for the life of the room.
package conversation

import (
	"sync"
	"time"

	"github.com/haven/support-chat/internal/moderation"
)

// Flag types attached to messages.
const (
	FlagProfanity = "profanity"
	FlagSpam      = "spam"
	FlagReport    = "report"
)

// Flag annotates a message with a moderation or report marker.
type Flag struct {
	Type   string `json:"type"`
	Detail string `json:"detail,omitempty"`
}

// Message is one entry in a room's conversation log. Sender and Text are
// immutable after creation; Flags, Reaction, and Seen may be updated in
// place.
type Message struct {
	Sender   string `json:"sender"`
	Text     string `json:"text"`
	Ts       int64  `json:"ts"` // unix milliseconds, strictly increasing per room
	Flags    []Flag `json:"flags"`
	Reaction string `json:"reaction,omitempty"`
	Seen     bool   `json:"seen"`
}

// HasFlag reports whether the message carries a flag of the given type.
func (m Message) HasFlag(flagType string) bool {
	for _, f := range m.Flags {
		if f.Type == flagType {
			return true
		}
	}
	return false
}

// Store owns every room's message sequence. Appends classify text through
// the configured classifiers; the resulting flags ride along with the
// message but never prevent it from being stored or delivered.
type Store struct {
	mu        sync.RWMutex
	rooms     map[string][]Message
	profanity moderation.Classifier
	spam      moderation.Classifier
	now       func() time.Time
}

// NewStore creates a Store. profanity is the primary soft filter (its hits
// trigger a room nudge); spam is an optional secondary classifier whose hits
// only annotate. Either may be nil to disable that classification.
func NewStore(profanity, spam moderation.Classifier) *Store {
	return &Store{
		rooms:     make(map[string][]Message),
		profanity: profanity,
		spam:      spam,
		now:       time.Now,
	}
}

// CreateRoom registers an empty sequence for roomID. Idempotent; an existing
// sequence is left untouched.
func (s *Store) CreateRoom(roomID string) {
	s.mu.Lock()
	if _, ok := s.rooms[roomID]; !ok {
		s.rooms[roomID] = []Message{}
	}
	s.mu.Unlock()
}

// Exists reports whether roomID has a registered sequence.
func (s *Store) Exists(roomID string) bool {
	s.mu.RLock()
	_, ok := s.rooms[roomID]
	s.mu.RUnlock()
	return ok
}

// Append classifies text, constructs a Message, and appends it to the
// room's sequence. It returns the stored message and its 0-based index,
// which equals the sequence length before the append. ok is false and
// nothing is stored if roomID is unknown.
func (s *Store) Append(roomID, sender, text string) (msg Message, index int, ok bool) {
	var flags []Flag
	if s.profanity != nil {
		if r := s.profanity.Classify(text); r.Flagged {
			flags = append(flags, Flag{Type: FlagProfanity, Detail: r.Term})
		}
	}
	if s.spam != nil {
		if r := s.spam.Classify(text); r.Flagged {
			flags = append(flags, Flag{Type: FlagSpam, Detail: r.Term})
		}
	}
	return s.append(roomID, sender, text, flags)
}

// AppendUnfiltered appends without running classifiers. Used for quick
// replies, which are server-provided canned text.
func (s *Store) AppendUnfiltered(roomID, sender, text string) (msg Message, index int, ok bool) {
	return s.append(roomID, sender, text, nil)
}

func (s *Store) append(roomID, sender, text string, flags []Flag) (Message, int, bool) {
	if flags == nil {
		flags = []Flag{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.rooms[roomID]
	if !ok {
		return Message{}, 0, false
	}

	ts := s.now().UnixMilli()
	if n := len(seq); n > 0 && ts <= seq[n-1].Ts {
		// Same-millisecond appends still get strictly increasing timestamps.
		ts = seq[n-1].Ts + 1
	}

	msg := Message{Sender: sender, Text: text, Ts: ts, Flags: flags}
	index := len(seq)
	s.rooms[roomID] = append(seq, msg)
	return msg, index, true
}

// SetReaction sets the reaction on the message at index and returns the
// updated message. ok is false if roomID is unknown or index is out of
// range.
func (s *Store) SetReaction(roomID string, index int, reaction string) (Message, bool) {
	return s.annotate(roomID, index, func(m *Message) {
		m.Reaction = reaction
	})
}

// MarkSeen marks the message at index as seen and returns the updated
// message. ok is false if roomID is unknown or index is out of range.
func (s *Store) MarkSeen(roomID string, index int) (Message, bool) {
	return s.annotate(roomID, index, func(m *Message) {
		m.Seen = true
	})
}

// AddReport appends a report flag to the message at index and returns the
// updated message. ok is false if roomID is unknown or index is out of
// range.
func (s *Store) AddReport(roomID string, index int, reason string) (Message, bool) {
	return s.annotate(roomID, index, func(m *Message) {
		m.Flags = append(m.Flags, Flag{Type: FlagReport, Detail: reason})
	})
}

func (s *Store) annotate(roomID string, index int, mutate func(*Message)) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.rooms[roomID]
	if !ok || index < 0 || index >= len(seq) {
		return Message{}, false
	}
	mutate(&seq[index])
	return seq[index], true
}

// List returns a copy of the room's full ordered sequence, or an empty
// slice if roomID is unknown.
func (s *Store) List(roomID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.rooms[roomID]
	out := make([]Message, len(seq))
	copy(out, seq)
	return out
}

// Len returns the number of messages in the room, 0 if unknown.
func (s *Store) Len(roomID string) int {
	s.mu.RLock()
	n := len(s.rooms[roomID])
	s.mu.RUnlock()
	return n
}
