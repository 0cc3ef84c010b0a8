// Package session pairs users with the admin. A session (room) is the
// ephemeral channel between one user and the admin; the router guarantees
// at most one open session per username, hands out room IDs, tracks which
// connections are attached to each room's delivery group, and runs the
// CREATED -> OPEN -> CLOSED lifecycle. Close is terminal: a later start for
// the same user makes a fresh room, leaving the old history exportable.
package session

import (
	"fmt"
	"sync"
	"time"
)

// Session is one user-admin pairing.
type Session struct {
	RoomID    string     `json:"roomId"`
	Username  string     `json:"username"`
	CreatedAt time.Time  `json:"createdAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
}

// Open reports whether the session is still open.
func (s Session) Open() bool {
	return s.ClosedAt == nil
}

// Router owns all Session records and room membership.
type Router struct {
	mu       sync.RWMutex
	sessions map[string]*Session            // room ID -> session
	openRoom map[string]string              // username -> open room ID
	members  map[string]map[string]struct{} // room ID -> attached connection IDs
	seq      int
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{
		sessions: make(map[string]*Session),
		openRoom: make(map[string]string),
		members:  make(map[string]map[string]struct{}),
	}
}

// Start returns the room ID of the username's open session, creating one if
// none exists. created reports whether a new session was made. Repeated
// calls without an intervening close return the same room ID.
func (r *Router) Start(username string) (roomID string, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if roomID, ok := r.openRoom[username]; ok {
		return roomID, false
	}

	r.seq++
	roomID = fmt.Sprintf("room_%d", r.seq)
	r.sessions[roomID] = &Session{
		RoomID:    roomID,
		Username:  username,
		CreatedAt: time.Now(),
	}
	r.openRoom[username] = roomID
	r.members[roomID] = make(map[string]struct{})
	return roomID, true
}

// Get returns a copy of the session for roomID.
func (r *Router) Get(roomID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[roomID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// IsOpen reports whether roomID names an open session.
func (r *Router) IsOpen(roomID string) bool {
	r.mu.RLock()
	s, ok := r.sessions[roomID]
	open := ok && s.ClosedAt == nil
	r.mu.RUnlock()
	return open
}

// Close sets the session's closedAt if unset. Idempotent; the return value
// reports whether the session transitioned on this call. After close the
// room rejects new messages, but its history stays readable.
func (r *Router) Close(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[roomID]
	if !ok || s.ClosedAt != nil {
		return false
	}
	now := time.Now()
	s.ClosedAt = &now
	delete(r.openRoom, s.Username)
	return true
}

// Join attaches a connection to the room's delivery group. It fails
// silently (returns false) if roomID names a closed or nonexistent session,
// which callers treat as "session gone".
func (r *Router) Join(roomID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[roomID]
	if !ok || s.ClosedAt != nil {
		return false
	}
	r.members[roomID][connID] = struct{}{}
	return true
}

// Leave detaches the connection from every room it joined. Called on
// disconnect.
func (r *Router) Leave(connID string) {
	r.mu.Lock()
	for _, group := range r.members {
		delete(group, connID)
	}
	r.mu.Unlock()
}

// Members returns the connection IDs attached to the room's delivery group.
func (r *Router) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group := r.members[roomID]
	out := make([]string, 0, len(group))
	for id := range group {
		out = append(out, id)
	}
	return out
}

// Sessions returns a snapshot of every session, open and closed.
func (r *Router) Sessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}
