// Package presence tracks who is here: user profiles with their
// online/offline/deactivated status, the connection-to-identity bindings of
// the realtime layer, and the single admin's online state. The registry is
// the only owner of User.status.
package presence

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// User status values.
const (
	StatusOnline      = "online"
	StatusOffline     = "offline"
	StatusDeactivated = "deactivated"
)

// Roles carried by connection identities. The admin is a distinct actor,
// not a User record, so a real user named "admin" cannot collide with it.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Lifecycle errors surfaced to the REST layer.
var (
	ErrUsernameTaken = errors.New("presence: username already in use")
	ErrDeactivated   = errors.New("presence: username is deactivated")
	ErrUserNotFound  = errors.New("presence: user not found")
)

// User is an anonymous participant's profile.
type User struct {
	Username  string    `json:"username"`
	Status    string    `json:"status"`
	Mood      string    `json:"mood,omitempty"`
	CreatedAt time.Time `json:"-"`
}

// Identity is what a connection authenticated as.
type Identity struct {
	Username string
	Role     string
}

// Registry holds all presence state behind one lock. Connection-level
// operations (Register/Unregister) are silent no-ops on unknown input:
// presence loss must never take down the event loop.
type Registry struct {
	mu          sync.RWMutex
	users       map[string]*User
	conns       map[string]Identity // connection ID -> identity
	adminConn   string              // connection ID of the live admin connection
	adminOnline bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*User),
		conns: make(map[string]Identity),
	}
}

// Login creates or revives a user profile and marks it online. It fails
// with ErrUsernameTaken while the username is online, and with
// ErrDeactivated forever after deactivation: deactivated usernames stay
// reserved for the process lifetime.
func (r *Registry) Login(username, mood string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if ok {
		switch u.Status {
		case StatusDeactivated:
			return User{}, ErrDeactivated
		case StatusOnline:
			return User{}, ErrUsernameTaken
		}
		// Offline profile logging back in.
		u.Status = StatusOnline
		if mood != "" {
			u.Mood = mood
		}
		return *u, nil
	}

	u = &User{
		Username:  username,
		Status:    StatusOnline,
		Mood:      mood,
		CreatedAt: time.Now(),
	}
	r.users[username] = u
	return *u, nil
}

// Logout marks the user offline. The profile is retained.
func (r *Registry) Logout(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if !ok {
		return ErrUserNotFound
	}
	if u.Status != StatusDeactivated {
		u.Status = StatusOffline
	}
	return nil
}

// Deactivate transitions the user to the terminal deactivated status. The
// username remains reserved; there is no way back.
func (r *Registry) Deactivate(username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if !ok {
		return ErrUserNotFound
	}
	u.Status = StatusDeactivated
	return nil
}

// SetMood updates the user's mood. Unknown or deactivated users are a
// no-op; the return value reports whether anything changed.
func (r *Registry) SetMood(username, mood string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if !ok || u.Status == StatusDeactivated {
		return false
	}
	u.Mood = mood
	return true
}

// Register binds a connection to an identity, overwriting any prior binding
// for that connection. For users it creates the profile on first sight and
// marks it online; registration against a deactivated username is rejected
// and the connection stays unidentified. For the admin it records the
// (single) live admin connection — a newer admin connection replaces the
// old binding. The return value reports whether presence state changed.
func (r *Registry) Register(connID string, id Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch id.Role {
	case RoleUser:
		u, ok := r.users[id.Username]
		if ok && u.Status == StatusDeactivated {
			return false
		}
		if !ok {
			u = &User{Username: id.Username, Status: StatusOnline, CreatedAt: time.Now()}
			r.users[id.Username] = u
		} else {
			u.Status = StatusOnline
		}
		r.conns[connID] = id
		return true

	case RoleAdmin:
		r.conns[connID] = id
		r.adminConn = connID
		r.adminOnline = true
		return true

	default:
		return false
	}
}

// Unregister looks up the connection's identity and clears its presence:
// users go offline (unless deactivated), the admin's online flag is cleared
// when its live connection drops. Unknown connections are a silent no-op.
// The return value reports whether presence state changed.
func (r *Registry) Unregister(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.conns[connID]
	if !ok {
		return false
	}
	delete(r.conns, connID)

	switch id.Role {
	case RoleUser:
		if u, ok := r.users[id.Username]; ok && u.Status != StatusDeactivated {
			u.Status = StatusOffline
		}
		return true
	case RoleAdmin:
		// Only the current admin binding clears the flag; a replaced
		// connection dropping later must not mark the admin offline.
		if r.adminConn == connID {
			r.adminConn = ""
			r.adminOnline = false
			return true
		}
		return false
	}
	return false
}

// IdentityOf returns the identity bound to a connection.
func (r *Registry) IdentityOf(connID string) (Identity, bool) {
	r.mu.RLock()
	id, ok := r.conns[connID]
	r.mu.RUnlock()
	return id, ok
}

// IsAdminConn reports whether connID is the live admin connection.
func (r *Registry) IsAdminConn(connID string) bool {
	r.mu.RLock()
	ok := r.adminConn != "" && r.adminConn == connID
	r.mu.RUnlock()
	return ok
}

// AdminConn returns the live admin connection ID, or "" if none.
func (r *Registry) AdminConn() string {
	r.mu.RLock()
	id := r.adminConn
	r.mu.RUnlock()
	return id
}

// SetAdminOnline sets the admin online flag directly. Used by the REST
// admin login, which precedes the admin's realtime connection.
func (r *Registry) SetAdminOnline(online bool) {
	r.mu.Lock()
	r.adminOnline = online
	r.mu.Unlock()
}

// AdminOnline reports whether the admin is online.
func (r *Registry) AdminOnline() bool {
	r.mu.RLock()
	on := r.adminOnline
	r.mu.RUnlock()
	return on
}

// Snapshot returns all non-deactivated users sorted by username, plus the
// admin online flag. This is what the lobby and presence broadcasts show.
func (r *Registry) Snapshot() ([]User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]User, 0, len(r.users))
	for _, u := range r.users {
		if u.Status == StatusDeactivated {
			continue
		}
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, r.adminOnline
}

// AllUsers returns every user profile including deactivated ones, sorted by
// username. Used by the admin dashboard.
func (r *Registry) AllUsers() []User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// Lookup returns the profile for username.
func (r *Registry) Lookup(username string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[username]
	if !ok {
		return User{}, false
	}
	return *u, true
}
