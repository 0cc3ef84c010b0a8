// Package rest serves the HTTP API: login/logout/delete lifecycle, lobby
// and dashboard views, conversation history, and client configuration.
// Errors follow a fixed taxonomy: validation 400, auth 401, conflict 409,
// not found 404. Realtime concerns live in the events package; this layer
// only reads state and triggers presence broadcasts after its mutations.
package rest

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/haven/support-chat/internal/conversation"
	"github.com/haven/support-chat/internal/metrics"
	"github.com/haven/support-chat/internal/presence"
	"github.com/haven/support-chat/internal/session"
)

// PresenceNotifier pushes the current lobby state to realtime clients.
// Satisfied by the events dispatcher.
type PresenceNotifier interface {
	BroadcastPresence()
}

// Config holds the static settings the API serves and checks.
type Config struct {
	AdminUsername   string
	AdminPassword   string
	QuickReplies    []string
	HelplineContact string
}

// API implements the REST endpoints over the shared state components.
type API struct {
	registry *presence.Registry
	rooms    *session.Router
	conv     *conversation.Store
	notifier PresenceNotifier
	cfg      Config
}

// New creates an API over the given components.
func New(registry *presence.Registry, rooms *session.Router, conv *conversation.Store, notifier PresenceNotifier, cfg Config) *API {
	return &API{
		registry: registry,
		rooms:    rooms,
		conv:     conv,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Router builds the HTTP route table.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/login/admin", a.handleAdminLogin).Methods(http.MethodPost)
	r.HandleFunc("/login/user", a.handleUserLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", a.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/delete", a.handleDelete).Methods(http.MethodPost)
	r.HandleFunc("/lobby", a.handleLobby).Methods(http.MethodGet)
	r.HandleFunc("/dashboard", a.requireAdmin(a.handleDashboard)).Methods(http.MethodGet)
	r.HandleFunc("/conversation/{roomID}", a.handleConversation).Methods(http.MethodGet)
	r.HandleFunc("/config", a.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

func (a *API) credentialsOK(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.cfg.AdminUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.cfg.AdminPassword)) == 1
	return userOK && passOK
}

// requireAdmin guards admin-only endpoints with HTTP basic auth against the
// configured admin credentials.
func (a *API) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !a.credentialsOK(username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="dashboard"`)
			writeError(w, http.StatusUnauthorized, "admin credentials required")
			return
		}
		next(w, r)
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (a *API) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !a.credentialsOK(req.Username, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	a.registry.SetAdminOnline(true)
	a.notifier.BroadcastPresence()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"role": presence.RoleAdmin,
	})
}

func (a *API) handleUserLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Mood     string `json:"mood"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username required")
		return
	}

	profile, err := a.registry.Login(req.Username, req.Mood)
	if err != nil {
		// Deactivated usernames stay reserved, so both failures are
		// conflicts from the client's point of view.
		writeError(w, http.StatusConflict, "username already in use")
		return
	}

	a.notifier.BroadcastPresence()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"role":    presence.RoleUser,
		"profile": profile,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	username, ok := decodeUsername(w, r)
	if !ok {
		return
	}
	if err := a.registry.Logout(username); err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	a.notifier.BroadcastPresence()
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	username, ok := decodeUsername(w, r)
	if !ok {
		return
	}
	if err := a.registry.Deactivate(username); err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	a.notifier.BroadcastPresence()
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (a *API) handleLobby(w http.ResponseWriter, r *http.Request) {
	users, adminOnline := a.registry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users":       users,
		"adminOnline": adminOnline,
	})
}

// Summary is one dashboard row: a user plus aggregates over all their
// sessions, open and closed.
type Summary struct {
	Username     string `json:"username"`
	Status       string `json:"status"`
	Mood         string `json:"mood,omitempty"`
	MessageCount int    `json:"messageCount"`
	UnreadCount  int    `json:"unreadCount"`
	LastActivity int64  `json:"lastActivity"` // unix ms; 0 if no activity yet
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sessionsByUser := make(map[string][]session.Session)
	for _, s := range a.rooms.Sessions() {
		sessionsByUser[s.Username] = append(sessionsByUser[s.Username], s)
	}

	summaries := []Summary{}
	for _, u := range a.registry.AllUsers() {
		sum := Summary{Username: u.Username, Status: u.Status, Mood: u.Mood}
		for _, s := range sessionsByUser[u.Username] {
			if ts := s.CreatedAt.UnixMilli(); ts > sum.LastActivity {
				sum.LastActivity = ts
			}
			for _, m := range a.conv.List(s.RoomID) {
				sum.MessageCount++
				if m.Sender == u.Username && !m.Seen {
					sum.UnreadCount++
				}
				if m.Ts > sum.LastActivity {
					sum.LastActivity = m.Ts
				}
			}
		}
		summaries = append(summaries, sum)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"summaries": summaries})
}

func (a *API) handleConversation(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]
	if !a.conv.Exists(roomID) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": a.conv.List(roomID),
	})
}

func (a *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"quickReplies":    a.cfg.QuickReplies,
		"helplineContact": a.cfg.HelplineContact,
	})
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func decodeUsername(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username required")
		return "", false
	}
	return req.Username, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("rest: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"ok":    false,
		"error": msg,
	})
}
