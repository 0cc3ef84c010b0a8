// Package events is the routing core: it maps every inbound realtime event
// to a handler that mutates exactly one component (presence registry,
// session router, conversation store) and then fans the result out to the
// right recipients — broadcast to all connections, multicast to a room's
// delivery group, or a direct reply to the sender.
//
// A single mutex serializes all handlers, so each one reads and mutates
// shared state to completion before the next begins. That atomicity is what
// upholds the core invariants (one open session per user, monotonic append
// indices, a single admin connection) without per-component coordination.
// Outbound writes happen at the end of the handler, strictly after the
// state mutation is finalized.
package events

import (
	"log"
	"sync"
	"time"

	"github.com/haven/support-chat/internal/conversation"
	"github.com/haven/support-chat/internal/metrics"
	"github.com/haven/support-chat/internal/presence"
	"github.com/haven/support-chat/internal/protocol"
	"github.com/haven/support-chat/internal/ratelimit"
	"github.com/haven/support-chat/internal/session"
	"github.com/haven/support-chat/internal/ws"
)

// Notice texts sent into rooms.
const (
	nudgeText  = "Let's keep things respectful."
	reportText = "Message reported. Admin will review."
)

// Sender delivers outbound frames. *ws.Server satisfies it through a thin
// adapter; tests substitute a recorder.
type Sender interface {
	Send(connID string, data []byte) error
	Broadcast(data []byte)
}

// Dispatcher wires inbound events to the presence registry, session router,
// and conversation store it was constructed with.
type Dispatcher struct {
	mu       sync.Mutex
	registry *presence.Registry
	rooms    *session.Router
	conv     *conversation.Store
	limits   *ratelimit.Limiter
	sender   Sender
}

// New creates a Dispatcher over the given components.
func New(registry *presence.Registry, rooms *session.Router, conv *conversation.Store, limits *ratelimit.Limiter, sender Sender) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		rooms:    rooms,
		conv:     conv,
		limits:   limits,
		sender:   sender,
	}
}

// Register hooks every event handler into the transport's message
// dispatcher.
func (d *Dispatcher) Register(mux *ws.MessageDispatcher) {
	mux.Register(protocol.TypePresence, d.wrap(d.handlePresence))
	mux.Register(protocol.TypeMood, d.wrap(d.handleMood))
	mux.Register(protocol.TypeChatStart, d.wrap(d.handleChatStart))
	mux.Register(protocol.TypeChatMessage, d.wrap(d.handleChatMessage))
	mux.Register(protocol.TypeQuickReply, d.wrap(d.handleQuickReply))
	mux.Register(protocol.TypeTyping, d.wrap(d.handleTyping))
	mux.Register(protocol.TypeReact, d.wrap(d.handleReact))
	mux.Register(protocol.TypeSeen, d.wrap(d.handleSeen))
	mux.Register(protocol.TypeReport, d.wrap(d.handleReport))
	mux.Register(protocol.TypeExport, d.wrap(d.handleExport))
	mux.Register(protocol.TypeAdminJoin, d.wrap(d.handleAdminJoin))
	mux.Register(protocol.TypeCloseSession, d.wrap(d.handleCloseSession))
}

// wrap serializes a handler behind the dispatcher mutex and records its
// latency. No handler suspends mid-mutation, so everything a handler reads
// is consistent for its full duration.
func (d *Dispatcher) wrap(h ws.MessageHandler) ws.MessageHandler {
	return func(conn *ws.Connection, msg interface{}) {
		start := time.Now()
		d.mu.Lock()
		defer func() {
			d.mu.Unlock()
			metrics.EventLatency.Observe(time.Since(start).Seconds())
		}()
		h(conn, msg)
	}
}

// HandleDisconnect is the transport's disconnect callback: it clears the
// connection's presence binding, detaches it from every room, drops its
// rate bucket, and broadcasts the new lobby state if presence changed.
func (d *Dispatcher) HandleDisconnect(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	changed := d.registry.Unregister(connID)
	d.rooms.Leave(connID)
	d.limits.Forget(connID)
	if changed {
		d.broadcastPresence()
	}
	d.updateGauges()
}

// BroadcastPresence pushes the current lobby state to every connection.
// Called by the REST layer after login/logout/delete mutations so polling
// and realtime clients stay in step.
func (d *Dispatcher) BroadcastPresence() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.broadcastPresence()
	d.updateGauges()
}

// ---------------------------------------------------------------------------
// Handlers. All run under d.mu via wrap.
// ---------------------------------------------------------------------------

// handlePresence binds the connection to an identity and announces the new
// lobby state. Registration against a deactivated username is rejected and
// the connection stays unidentified.
func (d *Dispatcher) handlePresence(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.PresenceMsg)
	if !ok {
		return
	}
	if m.Role == presence.RoleUser && m.Username == "" {
		return
	}

	id := presence.Identity{Username: m.Username, Role: m.Role}
	if !d.registry.Register(conn.ID, id) {
		log.Printf("events: presence rejected conn=%s username=%q role=%q", conn.ID, m.Username, m.Role)
		return
	}
	d.broadcastPresence()
	d.updateGauges()
}

// handleMood updates the user's mood and re-broadcasts the lobby.
func (d *Dispatcher) handleMood(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.MoodMsg)
	if !ok || m.Username == "" {
		return
	}
	if d.registry.SetMood(m.Username, m.Mood) {
		d.broadcastPresence()
	}
}

// handleChatStart returns the user's open room, creating session and
// conversation sequence together when none exists, and attaches the
// connection to the room's delivery group.
func (d *Dispatcher) handleChatStart(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.ChatStartMsg)
	if !ok || m.Username == "" {
		return
	}

	u, ok := d.registry.Lookup(m.Username)
	if !ok || u.Status == presence.StatusDeactivated {
		log.Printf("events: chat:start for unknown or deactivated user %q", m.Username)
		return
	}

	roomID, created := d.rooms.Start(m.Username)
	if created {
		d.conv.CreateRoom(roomID)
	}
	d.rooms.Join(roomID, conn.ID)
	d.send(conn.ID, protocol.TypeJoined, protocol.JoinedMsg{RoomID: roomID})
	d.updateGauges()
}

// handleAdminJoin attaches the admin connection to a room's delivery group.
// Joining a closed or unknown room fails silently; the admin UI treats the
// missing chat:joined ack as "session gone".
func (d *Dispatcher) handleAdminJoin(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.AdminJoinMsg)
	if !ok || m.RoomID == "" {
		return
	}
	if !d.registry.IsAdminConn(conn.ID) {
		log.Printf("events: admin:joinRoom from non-admin conn=%s", conn.ID)
		return
	}
	if !d.rooms.Join(m.RoomID, conn.ID) {
		log.Printf("events: admin:joinRoom on closed or unknown room %q", m.RoomID)
		return
	}
	d.send(conn.ID, protocol.TypeJoined, protocol.JoinedMsg{RoomID: m.RoomID})
}

// handleChatMessage validates, throttles, classifies, appends, and
// multicasts a message. Messages to closed rooms are rejected. A profanity
// flag additionally sends a nudge notice to the room; the message itself is
// still delivered — the filter nudges, never blocks.
func (d *Dispatcher) handleChatMessage(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.ChatMessageMsg)
	if !ok {
		return
	}

	if err := conversation.ValidateText(m.Text); err != nil {
		log.Printf("events: invalid message from conn=%s: %v", conn.ID, err)
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return
	}
	if !d.rooms.IsOpen(m.RoomID) {
		log.Printf("events: message to closed or unknown room %q dropped", m.RoomID)
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return
	}
	if !d.limits.Allow(conn.ID) {
		log.Printf("events: rate limited conn=%s room=%s", conn.ID, m.RoomID)
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return
	}

	stored, index, ok := d.conv.Append(m.RoomID, m.Sender, m.Text)
	if !ok {
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return
	}

	d.multicast(m.RoomID, protocol.TypeChatMessage, protocol.NewServerChatMsg(m.RoomID, index, stored))

	if stored.HasFlag(conversation.FlagProfanity) {
		d.multicast(m.RoomID, protocol.TypeNotice, protocol.NoticeMsg{Kind: protocol.NoticeNudge, Text: nudgeText})
		metrics.MessagesTotal.WithLabelValues("flagged").Inc()
		return
	}
	metrics.MessagesTotal.WithLabelValues("delivered").Inc()
}

// handleQuickReply appends a canned message without classification. Quick
// replies are server-provided text, so flags would be noise.
func (d *Dispatcher) handleQuickReply(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.QuickReplyMsg)
	if !ok {
		return
	}
	if err := conversation.ValidateText(m.Text); err != nil {
		return
	}
	if !d.rooms.IsOpen(m.RoomID) {
		return
	}

	stored, index, ok := d.conv.AppendUnfiltered(m.RoomID, m.Sender, m.Text)
	if !ok {
		return
	}
	d.multicast(m.RoomID, protocol.TypeChatMessage, protocol.NewServerChatMsg(m.RoomID, index, stored))
	metrics.MessagesTotal.WithLabelValues("delivered").Inc()
}

// handleTyping relays the typing indicator to the other room members. The
// sender is excluded; it knows it is typing.
func (d *Dispatcher) handleTyping(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.TypingMsg)
	if !ok {
		return
	}
	if !d.rooms.IsOpen(m.RoomID) {
		return
	}
	d.multicastExcept(m.RoomID, conn.ID, protocol.TypeTyping, protocol.ServerTypingMsg{Sender: m.Sender, Typing: m.Typing})
}

// handleReact sets a reaction on a stored message and re-broadcasts it.
func (d *Dispatcher) handleReact(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.ReactMsg)
	if !ok {
		return
	}
	updated, ok := d.conv.SetReaction(m.RoomID, m.Index, m.Reaction)
	if !ok {
		return
	}
	d.multicast(m.RoomID, protocol.TypeUpdate, protocol.UpdateMsg{Index: m.Index, Message: updated})
}

// handleSeen marks a stored message as read and re-broadcasts it.
func (d *Dispatcher) handleSeen(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.SeenMsg)
	if !ok {
		return
	}
	updated, ok := d.conv.MarkSeen(m.RoomID, m.Index)
	if !ok {
		return
	}
	d.multicast(m.RoomID, protocol.TypeUpdate, protocol.UpdateMsg{Index: m.Index, Message: updated})
}

// handleReport appends a report flag to a stored message and notifies the
// room. The flag stays on the message for the admin's review.
func (d *Dispatcher) handleReport(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.ReportMsg)
	if !ok {
		return
	}
	if _, ok := d.conv.AddReport(m.RoomID, m.Index, m.Reason); !ok {
		return
	}
	d.multicast(m.RoomID, protocol.TypeNotice, protocol.NoticeMsg{Kind: protocol.NoticeReport, Text: reportText})
}

// handleExport replies directly to the requester with the room's full
// history. Closed rooms export too; history outlives the session.
func (d *Dispatcher) handleExport(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.ExportMsg)
	if !ok {
		return
	}
	d.send(conn.ID, protocol.TypeExport, protocol.ServerExportMsg{RoomID: m.RoomID, Data: d.conv.List(m.RoomID)})
}

// handleCloseSession closes a session (idempotent, terminal) and announces
// it to the room members and the admin.
func (d *Dispatcher) handleCloseSession(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.CloseSessionMsg)
	if !ok || m.RoomID == "" {
		return
	}
	if !d.registry.IsAdminConn(conn.ID) {
		log.Printf("events: admin:closeSession from non-admin conn=%s", conn.ID)
		return
	}

	// Snapshot the delivery group before close so the announcement still
	// reaches the room.
	members := d.rooms.Members(m.RoomID)
	d.rooms.Close(m.RoomID)

	data, err := protocol.NewServerMessage(protocol.TypeSessionClosed, protocol.SessionClosedMsg{RoomID: m.RoomID})
	if err != nil {
		log.Printf("events: build %s: %v", protocol.TypeSessionClosed, err)
		return
	}
	sent := map[string]bool{}
	for _, id := range members {
		sent[id] = true
		_ = d.sender.Send(id, data)
	}
	// The closing admin gets the ack even if it never joined the room.
	if !sent[conn.ID] {
		_ = d.sender.Send(conn.ID, data)
	}
	d.updateGauges()
}

// ---------------------------------------------------------------------------
// Delivery helpers
// ---------------------------------------------------------------------------

func (d *Dispatcher) send(connID, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("events: build %s: %v", msgType, err)
		return
	}
	if err := d.sender.Send(connID, data); err != nil {
		log.Printf("events: send %s to conn=%s: %v", msgType, connID, err)
	}
}

func (d *Dispatcher) multicast(roomID, msgType string, payload interface{}) {
	d.multicastExcept(roomID, "", msgType, payload)
}

func (d *Dispatcher) multicastExcept(roomID, exceptConnID, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("events: build %s: %v", msgType, err)
		return
	}
	for _, id := range d.rooms.Members(roomID) {
		if id == exceptConnID {
			continue
		}
		_ = d.sender.Send(id, data)
	}
}

func (d *Dispatcher) broadcastPresence() {
	users, adminOnline := d.registry.Snapshot()
	data, err := protocol.NewServerMessage(protocol.TypePresenceUpdate, protocol.PresenceUpdateMsg{
		Users:       users,
		AdminOnline: adminOnline,
	})
	if err != nil {
		log.Printf("events: build %s: %v", protocol.TypePresenceUpdate, err)
		return
	}
	d.sender.Broadcast(data)
}

func (d *Dispatcher) updateGauges() {
	users, _ := d.registry.Snapshot()
	online := 0
	for _, u := range users {
		if u.Status == presence.StatusOnline {
			online++
		}
	}
	metrics.UsersOnline.Set(float64(online))

	open := 0
	for _, s := range d.rooms.Sessions() {
		if s.Open() {
			open++
		}
	}
	metrics.OpenSessions.Set(float64(open))
}
