// Package registry is the client connection table and broadcast fabric:
// every attached client, which session (if any) it is attached to, and the
// bounded outbound queue each client drains independently (spec §4.3).
package registry

import (
	"log/slog"
	"sync"

	"github.com/ianremillard/ccmuxd/internal/wire"
)

// outboxCapacity bounds each client's pending-send queue. A slow client
// cannot block a fast one; once full, new broadcasts are dropped for that
// client rather than stalling the sender (spec §4.3 backpressure policy).
const outboxCapacity = 256

// Client is one connected socket's registry entry.
type Client struct {
	ID         string
	Type       wire.ClientType
	SessionID  string // empty if not attached to any session

	outbox chan wire.Envelope
	// closed is closed exactly once, when the client is unregistered, so
	// sends racing with teardown don't panic on a closed channel.
	closed chan struct{}
}

// Outbox is the channel the connection's write-pump goroutine drains.
func (c *Client) Outbox() <-chan wire.Envelope { return c.outbox }

// Registry is grounded on ehrlich-b-wingthing's relay.PTYRoutes: a
// mutex-guarded map of routes with Set/Get/Remove and a best-effort
// fan-out, generalized here from one route per session to many clients per
// session.
type Registry struct {
	log *slog.Logger

	mu       sync.RWMutex
	clients  map[string]*Client
	sessions map[string]map[string]struct{} // session id -> set of client ids
}

func New(log *slog.Logger) *Registry {
	return &Registry{
		log:      log,
		clients:  make(map[string]*Client),
		sessions: make(map[string]map[string]struct{}),
	}
}

// Register adds a new client connection to the table.
func (r *Registry) Register(id string, typ wire.ClientType) *Client {
	c := &Client{
		ID:     id,
		Type:   typ,
		outbox: make(chan wire.Envelope, outboxCapacity),
		closed: make(chan struct{}),
	}
	r.mu.Lock()
	r.clients[id] = c
	r.mu.Unlock()
	return c
}

// Unregister removes a client and detaches it from any session.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return
	}
	if c.SessionID != "" {
		r.removeFromSessionLocked(c.SessionID, id)
	}
	delete(r.clients, id)
	close(c.closed)
}

// Attach marks client id as attached to sessionID, detaching it from any
// previous session first (spec §4.3: a client attaches to exactly one
// session at a time).
func (r *Registry) Attach(id, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok {
		return false
	}
	if c.SessionID != "" {
		r.removeFromSessionLocked(c.SessionID, id)
	}
	c.SessionID = sessionID
	set, ok := r.sessions[sessionID]
	if !ok {
		set = make(map[string]struct{})
		r.sessions[sessionID] = set
	}
	set[id] = struct{}{}
	return true
}

// Detach clears a client's session attachment without unregistering it.
func (r *Registry) Detach(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok || c.SessionID == "" {
		return
	}
	r.removeFromSessionLocked(c.SessionID, id)
	c.SessionID = ""
}

func (r *Registry) removeFromSessionLocked(sessionID, clientID string) {
	set, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(set, clientID)
	if len(set) == 0 {
		delete(r.sessions, sessionID)
	}
}

// SendTo enqueues env for one client, dropping it if that client's outbox
// is full rather than blocking the caller.
func (r *Registry) SendTo(clientID string, env wire.Envelope) bool {
	r.mu.RLock()
	c, ok := r.clients[clientID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.send(c, env)
}

// BroadcastToSession enqueues env for every client attached to sessionID.
func (r *Registry) BroadcastToSession(sessionID string, env wire.Envelope) {
	r.BroadcastToSessionExcept(sessionID, "", env)
}

// BroadcastToSessionExcept is BroadcastToSession skipping exceptClientID,
// used when the originating client already applied the change locally
// (spec §4.3).
func (r *Registry) BroadcastToSessionExcept(sessionID, exceptClientID string, env wire.Envelope) {
	r.mu.RLock()
	set := r.sessions[sessionID]
	targets := make([]*Client, 0, len(set))
	for id := range set {
		if id == exceptClientID {
			continue
		}
		if c, ok := r.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if !r.send(c, env) {
			r.log.Warn("dropped broadcast: outbox full", "client_id", c.ID, "session_id", sessionID)
		}
	}
}

// GlobalBroadcast enqueues env for every connected client regardless of
// session attachment, used for daemon-wide events (spec §4.5 Sync/session
// list changes).
func (r *Registry) GlobalBroadcast(env wire.Envelope) {
	r.mu.RLock()
	targets := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		r.send(c, env)
	}
}

func (r *Registry) send(c *Client, env wire.Envelope) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.outbox <- env:
		return true
	default:
		return false
	}
}

// ClientsInSession returns a snapshot of client ids attached to sessionID.
func (r *Registry) ClientsInSession(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.sessions[sessionID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Get returns the client entry for id, if connected.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// Count returns the number of clients attached to sessionID.
func (r *Registry) Count(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionID])
}

// AllClientIDs returns a snapshot of every connected client id, regardless
// of session attachment.
func (r *Registry) AllClientIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	return out
}
