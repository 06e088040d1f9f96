// Package model holds the daemon's in-memory session/window/pane graph.
// Entities reference each other by id, never by pointer, so any one of them
// can be removed without chasing back-references (spec §3).
package model

import (
	"sync"

	"github.com/google/uuid"
)

// NewID returns a fresh entity id. All ids in this package are UUIDv4
// strings (spec §3: "opaque identifiers"), grounded on the corpus's use of
// google/uuid for exactly this purpose.
func NewID() string { return uuid.NewString() }

// PaneState is the coarse lifecycle state of a pane (spec §3).
type PaneState string

const (
	PaneNormal PaneState = "normal"
	PaneAgent  PaneState = "agent"
	PaneExited PaneState = "exited"
)

// AgentActivity mirrors the original implementation's ClaudeActivity enum
// (ccmux-protocol/src/types.rs), generalized to any agent type rather than
// just Claude (spec §3).
type AgentActivity string

const (
	ActivityIdle                AgentActivity = "idle"
	ActivityThinking             AgentActivity = "thinking"
	ActivityCoding               AgentActivity = "coding"
	ActivityToolUse              AgentActivity = "tool_use"
	ActivityAwaitingConfirmation AgentActivity = "awaiting_confirmation"
)

// AgentState is attached to a pane once it is recognized as running a
// known agent type (spec §3, supplemented from ClaudeState in types.rs).
type AgentState struct {
	AgentType string
	SessionID string
	Activity  AgentActivity
	Metadata  map[string]interface{}
}

// Viewport tracks a pane's scroll position relative to the bottom of its
// scrollback, carried over field-for-field from the original ViewportState
// (types.rs:221-277).
type Viewport struct {
	OffsetFromBottom int
	IsPinned         bool
	NewLinesSincePin int
}

// NewViewport returns a viewport pinned to the bottom, the initial state of
// every freshly created pane.
func NewViewport() Viewport {
	return Viewport{IsPinned: true}
}

// Pin returns the viewport to the bottom and clears the since-pin counter.
func (v *Viewport) Pin() {
	v.OffsetFromBottom = 0
	v.IsPinned = true
	v.NewLinesSincePin = 0
}

// JumpToBottom is an alias spec §4.5 names explicitly as a distinct client
// request from Pin, though the resulting state is identical.
func (v *Viewport) JumpToBottom() { v.Pin() }

// IsAtBottom reports whether the viewport currently shows the tail of the
// scrollback.
func (v *Viewport) IsAtBottom() bool { return v.OffsetFromBottom == 0 }

// SetOffset scrolls the viewport; scrolling away from zero unpins it, and
// scrolling back to zero re-pins it (spec §4.5 "scrolling up detaches from
// the live tail; returning to the bottom re-attaches").
func (v *Viewport) SetOffset(offset int) {
	if offset < 0 {
		offset = 0
	}
	v.OffsetFromBottom = offset
	if offset == 0 {
		v.Pin()
	} else {
		v.IsPinned = false
	}
}

// AddNewLines advances the since-pin counter while unpinned; pinned
// viewports don't accumulate a backlog because they track the tail live.
func (v *Viewport) AddNewLines(n int) {
	if !v.IsPinned {
		v.NewLinesSincePin += n
	}
}

// PaneTarget addresses a pane either by id or by name, the two addressing
// modes the Reply handler supports (spec §4.5, types.rs PaneTarget).
type PaneTarget struct {
	ID   string
	Name string
}

// Pane is one PTY-backed (or mirror) leaf in the session/window/pane tree.
type Pane struct {
	ID       string
	WindowID string
	Index    int
	Cols     uint16
	Rows     uint16
	State    PaneState
	Agent    *AgentState
	ExitCode *int
	Name     string
	Title    string
	Cwd      string

	// IsMirror marks a pane that duplicates another pane's output rather
	// than owning its own PTY (spec §4.2 mirror panes).
	IsMirror     bool
	MirrorSource string

	Viewport Viewport
}

// Window groups panes under a tiling layout (spec §3). The daemon does not
// compute screen geometry; Cols/Rows per pane are set by the client's split
// request and only clamped server-side.
type Window struct {
	ID           string
	SessionID    string
	Name         string
	Index        int
	PaneIDs      []string
	ActivePaneID string
}

// Session is the top-level container a client attaches to (spec §3),
// carrying the tag/metadata maps used for agent-to-agent routing
// (SessionInfo.tags/metadata in types.rs, supplemented into spec.md's
// session model).
type Session struct {
	ID              string
	Name            string
	CreatedAt       int64
	WindowIDs       []string
	ActiveWindowID  string
	AttachedClients map[string]struct{}
	Worktree        *WorktreeInfo
	Tags            map[string]struct{}
	Metadata        map[string]string
	Orchestrator    bool
}

// WorktreeInfo records the git worktree a session was opened against, if
// any (types.rs WorktreeInfo).
type WorktreeInfo struct {
	Path   string
	Branch string
	IsMain bool
}

// HasTag, AddTag and RemoveTag are grounded directly on SessionInfo's Rust
// methods of the same name (types.rs).
func (s *Session) HasTag(tag string) bool {
	_, ok := s.Tags[tag]
	return ok
}

func (s *Session) AddTag(tag string) {
	if s.Tags == nil {
		s.Tags = make(map[string]struct{})
	}
	s.Tags[tag] = struct{}{}
}

func (s *Session) RemoveTag(tag string) {
	delete(s.Tags, tag)
}

// NewSession constructs a session pinned to no windows yet, ready for the
// router to attach the first window/pane.
func NewSession(name string, now int64) *Session {
	return &Session{
		ID:              NewID(),
		Name:            name,
		CreatedAt:       now,
		AttachedClients: make(map[string]struct{}),
		Tags:            make(map[string]struct{}),
		Metadata:        make(map[string]string),
	}
}

// Graph is the daemon's whole in-memory state: every session, window and
// pane, keyed by id, guarded by one RWMutex. Spec §3 treats this as a
// single consistent snapshot a client can request in full (StateSnapshot);
// a single lock scoped to the whole graph keeps that snapshot atomic
// without requiring a multi-lock ordering discipline.
type Graph struct {
	mu       sync.RWMutex
	Sessions map[string]*Session
	Windows  map[string]*Window
	Panes    map[string]*Pane

	// paneWindow and windowSession let callers walk up the tree from a
	// pane id without storing a back-pointer on the pane itself.
	paneWindow  map[string]string
	windowSession map[string]string
}

func NewGraph() *Graph {
	return &Graph{
		Sessions:      make(map[string]*Session),
		Windows:       make(map[string]*Window),
		Panes:         make(map[string]*Pane),
		paneWindow:    make(map[string]string),
		windowSession: make(map[string]string),
	}
}

func (g *Graph) Lock()    { g.mu.Lock() }
func (g *Graph) Unlock()  { g.mu.Unlock() }
func (g *Graph) RLock()   { g.mu.RLock() }
func (g *Graph) RUnlock() { g.mu.RUnlock() }

// AddSession inserts s. Caller must hold the write lock.
func (g *Graph) AddSession(s *Session) { g.Sessions[s.ID] = s }

// AddWindow inserts w under its session. Caller must hold the write lock.
func (g *Graph) AddWindow(w *Window) {
	g.Windows[w.ID] = w
	g.windowSession[w.ID] = w.SessionID
	if sess, ok := g.Sessions[w.SessionID]; ok {
		sess.WindowIDs = append(sess.WindowIDs, w.ID)
		if sess.ActiveWindowID == "" {
			sess.ActiveWindowID = w.ID
		}
	}
}

// AddPane inserts p under its window. Caller must hold the write lock.
func (g *Graph) AddPane(p *Pane) {
	g.Panes[p.ID] = p
	g.paneWindow[p.ID] = p.WindowID
	if win, ok := g.Windows[p.WindowID]; ok {
		win.PaneIDs = append(win.PaneIDs, p.ID)
		if win.ActivePaneID == "" {
			win.ActivePaneID = p.ID
		}
	}
}

// WindowOf returns the window a pane belongs to, or nil.
func (g *Graph) WindowOf(paneID string) *Window {
	wid, ok := g.paneWindow[paneID]
	if !ok {
		return nil
	}
	return g.Windows[wid]
}

// SessionOfWindow returns the session a window belongs to, or nil.
func (g *Graph) SessionOfWindow(windowID string) *Session {
	sid, ok := g.windowSession[windowID]
	if !ok {
		return nil
	}
	return g.Sessions[sid]
}

// SessionOfPane walks pane -> window -> session.
func (g *Graph) SessionOfPane(paneID string) *Session {
	win := g.WindowOf(paneID)
	if win == nil {
		return nil
	}
	return g.SessionOfWindow(win.ID)
}

// RemovePane deletes a pane and its tree bookkeeping, returning its parent
// window id. Caller must hold the write lock.
func (g *Graph) RemovePane(paneID string) (windowID string) {
	windowID = g.paneWindow[paneID]
	delete(g.Panes, paneID)
	delete(g.paneWindow, paneID)
	if win, ok := g.Windows[windowID]; ok {
		win.PaneIDs = removeString(win.PaneIDs, paneID)
		if win.ActivePaneID == paneID {
			if len(win.PaneIDs) > 0 {
				win.ActivePaneID = win.PaneIDs[0]
			} else {
				win.ActivePaneID = ""
			}
		}
	}
	return windowID
}

// RemoveWindow deletes a window and its tree bookkeeping, returning its
// parent session id. Caller must hold the write lock.
func (g *Graph) RemoveWindow(windowID string) (sessionID string) {
	sessionID = g.windowSession[windowID]
	delete(g.Windows, windowID)
	delete(g.windowSession, windowID)
	if sess, ok := g.Sessions[sessionID]; ok {
		sess.WindowIDs = removeString(sess.WindowIDs, windowID)
		if sess.ActiveWindowID == windowID {
			if len(sess.WindowIDs) > 0 {
				sess.ActiveWindowID = sess.WindowIDs[0]
			} else {
				sess.ActiveWindowID = ""
			}
		}
	}
	return sessionID
}

// RemoveSession deletes a session only; caller is responsible for removing
// its windows/panes first via RemoveWindow/RemovePane so broadcast fan-out
// can still resolve each pane's ancestry while tearing it down.
func (g *Graph) RemoveSession(sessionID string) {
	delete(g.Sessions, sessionID)
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// FindPaneByName searches a session's panes by name (the by-name PaneTarget
// mode of Resolve).
func (g *Graph) FindPaneByName(sessionID, name string) *Pane {
	sess, ok := g.Sessions[sessionID]
	if !ok {
		return nil
	}
	for _, wid := range sess.WindowIDs {
		win, ok := g.Windows[wid]
		if !ok {
			continue
		}
		for _, pid := range win.PaneIDs {
			if p, ok := g.Panes[pid]; ok && p.Name == name {
				return p
			}
		}
	}
	return nil
}

// Resolve turns a PaneTarget into a concrete pane within sessionID's scope.
func (g *Graph) Resolve(sessionID string, t PaneTarget) *Pane {
	if t.ID != "" {
		return g.Panes[t.ID]
	}
	return g.FindPaneByName(sessionID, t.Name)
}
