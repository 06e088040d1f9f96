package model

import "sort"

// Manager wraps a Graph with the higher-level session/window/pane
// operations the router needs (create/destroy cascades, mirror
// registration, listing), keeping locking and tree bookkeeping in one
// place instead of scattered across router handlers.
type Manager struct {
	Graph *Graph

	// mirrorsBySource tracks, for each source pane id, the set of mirror
	// pane ids that duplicate its output (spec §4.2 mirror panes).
	mirrorsBySource map[string]map[string]struct{}
}

func NewManager() *Manager {
	return &Manager{
		Graph:           NewGraph(),
		mirrorsBySource: make(map[string]map[string]struct{}),
	}
}

// CreateSession creates a session with no windows yet.
func (m *Manager) CreateSession(name string, now int64) *Session {
	m.Graph.Lock()
	defer m.Graph.Unlock()
	s := NewSession(name, now)
	m.Graph.AddSession(s)
	return s
}

// CreateWindow creates a window under sessionID.
func (m *Manager) CreateWindow(sessionID, name string) *Window {
	m.Graph.Lock()
	defer m.Graph.Unlock()
	sess, ok := m.Graph.Sessions[sessionID]
	if !ok {
		return nil
	}
	w := &Window{
		ID:        NewID(),
		SessionID: sessionID,
		Name:      name,
		Index:     len(sess.WindowIDs),
	}
	m.Graph.AddWindow(w)
	return w
}

// CreatePane creates a pane under windowID with a fresh, bottom-pinned
// viewport.
func (m *Manager) CreatePane(windowID string, cols, rows uint16) *Pane {
	m.Graph.Lock()
	defer m.Graph.Unlock()
	win, ok := m.Graph.Windows[windowID]
	if !ok {
		return nil
	}
	p := &Pane{
		ID:       NewID(),
		WindowID: windowID,
		Index:    len(win.PaneIDs),
		Cols:     cols,
		Rows:     rows,
		State:    PaneNormal,
		Viewport: NewViewport(),
	}
	m.Graph.AddPane(p)
	return p
}

// CreateMirror creates a pane that duplicates sourcePaneID's output instead
// of owning its own PTY.
func (m *Manager) CreateMirror(sourcePaneID, windowID string, cols, rows uint16) *Pane {
	m.Graph.Lock()
	win, ok := m.Graph.Windows[windowID]
	if !ok {
		m.Graph.Unlock()
		return nil
	}
	p := &Pane{
		ID:           NewID(),
		WindowID:     windowID,
		Index:        len(win.PaneIDs),
		Cols:         cols,
		Rows:         rows,
		State:        PaneNormal,
		Viewport:     NewViewport(),
		IsMirror:     true,
		MirrorSource: sourcePaneID,
	}
	m.Graph.AddPane(p)
	m.Graph.Unlock()

	m.addMirror(sourcePaneID, p.ID)
	return p
}

func (m *Manager) addMirror(sourceID, mirrorID string) {
	m.Graph.Lock()
	defer m.Graph.Unlock()
	set, ok := m.mirrorsBySource[sourceID]
	if !ok {
		set = make(map[string]struct{})
		m.mirrorsBySource[sourceID] = set
	}
	set[mirrorID] = struct{}{}
}

// MirrorsOf returns the mirror pane ids fed by sourcePaneID's output.
func (m *Manager) MirrorsOf(sourcePaneID string) []string {
	m.Graph.RLock()
	defer m.Graph.RUnlock()
	set := m.mirrorsBySource[sourcePaneID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// ClosePane removes a pane and any mirrors sourced from it, returning the
// pane's parent window id and the mirror pane ids that must also be torn
// down (spec §4.5: closing a source pane also closes its mirrors).
func (m *Manager) ClosePane(paneID string) (windowID string, orphanedMirrors []string) {
	orphanedMirrors = m.MirrorsOf(paneID)

	m.Graph.Lock()
	windowID = m.Graph.RemovePane(paneID)
	for _, mid := range orphanedMirrors {
		m.Graph.RemovePane(mid)
	}
	m.Graph.Unlock()

	m.Graph.Lock()
	delete(m.mirrorsBySource, paneID)
	m.Graph.Unlock()
	return windowID, orphanedMirrors
}

// CloseWindow removes a window and every pane in it (with their mirrors),
// returning the parent session id.
func (m *Manager) CloseWindow(windowID string) (sessionID string) {
	m.Graph.RLock()
	win, ok := m.Graph.Windows[windowID]
	var paneIDs []string
	if ok {
		paneIDs = append(paneIDs, win.PaneIDs...)
	}
	m.Graph.RUnlock()

	for _, pid := range paneIDs {
		m.ClosePane(pid)
	}

	m.Graph.Lock()
	defer m.Graph.Unlock()
	return m.Graph.RemoveWindow(windowID)
}

// DestroySession removes every window/pane under sessionID, then the
// session itself.
func (m *Manager) DestroySession(sessionID string) {
	m.Graph.RLock()
	sess, ok := m.Graph.Sessions[sessionID]
	var windowIDs []string
	if ok {
		windowIDs = append(windowIDs, sess.WindowIDs...)
	}
	m.Graph.RUnlock()

	for _, wid := range windowIDs {
		m.CloseWindow(wid)
	}

	m.Graph.Lock()
	defer m.Graph.Unlock()
	m.Graph.RemoveSession(sessionID)
}

// ListSessions returns every session, ordered by creation time (oldest
// first) for stable client-facing listings.
func (m *Manager) ListSessions() []*Session {
	m.Graph.RLock()
	defer m.Graph.RUnlock()
	out := make([]*Session, 0, len(m.Graph.Sessions))
	for _, s := range m.Graph.Sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// ListWindows returns sessionID's windows ordered by index.
func (m *Manager) ListWindows(sessionID string) []*Window {
	m.Graph.RLock()
	defer m.Graph.RUnlock()
	sess, ok := m.Graph.Sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]*Window, 0, len(sess.WindowIDs))
	for _, wid := range sess.WindowIDs {
		if w, ok := m.Graph.Windows[wid]; ok {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ListAllPanes returns every pane across every session, used by the
// ListAllPanes request (spec §4.5 cross-session listing for the agent
// bridge).
func (m *Manager) ListAllPanes() []*Pane {
	m.Graph.RLock()
	defer m.Graph.RUnlock()
	out := make([]*Pane, 0, len(m.Graph.Panes))
	for _, p := range m.Graph.Panes {
		out = append(out, p)
	}
	return out
}
