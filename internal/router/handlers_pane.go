package router

import (
	"github.com/ianremillard/ccmuxd/internal/ipcserver"
	"github.com/ianremillard/ccmuxd/internal/wire"
)

func (r *Router) sessionIDOfWindow(windowID string) (string, bool) {
	r.mgr.Graph.RLock()
	defer r.mgr.Graph.RUnlock()
	w, ok := r.mgr.Graph.Windows[windowID]
	if !ok {
		return "", false
	}
	return w.SessionID, true
}

func (r *Router) sessionIDOfPane(paneID string) (string, bool) {
	r.mgr.Graph.RLock()
	defer r.mgr.Graph.RUnlock()
	sess := r.mgr.Graph.SessionOfPane(paneID)
	if sess == nil {
		return "", false
	}
	return sess.ID, true
}

func (r *Router) handleCreatePane(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.CreatePaneWithOptionsMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad CreatePaneWithOptions payload")
	}
	windowID := msg.WindowID
	if windowID == "" {
		r.mgr.Graph.RLock()
		sess, ok := r.mgr.Graph.Sessions[msg.SessionID]
		if ok {
			windowID = sess.ActiveWindowID
		}
		r.mgr.Graph.RUnlock()
	}
	sessionID, ok := r.sessionIDOfWindow(windowID)
	if !ok {
		return errResult(wire.ErrWindowNotFound, "no such window: "+windowID)
	}

	pane := r.mgr.CreatePane(windowID, 80, 24)
	pane.Name = msg.Name
	pane.Cwd = msg.Cwd
	command := msg.Command
	if command == "" {
		command = defaultShell()
	}
	r.spawnPane(sessionID, pane, []string{command}, msg.Cwd)

	return ipcserver.RouterResult{
		Kind:               ipcserver.ResponseWithBroadcast,
		Type:               wire.TPaneCreatedWithDetails,
		Payload:            wire.PaneCreatedWithDetailsMsg{Pane: paneToSummary(pane), WindowID: windowID, SessionID: sessionID},
		BroadcastSessionID: sessionID,
		BroadcastType:      wire.TPaneCreated,
		BroadcastPayload:   wire.PaneCreatedMsg{Pane: paneToSummary(pane), Direction: msg.Direction, ShouldFocus: msg.Select},
	}
}

func (r *Router) handleInput(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.InputMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad Input payload")
	}
	if err := r.pty.Write(msg.PaneID, msg.Data); err != nil {
		return errResult(wire.ErrPaneNotFound, err.Error())
	}
	return ipcserver.RouterResult{Kind: ipcserver.NoResponse}
}

func (r *Router) handleResize(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.ResizeMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad Resize payload")
	}
	cols, rows := clampSize(msg.Cols, msg.Rows)
	if err := r.pty.Resize(msg.PaneID, cols, rows); err != nil {
		return errResult(wire.ErrPaneNotFound, err.Error())
	}
	r.mgr.Graph.Lock()
	if p, ok := r.mgr.Graph.Panes[msg.PaneID]; ok {
		p.Cols, p.Rows = cols, rows
	}
	r.mgr.Graph.Unlock()

	sessionID, _ := r.sessionIDOfPane(msg.PaneID)
	return ipcserver.RouterResult{
		Kind:               ipcserver.ResponseWithBroadcast,
		Type:               wire.TPaneResized,
		Payload:            wire.PaneResizedMsg{PaneID: msg.PaneID, Cols: cols, Rows: rows},
		BroadcastSessionID: sessionID,
		BroadcastType:      wire.TPaneResized,
		BroadcastPayload:   wire.PaneResizedMsg{PaneID: msg.PaneID, Cols: cols, Rows: rows},
	}
}

// clampSize enforces the minimum viable terminal size (spec §4.5 "resize
// requests below the minimum are clamped, never rejected").
func clampSize(cols, rows uint16) (uint16, uint16) {
	const minCols, minRows = 1, 1
	if cols < minCols {
		cols = minCols
	}
	if rows < minRows {
		rows = minRows
	}
	return cols, rows
}

func (r *Router) handleResizePaneDelta(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.ResizePaneDeltaMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad ResizePaneDelta payload")
	}
	r.mgr.Graph.RLock()
	p, ok := r.mgr.Graph.Panes[msg.PaneID]
	var cols, rows int
	if ok {
		cols, rows = int(p.Cols)+msg.DeltaCol, int(p.Rows)+msg.DeltaRow
	}
	r.mgr.Graph.RUnlock()
	if !ok {
		return errResult(wire.ErrPaneNotFound, "no such pane: "+msg.PaneID)
	}
	if cols < 0 {
		cols = 0
	}
	if rows < 0 {
		rows = 0
	}
	c, rw := clampSize(uint16(cols), uint16(rows))
	if err := r.pty.Resize(msg.PaneID, c, rw); err != nil {
		return errResult(wire.ErrPaneNotFound, err.Error())
	}
	r.mgr.Graph.Lock()
	p.Cols, p.Rows = c, rw
	r.mgr.Graph.Unlock()
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TPaneResized, Payload: wire.PaneResizedMsg{PaneID: msg.PaneID, Cols: c, Rows: rw}}
}

func (r *Router) handleClosePane(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.ClosePaneMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad ClosePane payload")
	}
	sessionID, ok := r.sessionIDOfPane(msg.PaneID)
	if !ok {
		return errResult(wire.ErrPaneNotFound, "no such pane: "+msg.PaneID)
	}

	mirrorSessions := make(map[string]string, len(r.mgr.MirrorsOf(msg.PaneID)))
	for _, mid := range r.mgr.MirrorsOf(msg.PaneID) {
		if mSessionID, ok := r.sessionIDOfPane(mid); ok {
			mirrorSessions[mid] = mSessionID
		}
	}

	_ = r.pty.Kill(msg.PaneID)
	_, mirrors := r.mgr.ClosePane(msg.PaneID)
	for _, mid := range mirrors {
		_ = r.pty.Kill(mid)
		mSessionID, ok := mirrorSessions[mid]
		if !ok {
			continue
		}
		r.reg.BroadcastToSession(mSessionID, wire.Envelope{
			Type:    wire.TMirrorSourceClosed,
			Payload: mustCBOR(wire.MirrorSourceClosedMsg{MirrorPaneID: mid, SourcePaneID: msg.PaneID}),
		})
	}

	// ClosePane responds to the requester directly (unlike most mutations,
	// it is NOT filtered as a broadcast on the agent bridge side — spec
	// §4.6 / original_source's is_broadcast_message explicitly calls this
	// out since tool_close_pane expects PaneClosed as its own response).
	return ipcserver.RouterResult{
		Kind:               ipcserver.ResponseWithBroadcast,
		Type:               wire.TPaneClosed,
		Payload:            wire.PaneClosedMsg{PaneID: msg.PaneID},
		BroadcastSessionID: sessionID,
		BroadcastType:      wire.TPaneClosed,
		BroadcastPayload:   wire.PaneClosedMsg{PaneID: msg.PaneID},
	}
}

func (r *Router) handleSelectPane(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.SelectPaneMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad SelectPane payload")
	}
	r.mgr.Graph.Lock()
	p, ok := r.mgr.Graph.Panes[msg.PaneID]
	var sessionID, windowID string
	if ok {
		windowID = p.WindowID
		if w, ok := r.mgr.Graph.Windows[windowID]; ok {
			w.ActivePaneID = p.ID
			sessionID = w.SessionID
		}
	}
	r.mgr.Graph.Unlock()
	if !ok {
		return errResult(wire.ErrPaneNotFound, "no such pane: "+msg.PaneID)
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TPaneFocused, Payload: wire.PaneFocusedMsg{SessionID: sessionID, WindowID: windowID, PaneID: msg.PaneID}}
}

func (r *Router) handleRenamePane(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.RenamePaneMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad RenamePane payload")
	}
	r.mgr.Graph.Lock()
	p, ok := r.mgr.Graph.Panes[msg.PaneID]
	if ok {
		p.Name = msg.Name
	}
	r.mgr.Graph.Unlock()
	if !ok {
		return errResult(wire.ErrPaneNotFound, "no such pane: "+msg.PaneID)
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TPaneRenamed, Payload: wire.PaneRenamedMsg{PaneID: msg.PaneID, Name: msg.Name}}
}

func (r *Router) handleListAllPanes() ipcserver.RouterResult {
	panes := r.mgr.ListAllPanes()
	out := make([]wire.PaneSummary, 0, len(panes))
	for _, p := range panes {
		out = append(out, paneToSummary(p))
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TAllPanesList, Payload: wire.AllPanesListMsg{Panes: out}}
}

func (r *Router) handleGetPaneStatus(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.GetPaneStatusMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad GetPaneStatus payload")
	}
	r.mgr.Graph.RLock()
	p, ok := r.mgr.Graph.Panes[msg.PaneID]
	var sum wire.PaneSummary
	if ok {
		sum = paneToSummary(p)
	}
	r.mgr.Graph.RUnlock()
	if !ok {
		return errResult(wire.ErrPaneNotFound, "no such pane: "+msg.PaneID)
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TPaneStatus, Payload: wire.PaneStatusMsg{Pane: sum}}
}

func (r *Router) handleCreateMirror(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.CreateMirrorMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad CreateMirror payload")
	}
	sessionID, ok := r.sessionIDOfPane(msg.SourcePaneID)
	if !ok {
		return errResult(wire.ErrPaneNotFound, "no such source pane: "+msg.SourcePaneID)
	}
	windowID := msg.TargetWindowID
	if windowID == "" {
		r.mgr.Graph.RLock()
		if sess, ok := r.mgr.Graph.Sessions[msg.TargetSessionID]; ok {
			windowID = sess.ActiveWindowID
		}
		r.mgr.Graph.RUnlock()
	}
	if windowID == "" {
		return errResult(wire.ErrWindowNotFound, "no target window for mirror")
	}
	r.mgr.Graph.RLock()
	srcPane := r.mgr.Graph.Panes[msg.SourcePaneID]
	r.mgr.Graph.RUnlock()
	var cols, rows uint16 = 80, 24
	if srcPane != nil {
		cols, rows = srcPane.Cols, srcPane.Rows
	}
	mirror := r.mgr.CreateMirror(msg.SourcePaneID, windowID, cols, rows)
	if mirror == nil {
		return errResult(wire.ErrWindowNotFound, "no such window: "+windowID)
	}
	_ = sessionID
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TMirrorCreated, Payload: wire.MirrorCreatedMsg{SourcePaneID: msg.SourcePaneID, MirrorPane: paneToSummary(mirror)}}
}
