package router

import (
	"github.com/ianremillard/ccmuxd/internal/ipcserver"
	"github.com/ianremillard/ccmuxd/internal/wire"
)

func (r *Router) handleCreateWindow(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.CreateWindowWithOptionsMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad CreateWindowWithOptions payload")
	}
	r.mgr.Graph.RLock()
	_, ok := r.mgr.Graph.Sessions[msg.SessionID]
	r.mgr.Graph.RUnlock()
	if !ok {
		return errResult(wire.ErrSessionNotFound, "no such session: "+msg.SessionID)
	}

	win := r.mgr.CreateWindow(msg.SessionID, msg.Name)
	pane := r.mgr.CreatePane(win.ID, 80, 24)
	pane.Cwd = msg.Cwd
	command := msg.Command
	if command == "" {
		command = defaultShell()
	}
	r.spawnPane(msg.SessionID, pane, []string{command}, msg.Cwd)

	return ipcserver.RouterResult{
		Kind:               ipcserver.ResponseWithBroadcast,
		Type:               wire.TWindowCreated,
		Payload:            wire.WindowCreatedMsg{Window: windowToSummary(win)},
		BroadcastSessionID: msg.SessionID,
		BroadcastType:      wire.TWindowCreated,
		BroadcastPayload:   wire.WindowCreatedMsg{Window: windowToSummary(win)},
	}
}

func (r *Router) handleListWindows(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.ListWindowsMsg
	_ = env.Decode(&msg)
	windows := r.mgr.ListWindows(msg.SessionID)
	out := make([]wire.WindowSummary, 0, len(windows))
	for _, w := range windows {
		out = append(out, windowToSummary(w))
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TWindowList, Payload: wire.WindowListMsg{Windows: out}}
}

func (r *Router) handleRenameWindow(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.RenameWindowMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad RenameWindow payload")
	}
	r.mgr.Graph.Lock()
	w, ok := r.mgr.Graph.Windows[msg.WindowID]
	if ok {
		w.Name = msg.Name
	}
	r.mgr.Graph.Unlock()
	if !ok {
		return errResult(wire.ErrWindowNotFound, "no such window: "+msg.WindowID)
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TWindowRenamed, Payload: wire.WindowRenamedMsg{WindowID: msg.WindowID, Name: msg.Name}}
}

func (r *Router) handleSelectWindow(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.SelectWindowMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad SelectWindow payload")
	}
	r.mgr.Graph.Lock()
	w, ok := r.mgr.Graph.Windows[msg.WindowID]
	if ok {
		if sess, ok := r.mgr.Graph.Sessions[w.SessionID]; ok {
			sess.ActiveWindowID = w.ID
		}
	}
	r.mgr.Graph.Unlock()
	if !ok {
		return errResult(wire.ErrWindowNotFound, "no such window: "+msg.WindowID)
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TWindowFocused, Payload: wire.WindowFocusedMsg{SessionID: w.SessionID, WindowID: w.ID}}
}
