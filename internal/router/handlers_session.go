package router

import (
	"log/slog"
	"strings"

	"github.com/ianremillard/ccmuxd/internal/ipcserver"
	"github.com/ianremillard/ccmuxd/internal/model"
	"github.com/ianremillard/ccmuxd/internal/poller"
	"github.com/ianremillard/ccmuxd/internal/ptymgr"
	"github.com/ianremillard/ccmuxd/internal/wire"
)

func (r *Router) handleConnect(clientID string, env wire.Envelope) ipcserver.RouterResult {
	var msg wire.ConnectMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad Connect payload")
	}
	if msg.ProtocolVersion != wire.Protocol {
		return errResult(wire.ErrProtocolMismatch, "protocol version mismatch")
	}
	return ipcserver.RouterResult{
		Kind:    ipcserver.Response,
		Type:    wire.TConnected,
		Payload: wire.ConnectedMsg{ClientID: clientID, ProtocolVersion: wire.Protocol},
	}
}

func (r *Router) handleListSessions() ipcserver.RouterResult {
	sessions := r.mgr.ListSessions()
	out := make([]wire.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionToSummary(s))
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TSessionList, Payload: wire.SessionListMsg{Sessions: out}}
}

func (r *Router) handleCreateSession(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.CreateSessionWithOptionsMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad CreateSessionWithOptions payload")
	}
	for _, existing := range r.mgr.ListSessions() {
		if msg.Name != "" && existing.Name == msg.Name {
			return errResult(wire.ErrSessionNameExists, "session name already in use: "+msg.Name)
		}
	}

	sess := r.mgr.CreateSession(msg.Name, wire.Now())
	sess.Orchestrator = msg.Orchestrator
	for k, v := range msg.Environment {
		sess.Metadata["env:"+k] = v
	}
	for _, tag := range msg.Tags {
		sess.AddTag(tag)
	}

	win := r.mgr.CreateWindow(sess.ID, "main")
	pane := r.mgr.CreatePane(win.ID, 80, 24)
	pane.Cwd = msg.Cwd

	command := msg.Command
	if command == "" {
		command = defaultShell()
	}
	r.spawnPane(sess.ID, pane, []string{command}, msg.Cwd)

	return ipcserver.RouterResult{
		Kind:                ipcserver.ResponseWithGlobalBroadcast,
		Type:                wire.TSessionCreated,
		Payload:             wire.SessionCreatedMsg{Session: sessionToSummary(sess)},
		BroadcastType:       wire.TSessionsChanged,
		BroadcastPayload:    wire.SessionsChangedMsg{Sessions: summarizeAll(r.mgr)},
	}
}

func summarizeAll(mgr *model.Manager) []wire.SessionSummary {
	sessions := mgr.ListSessions()
	out := make([]wire.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionToSummary(s))
	}
	return out
}

func defaultShell() string {
	return "/bin/sh"
}

// spawnPane starts a pane's process and launches its output poller,
// wiring a paneSink that broadcasts to sess and fans out to mirrors.
func (r *Router) spawnPane(sessionID string, pane *model.Pane, command []string, cwd string) {
	h, reader, err := r.pty.Spawn(pane.ID, ptymgr.SpawnOptions{
		Command: command,
		Cwd:     cwd,
		Cols:    pane.Cols,
		Rows:    pane.Rows,
	})
	if err != nil {
		r.log.Error("spawn pane failed", "pane_id", pane.ID, "err", err)
		r.mgr.Graph.Lock()
		pane.State = model.PaneExited
		r.mgr.Graph.Unlock()
		return
	}
	_ = h
	sink := &paneSink{r: r, sessionID: sessionID}
	p := poller.New(pane.ID, reader, r.pty, sink, r.log.With(slog.String("pane_id", pane.ID)))
	go p.Run()
}

func (r *Router) handleAttach(clientID string, env wire.Envelope) ipcserver.RouterResult {
	var msg wire.AttachSessionMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad AttachSession payload")
	}
	r.mgr.Graph.RLock()
	sess, ok := r.mgr.Graph.Sessions[msg.SessionID]
	r.mgr.Graph.RUnlock()
	if !ok {
		return errResult(wire.ErrSessionNotFound, "no such session: "+msg.SessionID)
	}

	r.reg.Attach(clientID, sess.ID)
	r.mgr.Graph.Lock()
	sess.AttachedClients[clientID] = struct{}{}
	r.mgr.Graph.Unlock()

	windows := r.mgr.ListWindows(sess.ID)
	winSummaries := make([]wire.WindowSummary, 0, len(windows))
	var paneSummaries []wire.PaneSummary
	r.mgr.Graph.RLock()
	for _, w := range windows {
		winSummaries = append(winSummaries, windowToSummary(w))
		for _, pid := range w.PaneIDs {
			if p, ok := r.mgr.Graph.Panes[pid]; ok {
				paneSummaries = append(paneSummaries, paneToSummary(p))
			}
		}
	}
	r.mgr.Graph.RUnlock()

	// Replay the last ReplayLines lines of each pane's scrollback as plain
	// Output; queued on the client's outbox, they reach it after Attached.
	for _, p := range paneSummaries {
		data := []byte(strings.Join(r.scrollback.Lines(p.ID, r.cfg.ReplayLines), "\n"))
		if len(data) > 0 {
			r.reg.SendTo(clientID, wire.Envelope{Type: wire.TOutput, Payload: mustCBOR(wire.OutputMsg{PaneID: p.ID, Data: data})})
		}
	}

	return ipcserver.RouterResult{
		Kind: ipcserver.Response,
		Type: wire.TAttached,
		Payload: wire.AttachedMsg{
			Session:   sessionToSummary(sess),
			Windows:   winSummaries,
			Panes:     paneSummaries,
			CommitSeq: r.ringFor(sess.ID).Current(),
		},
	}
}

func (r *Router) handleDestroySession(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.DestroySessionMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad DestroySession payload")
	}
	r.mgr.Graph.RLock()
	_, ok := r.mgr.Graph.Sessions[msg.SessionID]
	var paneIDs []string
	if ok {
		for _, p := range r.mgr.Graph.Panes {
			if sess := r.mgr.Graph.SessionOfPane(p.ID); sess != nil && sess.ID == msg.SessionID {
				paneIDs = append(paneIDs, p.ID)
			}
		}
	}
	r.mgr.Graph.RUnlock()
	if !ok {
		return errResult(wire.ErrSessionNotFound, "no such session: "+msg.SessionID)
	}

	for _, pid := range paneIDs {
		_ = r.pty.Kill(pid)
	}
	r.mgr.DestroySession(msg.SessionID)

	return ipcserver.RouterResult{
		Kind:                ipcserver.ResponseWithGlobalBroadcast,
		Type:                wire.TSessionDestroyed,
		Payload:             wire.SessionDestroyedMsg{SessionID: msg.SessionID},
		BroadcastType:       wire.TSessionsChanged,
		BroadcastPayload:    wire.SessionsChangedMsg{Sessions: summarizeAll(r.mgr)},
	}
}

func (r *Router) handleRenameSession(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.RenameSessionMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad RenameSession payload")
	}
	for _, existing := range r.mgr.ListSessions() {
		if existing.ID != msg.SessionID && existing.Name == msg.Name {
			return errResult(wire.ErrSessionNameExists, "session name already in use: "+msg.Name)
		}
	}
	r.mgr.Graph.Lock()
	sess, ok := r.mgr.Graph.Sessions[msg.SessionID]
	if ok {
		sess.Name = msg.Name
	}
	r.mgr.Graph.Unlock()
	if !ok {
		return errResult(wire.ErrSessionNotFound, "no such session: "+msg.SessionID)
	}
	return ipcserver.RouterResult{
		Kind:                ipcserver.ResponseWithBroadcast,
		Type:                wire.TSessionRenamed,
		Payload:             wire.SessionRenamedMsg{SessionID: msg.SessionID, Name: msg.Name},
		BroadcastSessionID:  msg.SessionID,
		BroadcastType:       wire.TSessionRenamed,
		BroadcastPayload:    wire.SessionRenamedMsg{SessionID: msg.SessionID, Name: msg.Name},
	}
}

func (r *Router) handleSelectSession(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.SelectSessionMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad SelectSession payload")
	}
	r.mgr.Graph.RLock()
	_, ok := r.mgr.Graph.Sessions[msg.SessionID]
	r.mgr.Graph.RUnlock()
	if !ok {
		return errResult(wire.ErrSessionNotFound, "no such session: "+msg.SessionID)
	}
	// Selecting the session a client is already on is a no-op that still
	// succeeds (spec §4.5 "selection is idempotent").
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TSessionFocused, Payload: wire.SessionFocusedMsg{SessionID: msg.SessionID}}
}
