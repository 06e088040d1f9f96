package router

import (
	"strings"

	"github.com/ianremillard/ccmuxd/internal/ipcserver"
	"github.com/ianremillard/ccmuxd/internal/seq"
	"github.com/ianremillard/ccmuxd/internal/wire"
)

func (r *Router) handleReadPane(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.ReadPaneMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad ReadPane payload")
	}
	r.mgr.Graph.RLock()
	_, ok := r.mgr.Graph.Panes[msg.PaneID]
	r.mgr.Graph.RUnlock()
	if !ok {
		return errResult(wire.ErrPaneNotFound, "no such pane: "+msg.PaneID)
	}
	// Scrollback storage lives in the poller's flush pipeline, not the
	// graph; ReadPane is served from the same replay buffer attach uses
	// (spec §4.2 scrollback cap / §4.5 ReadPane).
	lines := r.scrollback.Lines(msg.PaneID, msg.Lines)
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TPaneContent, Payload: wire.PaneContentMsg{PaneID: msg.PaneID, Lines: lines}}
}

func (r *Router) handleSplitPane(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.SplitPaneMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad SplitPane payload")
	}
	r.mgr.Graph.RLock()
	parent, ok := r.mgr.Graph.Panes[msg.PaneID]
	r.mgr.Graph.RUnlock()
	if !ok {
		return errResult(wire.ErrPaneNotFound, "no such pane: "+msg.PaneID)
	}
	sessionID, _ := r.sessionIDOfPane(msg.PaneID)

	pane := r.mgr.CreatePane(parent.WindowID, parent.Cols, parent.Rows)
	command := msg.Command
	if command == "" {
		command = defaultShell()
	}
	pane.Cwd = msg.Cwd
	r.spawnPane(sessionID, pane, []string{command}, msg.Cwd)

	return ipcserver.RouterResult{
		Kind:               ipcserver.ResponseWithBroadcast,
		Type:               wire.TPaneSplit,
		Payload:            wire.PaneSplitMsg{ParentPaneID: msg.PaneID, NewPane: paneToSummary(pane)},
		BroadcastSessionID: sessionID,
		BroadcastType:      wire.TPaneSplit,
		BroadcastPayload:   wire.PaneSplitMsg{ParentPaneID: msg.PaneID, NewPane: paneToSummary(pane)},
	}
}

func (r *Router) handleCreateLayout(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.CreateLayoutMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad CreateLayout payload")
	}
	windowID := msg.WindowID
	if windowID == "" {
		win := r.mgr.CreateWindow(msg.SessionID, "layout")
		if win == nil {
			return errResult(wire.ErrSessionNotFound, "no such session: "+msg.SessionID)
		}
		windowID = win.ID
	}
	sessionID, ok := r.sessionIDOfWindow(windowID)
	if !ok {
		return errResult(wire.ErrWindowNotFound, "no such window: "+windowID)
	}

	panes := make([]wire.PaneSummary, 0, len(msg.Panes))
	for _, spec := range msg.Panes {
		cols, rows := spec.Cols, spec.Rows
		if cols == 0 {
			cols = 80
		}
		if rows == 0 {
			rows = 24
		}
		pane := r.mgr.CreatePane(windowID, cols, rows)
		command := spec.Command
		if command == "" {
			command = defaultShell()
		}
		pane.Cwd = spec.Cwd
		r.spawnPane(sessionID, pane, []string{command}, spec.Cwd)
		panes = append(panes, paneToSummary(pane))
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TLayoutCreated, Payload: wire.LayoutCreatedMsg{Panes: panes}}
}

// handleSync responds with a full StateSnapshot, the fallback path when a
// client's GetEventsSince request can't be served from the replay ring
// (spec §4.5 / §8).
func (r *Router) handleSync(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.SyncMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad Sync payload")
	}
	r.mgr.Graph.RLock()
	sess, ok := r.mgr.Graph.Sessions[msg.SessionID]
	r.mgr.Graph.RUnlock()
	if !ok {
		return errResult(wire.ErrSessionNotFound, "no such session: "+msg.SessionID)
	}
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
	return ipcserver.RouterResult{
		Kind: ipcserver.Response,
		Type: wire.TStateSnapshot,
		Payload: wire.StateSnapshotMsg{
			CommitSeq: r.ringFor(sess.ID).Current(),
			Session:   sessionToSummary(sess),
			Windows:   winSummaries,
			Panes:     paneSummaries,
		},
	}
}

func (r *Router) handleGetEventsSince(clientID string, env wire.Envelope) ipcserver.RouterResult {
	var msg wire.GetEventsSinceMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad GetEventsSince payload")
	}
	events, ok := r.ringFor(msg.SessionID).Since(msg.LastSeq)
	if !ok {
		// The requested point has aged out of the ring; fall back to a
		// full snapshot rather than an error (spec §4.5/§8).
		return r.handleSync(env)
	}
	// Replay is delivered as a run of Sequenced sends on this client's
	// outbox rather than batched into one response, so an arbitrarily
	// long backlog doesn't need its own framed message type.
	for _, ev := range events {
		seqd, err := seq.ToSequenced(ev)
		if err != nil {
			continue
		}
		r.reg.SendTo(clientID, wire.Envelope{Type: wire.TSequenced, Payload: mustCBOR(seqd)})
	}
	return ipcserver.RouterResult{Kind: ipcserver.NoResponse}
}

func (r *Router) handleSetEnvironment(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.SetEnvironmentMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad SetEnvironment payload")
	}
	r.mgr.Graph.Lock()
	sess, ok := r.mgr.Graph.Sessions[msg.SessionID]
	if ok {
		sess.Metadata["env:"+msg.Key] = msg.Value
	}
	r.mgr.Graph.Unlock()
	if !ok {
		return errResult(wire.ErrSessionNotFound, "no such session: "+msg.SessionID)
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TEnvironmentSet, Payload: wire.EnvironmentSetMsg{SessionID: msg.SessionID, Key: msg.Key}}
}

func (r *Router) handleGetEnvironment(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.GetEnvironmentMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad GetEnvironment payload")
	}
	r.mgr.Graph.RLock()
	sess, ok := r.mgr.Graph.Sessions[msg.SessionID]
	env2 := make(map[string]string)
	if ok {
		for k, v := range sess.Metadata {
			if strings.HasPrefix(k, "env:") {
				env2[strings.TrimPrefix(k, "env:")] = v
			}
		}
	}
	r.mgr.Graph.RUnlock()
	if !ok {
		return errResult(wire.ErrSessionNotFound, "no such session: "+msg.SessionID)
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TEnvironmentList, Payload: wire.EnvironmentListMsg{SessionID: msg.SessionID, Environment: env2}}
}

func (r *Router) handleSetTags(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.SetTagsMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad SetTags payload")
	}
	r.mgr.Graph.Lock()
	sess, ok := r.mgr.Graph.Sessions[msg.SessionID]
	if ok {
		sess.Tags = make(map[string]struct{})
		for _, t := range msg.Tags {
			sess.AddTag(t)
		}
	}
	r.mgr.Graph.Unlock()
	if !ok {
		return errResult(wire.ErrSessionNotFound, "no such session: "+msg.SessionID)
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TTagsSet, Payload: wire.TagsSetMsg{SessionID: msg.SessionID, Tags: msg.Tags}}
}

func (r *Router) handleGetTags(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.GetTagsMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad GetTags payload")
	}
	r.mgr.Graph.RLock()
	sess, ok := r.mgr.Graph.Sessions[msg.SessionID]
	var tags []string
	if ok {
		for t := range sess.Tags {
			tags = append(tags, t)
		}
	}
	r.mgr.Graph.RUnlock()
	if !ok {
		return errResult(wire.ErrSessionNotFound, "no such session: "+msg.SessionID)
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TTagsList, Payload: wire.TagsListMsg{SessionID: msg.SessionID, Tags: tags}}
}

func (r *Router) handleSetMetadata(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.SetMetadataMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad SetMetadata payload")
	}
	r.mgr.Graph.Lock()
	sess, ok := r.mgr.Graph.Sessions[msg.SessionID]
	if ok {
		sess.Metadata[msg.Key] = msg.Value
	}
	r.mgr.Graph.Unlock()
	if !ok {
		return errResult(wire.ErrSessionNotFound, "no such session: "+msg.SessionID)
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TMetadataSet, Payload: wire.MetadataSetMsg{SessionID: msg.SessionID, Key: msg.Key}}
}

func (r *Router) handleGetMetadata(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.GetMetadataMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad GetMetadata payload")
	}
	r.mgr.Graph.RLock()
	sess, ok := r.mgr.Graph.Sessions[msg.SessionID]
	var md map[string]string
	if ok {
		md = make(map[string]string, len(sess.Metadata))
		for k, v := range sess.Metadata {
			if !strings.HasPrefix(k, "env:") {
				md[k] = v
			}
		}
	}
	r.mgr.Graph.RUnlock()
	if !ok {
		return errResult(wire.ErrSessionNotFound, "no such session: "+msg.SessionID)
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TMetadataList, Payload: wire.MetadataListMsg{SessionID: msg.SessionID, Metadata: md}}
}

// handleUserCommandModeEntered records that a human has taken the
// keyboard in a session. The flag is reported as Busy by GetWorkerStatus;
// Input and Reply are not checked against it.
func (r *Router) handleUserCommandModeEntered(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.UserCommandModeEnteredMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad UserCommandModeEntered payload")
	}
	r.mu.Lock()
	if r.userPriority == nil {
		r.userPriority = make(map[string]bool)
	}
	r.userPriority[msg.SessionID] = true
	r.mu.Unlock()
	return ipcserver.RouterResult{Kind: ipcserver.NoResponse}
}

func (r *Router) handleUserCommandModeExited(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.UserCommandModeExitedMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad UserCommandModeExited payload")
	}
	r.mu.Lock()
	delete(r.userPriority, msg.SessionID)
	r.mu.Unlock()
	return ipcserver.RouterResult{Kind: ipcserver.NoResponse}
}

func (r *Router) handleGetWorkerStatus(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.GetWorkerStatusMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad GetWorkerStatus payload")
	}
	r.mu.Lock()
	busy := r.userPriority[msg.SessionID]
	r.mu.Unlock()
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TWorkerStatus, Payload: wire.WorkerStatusMsg{SessionID: msg.SessionID, Busy: busy, LastSeen: wire.Now()}}
}
