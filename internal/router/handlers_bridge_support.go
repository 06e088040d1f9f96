package router

import (
	"time"

	"github.com/ianremillard/ccmuxd/internal/ipcserver"
	"github.com/ianremillard/ccmuxd/internal/model"
	"github.com/ianremillard/ccmuxd/internal/wire"
)

// handleReply writes bytes into a pane addressed by id or by name, the agent
// bridge's primary way of driving an interactive tool (spec §4.5 Reply,
// PaneTarget from types.rs). A name is matched against every pane in the
// daemon, not only the requester's session; the first match wins.
func (r *Router) handleReply(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.ReplyMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad Reply payload")
	}

	var pane *model.Pane
	r.mgr.Graph.RLock()
	if msg.TargetID != "" {
		pane = r.mgr.Graph.Panes[msg.TargetID]
	} else {
		for _, p := range r.mgr.Graph.Panes {
			if p.Name == msg.TargetName {
				pane = p
				break
			}
		}
	}
	r.mgr.Graph.RUnlock()
	if pane == nil {
		return errResult(wire.ErrPaneNotFound, "no pane matches reply target")
	}

	if err := r.pty.Write(pane.ID, msg.Content); err != nil {
		return errResult(wire.ErrPaneNotFound, err.Error())
	}
	return ipcserver.RouterResult{
		Kind:    ipcserver.Response,
		Type:    wire.TReplyDelivered,
		Payload: wire.ReplyDeliveredMsg{PaneID: pane.ID, BytesWritten: len(msg.Content)},
	}
}

// handleSendOrchestration delivers an agent-to-agent message, either to a
// single target (by session id, worktree, or tag) or broadcast to every
// orchestrator-flagged session (spec §4.5 SendOrchestration, supplemented
// routing fields from SessionInfo.tags/metadata).
func (r *Router) handleSendOrchestration(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.SendOrchestrationMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad SendOrchestration payload")
	}

	targets := r.resolveOrchestrationTargets(msg)
	if len(targets) == 0 {
		return errResult(wire.ErrNoRecipients, "no session matches orchestration target")
	}

	delivered := 0
	for _, sessID := range targets {
		r.mu.Lock()
		r.orchestrationInbox[sessID] = append(r.orchestrationInbox[sessID], wire.OrchestrationReceivedMsg{
			FromSessionID: msg.TargetSessionID,
			Payload:       msg.Payload,
		})
		r.mu.Unlock()
		r.reg.BroadcastToSession(sessID, wire.Envelope{
			Type:    wire.TOrchestrationReceived,
			Payload: mustCBOR(wire.OrchestrationReceivedMsg{FromSessionID: msg.TargetSessionID, Payload: msg.Payload}),
		})
		delivered++
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TOrchestrationDelivered, Payload: wire.OrchestrationDeliveredMsg{Delivered: delivered}}
}

func (r *Router) resolveOrchestrationTargets(msg wire.SendOrchestrationMsg) []string {
	sessions := r.mgr.ListSessions()
	var out []string
	for _, s := range sessions {
		switch {
		case msg.Broadcast:
			if s.Orchestrator {
				out = append(out, s.ID)
			}
		case msg.TargetTag != "":
			if s.HasTag(msg.TargetTag) {
				out = append(out, s.ID)
			}
		case msg.TargetWorktree != "":
			if s.Worktree != nil && s.Worktree.Path == msg.TargetWorktree {
				out = append(out, s.ID)
			}
		case msg.TargetSessionID != "":
			if s.ID == msg.TargetSessionID {
				out = append(out, s.ID)
			}
		}
	}
	return out
}

// handlePollMessages drains and returns an orchestrator session's queued
// mail (spec §4.5 PollMessages, the non-push alternative to relying solely
// on OrchestrationReceived broadcasts).
func (r *Router) handlePollMessages(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.PollMessagesMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad PollMessages payload")
	}
	r.mu.Lock()
	queued := r.orchestrationInbox[msg.SessionID]
	delete(r.orchestrationInbox, msg.SessionID)
	r.mu.Unlock()
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TMessagesPolled, Payload: wire.MessagesPolledMsg{Messages: queued}}
}

// handleWatchdogStart registers a watchdog that periodically re-sends a
// message into a pane until stopped (spec §4.5 watchdog protocol), useful
// for agents that need a recurring nudge.
func (r *Router) handleWatchdogStart(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.WatchdogStartMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad WatchdogStart payload")
	}
	if msg.IntervalMS <= 0 {
		return errResult(wire.ErrInvalidOperation, "watchdog interval must be positive")
	}

	wd := &watchdog{
		name:       msg.Name,
		paneID:     msg.PaneID,
		message:    msg.Message,
		intervalMS: msg.IntervalMS,
		stop:       make(chan struct{}),
	}

	r.mu.Lock()
	if old, exists := r.watchdogs[msg.Name]; exists {
		close(old.stop)
	}
	r.watchdogs[msg.Name] = wd
	r.mu.Unlock()

	go r.runWatchdog(wd)

	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TWatchdogStarted, Payload: wire.WatchdogStartedMsg{Name: msg.Name}}
}

func (r *Router) runWatchdog(wd *watchdog) {
	ticker := time.NewTicker(time.Duration(wd.intervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-wd.stop:
			return
		case <-ticker.C:
			if err := r.pty.Write(wd.paneID, wd.message); err != nil {
				r.log.Debug("watchdog write failed, stopping", "name", wd.name, "err", err)
				return
			}
		}
	}
}

func (r *Router) handleWatchdogStop(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.WatchdogStopMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad WatchdogStop payload")
	}
	r.mu.Lock()
	var stopped []string
	if msg.Name == "" {
		for name, wd := range r.watchdogs {
			close(wd.stop)
			stopped = append(stopped, name)
		}
		r.watchdogs = make(map[string]*watchdog)
	} else if wd, ok := r.watchdogs[msg.Name]; ok {
		close(wd.stop)
		delete(r.watchdogs, msg.Name)
		stopped = append(stopped, msg.Name)
	}
	r.mu.Unlock()
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TWatchdogStopped, Payload: wire.WatchdogStoppedMsg{Names: stopped}}
}

func (r *Router) handleWatchdogStatus() ipcserver.RouterResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wire.WatchdogInfo, 0, len(r.watchdogs))
	for _, wd := range r.watchdogs {
		out = append(out, wire.WatchdogInfo{Name: wd.name, PaneID: wd.paneID, IntervalMS: wd.intervalMS})
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TWatchdogStatusResponse, Payload: wire.WatchdogStatusResponseMsg{Watchdogs: out}}
}
