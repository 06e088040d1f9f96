// Package router decodes client requests and executes them against the
// daemon's session/window/pane graph, PTY manager, and client registry. It
// implements ipcserver.Router. Grounded on daemon.go's handleConn
// switch-on-req.Type dispatch, generalized from the teacher's dozen
// JSON request kinds to the full client<->server message set of spec §4.5/§6.
package router

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ianremillard/ccmuxd/internal/config"
	"github.com/ianremillard/ccmuxd/internal/ipcserver"
	"github.com/ianremillard/ccmuxd/internal/model"
	"github.com/ianremillard/ccmuxd/internal/poller"
	"github.com/ianremillard/ccmuxd/internal/ptymgr"
	"github.com/ianremillard/ccmuxd/internal/registry"
	"github.com/ianremillard/ccmuxd/internal/seq"
	"github.com/ianremillard/ccmuxd/internal/sideband"
	"github.com/ianremillard/ccmuxd/internal/wire"
)

// Router is the daemon's central coordinator: one instance wires together
// the model graph, PTY manager, registry, and per-session sequence rings.
type Router struct {
	log *slog.Logger
	cfg config.Config

	mgr *model.Manager
	pty *ptymgr.Manager
	reg *registry.Registry

	scrollback *scrollbackStore

	mu       sync.Mutex
	rings    map[string]*seq.Ring // session id -> event ring
	watchdogs map[string]*watchdog // name -> watchdog
	orchestrationInbox map[string][]wire.OrchestrationReceivedMsg // session id -> queued mail
	userPriority map[string]bool // session id -> a human is currently typing
}

type watchdog struct {
	name       string
	paneID     string
	message    []byte
	intervalMS int64
	stop       chan struct{}
}

func New(log *slog.Logger, cfg config.Config, mgr *model.Manager, pty *ptymgr.Manager, reg *registry.Registry) *Router {
	return &Router{
		log:        log,
		cfg:        cfg,
		mgr:        mgr,
		pty:        pty,
		reg:        reg,
		scrollback: newScrollbackStore(cfg.ScrollbackCap),
		rings:      make(map[string]*seq.Ring),
		watchdogs:  make(map[string]*watchdog),
		orchestrationInbox: make(map[string][]wire.OrchestrationReceivedMsg),
		userPriority: make(map[string]bool),
	}
}

func (r *Router) ringFor(sessionID string) *seq.Ring {
	r.mu.Lock()
	defer r.mu.Unlock()
	ring, ok := r.rings[sessionID]
	if !ok {
		ring = seq.NewRing(r.cfg.EventRingSize)
		r.rings[sessionID] = ring
	}
	return ring
}

// commit assigns a sequence number to a broadcast-worthy event and returns
// the SequencedMsg wrapper to send on the wire (spec §4.5).
func (r *Router) commit(sessionID, msgType string, payload interface{}) (wire.SequencedMsg, error) {
	ev := r.ringFor(sessionID).Commit(msgType, payload)
	return seq.ToSequenced(ev)
}

// Handle implements ipcserver.Router.
func (r *Router) Handle(clientID string, env wire.Envelope) ipcserver.RouterResult {
	switch env.Type {
	case wire.TConnect:
		return r.handleConnect(clientID, env)
	case wire.TPing:
		return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TPong, Payload: wire.PongMsg{}}
	case wire.TListSessions:
		return r.handleListSessions()
	case wire.TCreateSessionWithOptions:
		return r.handleCreateSession(env)
	case wire.TAttachSession:
		return r.handleAttach(clientID, env)
	case wire.TDetach:
		r.reg.Detach(clientID)
		return ipcserver.RouterResult{Kind: ipcserver.NoResponse}
	case wire.TCreateWindowWithOptions:
		return r.handleCreateWindow(env)
	case wire.TCreatePaneWithOptions:
		return r.handleCreatePane(env)
	case wire.TInput:
		return r.handleInput(env)
	case wire.TResize:
		return r.handleResize(env)
	case wire.TClosePane:
		return r.handleClosePane(env)
	case wire.TSelectPane:
		return r.handleSelectPane(env)
	case wire.TSelectWindow:
		return r.handleSelectWindow(env)
	case wire.TSelectSession:
		return r.handleSelectSession(env)
	case wire.TDestroySession:
		return r.handleDestroySession(env)
	case wire.TListAllPanes:
		return r.handleListAllPanes()
	case wire.TListWindows:
		return r.handleListWindows(env)
	case wire.TResizePaneDelta:
		return r.handleResizePaneDelta(env)
	case wire.TGetPaneStatus:
		return r.handleGetPaneStatus(env)
	case wire.TReadPane:
		return r.handleReadPane(env)
	case wire.TSplitPane:
		return r.handleSplitPane(env)
	case wire.TCreateLayout:
		return r.handleCreateLayout(env)
	case wire.TSync:
		return r.handleSync(env)
	case wire.TSetEnvironment:
		return r.handleSetEnvironment(env)
	case wire.TGetEnvironment:
		return r.handleGetEnvironment(env)
	case wire.TUserCommandModeEntered:
		return r.handleUserCommandModeEntered(env)
	case wire.TUserCommandModeExited:
		return r.handleUserCommandModeExited(env)
	case wire.TGetWorkerStatus:
		return r.handleGetWorkerStatus(env)
	case wire.TSetViewportOffset:
		return r.handleSetViewportOffset(env)
	case wire.TJumpToBottom:
		return r.handleJumpToBottom(env)
	case wire.TReply:
		return r.handleReply(env)
	case wire.TSendOrchestration:
		return r.handleSendOrchestration(env)
	case wire.TPollMessages:
		return r.handlePollMessages(env)
	case wire.TGetEventsSince:
		return r.handleGetEventsSince(clientID, env)
	case wire.TRenameSession:
		return r.handleRenameSession(env)
	case wire.TRenamePane:
		return r.handleRenamePane(env)
	case wire.TRenameWindow:
		return r.handleRenameWindow(env)
	case wire.TSetTags:
		return r.handleSetTags(env)
	case wire.TGetTags:
		return r.handleGetTags(env)
	case wire.TSetMetadata:
		return r.handleSetMetadata(env)
	case wire.TGetMetadata:
		return r.handleGetMetadata(env)
	case wire.TCreateMirror:
		return r.handleCreateMirror(env)
	case wire.TWatchdogStart:
		return r.handleWatchdogStart(env)
	case wire.TWatchdogStop:
		return r.handleWatchdogStop(env)
	case wire.TWatchdogStatus:
		return r.handleWatchdogStatus()
	default:
		return ipcserver.RouterResult{
			Kind: ipcserver.Response,
			Type: wire.TError,
			Payload: wire.ErrorMsg{
				Code:    wire.ErrInvalidOperation,
				Message: fmt.Sprintf("unknown request type %q", env.Type),
			},
		}
	}
}

// OnDisconnect implements ipcserver.Router: panes, watchdogs and mirrors
// outlive their attaching client, so the only cleanup is dropping the client
// from every session's attached-client set; ipcserver itself removes the
// registry entry via Unregister.
func (r *Router) OnDisconnect(clientID string) {
	r.mgr.Graph.Lock()
	for _, sess := range r.mgr.Graph.Sessions {
		delete(sess.AttachedClients, clientID)
	}
	r.mgr.Graph.Unlock()
}

func errResult(code wire.ErrorCode, msg string) ipcserver.RouterResult {
	return ipcserver.RouterResult{
		Kind:    ipcserver.Response,
		Type:    wire.TError,
		Payload: wire.ErrorMsg{Code: code, Message: msg},
	}
}

// paneToSummary converts a model.Pane to its wire representation.
func paneToSummary(p *model.Pane) wire.PaneSummary {
	sum := wire.PaneSummary{
		ID:       p.ID,
		WindowID: p.WindowID,
		Index:    p.Index,
		Cols:     p.Cols,
		Rows:     p.Rows,
		State:    string(p.State),
		ExitCode: p.ExitCode,
		Name:     p.Name,
		Title:    p.Title,
		Cwd:      p.Cwd,
		IsMirror: p.IsMirror,
	}
	if p.Agent != nil {
		sum.AgentInfo = &wire.AgentStateSummary{
			AgentType: p.Agent.AgentType,
			SessionID: p.Agent.SessionID,
			Activity:  string(p.Agent.Activity),
			Metadata:  p.Agent.Metadata,
		}
	}
	return sum
}

func windowToSummary(w *model.Window) wire.WindowSummary {
	return wire.WindowSummary{
		ID:           w.ID,
		SessionID:    w.SessionID,
		Name:         w.Name,
		Index:        w.Index,
		PaneCount:    len(w.PaneIDs),
		ActivePaneID: w.ActivePaneID,
	}
}

func sessionToSummary(s *model.Session) wire.SessionSummary {
	sum := wire.SessionSummary{
		ID:              s.ID,
		Name:            s.Name,
		CreatedAt:       s.CreatedAt,
		WindowCount:     len(s.WindowIDs),
		AttachedClients: len(s.AttachedClients),
		Orchestrator:    s.Orchestrator,
	}
	if s.Worktree != nil {
		sum.Worktree = &wire.WorktreeInfo{Path: s.Worktree.Path, Branch: s.Worktree.Branch, IsMain: s.Worktree.IsMain}
	}
	for tag := range s.Tags {
		sum.Tags = append(sum.Tags, tag)
	}
	if len(s.Metadata) > 0 {
		sum.Metadata = s.Metadata
	}
	return sum
}

// paneSink adapts a Router to poller.Sink for one pane's output stream,
// broadcasting to the owning session and fanning out to any mirrors.
type paneSink struct {
	r         *Router
	sessionID string
}

func (ps *paneSink) HandleOutput(paneID string, data []byte) {
	ps.r.scrollback.Append(paneID, data)
	seqd, err := ps.r.commit(ps.sessionID, wire.TOutput, wire.OutputMsg{PaneID: paneID, Data: data})
	if err != nil {
		ps.r.log.Warn("commit output failed", "pane_id", paneID, "err", err)
		return
	}
	ps.r.reg.BroadcastToSession(ps.sessionID, wire.Envelope{Type: wire.TSequenced, Payload: mustCBOR(seqd)})

	for _, mirrorID := range ps.r.mgr.MirrorsOf(paneID) {
		mirrorSessionID, ok := ps.r.sessionIDOfPane(mirrorID)
		if !ok {
			continue
		}
		mirrorSeq, err := ps.r.commit(mirrorSessionID, wire.TOutput, wire.OutputMsg{PaneID: mirrorID, Data: data})
		if err != nil {
			continue
		}
		// Mirrors are re-broadcast under the mirror's own pane id into the
		// mirror's own session (Open Question decision: this repo ships no
		// TUI, so same-session mirrors are re-broadcast too rather than
		// assuming client-side routing between two on-screen panes).
		ps.r.reg.BroadcastToSession(mirrorSessionID, wire.Envelope{Type: wire.TSequenced, Payload: mustCBOR(mirrorSeq)})
	}
}

func (ps *paneSink) HandleSideband(paneID string, cmd sideband.Command) {
	ps.r.log.Debug("sideband command", "pane_id", paneID, "name", cmd.Name, "attrs", cmd.Attrs)
	// Only notify is executed: it is broadcast to the pane's session as an
	// OrchestrationReceived. Every other command, spawn included, is only
	// logged above.
	switch cmd.Name {
	case "notify":
		sess := ps.r.mgr.Graph.SessionOfPane(paneID)
		if sess == nil {
			return
		}
		ps.r.reg.BroadcastToSession(sess.ID, wire.Envelope{
			Type:    wire.TOrchestrationReceived,
			Payload: mustCBOR(wire.OrchestrationReceivedMsg{FromSessionID: sess.ID, Payload: []byte(cmd.Attrs["message"])}),
		})
	}
}

func (ps *paneSink) HandleExit(paneID string) {
	p := ps.r.mgr.Graph.Panes[paneID]
	var code *int
	if p != nil {
		code = p.ExitCode
	}
	ps.r.mgr.Graph.Lock()
	if p, ok := ps.r.mgr.Graph.Panes[paneID]; ok {
		p.State = model.PaneExited
		code = p.ExitCode
	}
	ps.r.mgr.Graph.Unlock()

	ps.r.reg.BroadcastToSession(ps.sessionID, wire.Envelope{
		Type:    wire.TPaneClosed,
		Payload: mustCBOR(wire.PaneClosedMsg{PaneID: paneID, ExitCode: code}),
	})
	ps.r.scrollback.Remove(paneID)
}

func mustCBOR(v interface{}) []byte {
	b, err := cborMarshal(v)
	if err != nil {
		return nil
	}
	return b
}
