package router

import (
	"github.com/ianremillard/ccmuxd/internal/ipcserver"
	"github.com/ianremillard/ccmuxd/internal/model"
	"github.com/ianremillard/ccmuxd/internal/wire"
)

func (r *Router) handleSetViewportOffset(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.SetViewportOffsetMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad SetViewportOffset payload")
	}
	r.mgr.Graph.Lock()
	p, ok := r.mgr.Graph.Panes[msg.PaneID]
	var vp wire.ViewportUpdatedMsg
	if ok {
		p.Viewport.SetOffset(msg.Offset)
		vp = viewportToMsg(msg.PaneID, p.Viewport)
	}
	r.mgr.Graph.Unlock()
	if !ok {
		return errResult(wire.ErrPaneNotFound, "no such pane: "+msg.PaneID)
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TViewportUpdated, Payload: vp}
}

func (r *Router) handleJumpToBottom(env wire.Envelope) ipcserver.RouterResult {
	var msg wire.JumpToBottomMsg
	if err := env.Decode(&msg); err != nil {
		return errResult(wire.ErrInvalidOperation, "bad JumpToBottom payload")
	}
	r.mgr.Graph.Lock()
	p, ok := r.mgr.Graph.Panes[msg.PaneID]
	var vp wire.ViewportUpdatedMsg
	if ok {
		p.Viewport.JumpToBottom()
		vp = viewportToMsg(msg.PaneID, p.Viewport)
	}
	r.mgr.Graph.Unlock()
	if !ok {
		return errResult(wire.ErrPaneNotFound, "no such pane: "+msg.PaneID)
	}
	return ipcserver.RouterResult{Kind: ipcserver.Response, Type: wire.TViewportUpdated, Payload: vp}
}

func viewportToMsg(paneID string, v model.Viewport) wire.ViewportUpdatedMsg {
	return wire.ViewportUpdatedMsg{
		PaneID:           paneID,
		OffsetFromBottom: v.OffsetFromBottom,
		IsPinned:         v.IsPinned,
		NewLinesSincePin: v.NewLinesSincePin,
	}
}
