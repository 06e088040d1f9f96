package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/ianremillard/ccmuxd/internal/wire"
)

// Tool describes one MCP tool entry, as returned from tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

func schema(props map[string]string, required ...string) json.RawMessage {
	properties := make(map[string]interface{}, len(props))
	for name, typ := range props {
		properties[name] = map[string]string{"type": typ}
	}
	obj := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		obj["required"] = required
	}
	b, _ := json.Marshal(obj)
	return b
}

// ToolCatalog is the fixed set of ccmux_*-prefixed tools the bridge exposes,
// named after ccmux-server/src/mcp/bridge.rs's tool list.
func ToolCatalog() []Tool {
	return []Tool{
		{Name: "ccmux_list_sessions", Description: "List all sessions", InputSchema: schema(nil)},
		{Name: "ccmux_list_windows", Description: "List windows in a session", InputSchema: schema(map[string]string{"session_id": "string"}, "session_id")},
		{Name: "ccmux_list_panes", Description: "List all panes across all sessions", InputSchema: schema(nil)},
		{Name: "ccmux_read_pane", Description: "Read a pane's scrollback", InputSchema: schema(map[string]string{"pane_id": "string", "lines": "integer"}, "pane_id")},
		{Name: "ccmux_get_status", Description: "Get a pane's status", InputSchema: schema(map[string]string{"pane_id": "string"}, "pane_id")},
		{Name: "ccmux_create_session", Description: "Create a new session", InputSchema: schema(map[string]string{"name": "string", "command": "string", "cwd": "string"})},
		{Name: "ccmux_create_window", Description: "Create a window in a session", InputSchema: schema(map[string]string{"session_id": "string", "name": "string"}, "session_id")},
		{Name: "ccmux_create_pane", Description: "Create a pane in a window", InputSchema: schema(map[string]string{"window_id": "string", "command": "string"}, "window_id")},
		{Name: "ccmux_send_input", Description: "Send raw input to a pane", InputSchema: schema(map[string]string{"pane_id": "string", "data": "string"}, "pane_id", "data")},
		{Name: "ccmux_reply", Description: "Reply to a pane by id or name", InputSchema: schema(map[string]string{"target_id": "string", "target_name": "string", "content": "string"})},
		{Name: "ccmux_close_pane", Description: "Close a pane", InputSchema: schema(map[string]string{"pane_id": "string"}, "pane_id")},
		{Name: "ccmux_send_orchestration", Description: "Send an agent-to-agent message", InputSchema: schema(map[string]string{"target_session_id": "string", "target_tag": "string", "payload": "string"})},
		{Name: "ccmux_poll_messages", Description: "Poll queued orchestration messages", InputSchema: schema(map[string]string{"session_id": "string"}, "session_id")},
		{Name: "ccmux_get_worker_status", Description: "Get a session's worker busy status", InputSchema: schema(map[string]string{"session_id": "string"}, "session_id")},
	}
}

// dispatchTool is grounded on mcp_bridge.rs's dispatch_tool match arms,
// translating each tool name into the corresponding daemon request.
func (b *Bridge) dispatchTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "ccmux_list_sessions":
		env, err := b.sendAndReceive(wire.TListSessions, wire.ListSessionsMsg{})
		return decodeResult[wire.SessionListMsg](env, err)

	case "ccmux_list_windows":
		var a struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		env, err := b.sendAndReceive(wire.TListWindows, wire.ListWindowsMsg{SessionID: a.SessionID})
		return decodeResult[wire.WindowListMsg](env, err)

	case "ccmux_list_panes":
		env, err := b.sendAndReceive(wire.TListAllPanes, wire.ListAllPanesMsg{})
		return decodeResult[wire.AllPanesListMsg](env, err)

	case "ccmux_read_pane":
		var a struct {
			PaneID string `json:"pane_id"`
			Lines  int    `json:"lines"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		env, err := b.sendAndReceive(wire.TReadPane, wire.ReadPaneMsg{PaneID: a.PaneID, Lines: a.Lines})
		return decodeResult[wire.PaneContentMsg](env, err)

	case "ccmux_get_status":
		var a struct {
			PaneID string `json:"pane_id"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		env, err := b.sendAndReceive(wire.TGetPaneStatus, wire.GetPaneStatusMsg{PaneID: a.PaneID})
		return decodeResult[wire.PaneStatusMsg](env, err)

	case "ccmux_create_session":
		var a struct {
			Name    string `json:"name"`
			Command string `json:"command"`
			Cwd     string `json:"cwd"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		env, err := b.sendAndReceive(wire.TCreateSessionWithOptions, wire.CreateSessionWithOptionsMsg{Name: a.Name, Command: a.Command, Cwd: a.Cwd})
		return decodeResult[wire.SessionCreatedMsg](env, err)

	case "ccmux_create_window":
		var a struct {
			SessionID string `json:"session_id"`
			Name      string `json:"name"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		env, err := b.sendAndReceive(wire.TCreateWindowWithOptions, wire.CreateWindowWithOptionsMsg{SessionID: a.SessionID, Name: a.Name})
		return decodeResult[wire.WindowCreatedMsg](env, err)

	case "ccmux_create_pane":
		var a struct {
			WindowID string `json:"window_id"`
			Command  string `json:"command"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		env, err := b.sendAndReceive(wire.TCreatePaneWithOptions, wire.CreatePaneWithOptionsMsg{WindowID: a.WindowID, Command: a.Command})
		return decodeResult[wire.PaneCreatedWithDetailsMsg](env, err)

	case "ccmux_send_input":
		var a struct {
			PaneID string `json:"pane_id"`
			Data   string `json:"data"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		if err := b.enc.Encode(wire.TInput, wire.InputMsg{PaneID: a.PaneID, Data: []byte(a.Data)}); err != nil {
			return nil, err
		}
		return map[string]bool{"sent": true}, nil

	case "ccmux_reply":
		var a struct {
			TargetID   string `json:"target_id"`
			TargetName string `json:"target_name"`
			Content    string `json:"content"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		env, err := b.sendAndReceive(wire.TReply, wire.ReplyMsg{TargetID: a.TargetID, TargetName: a.TargetName, Content: []byte(a.Content)})
		return decodeResult[wire.ReplyDeliveredMsg](env, err)

	case "ccmux_close_pane":
		var a struct {
			PaneID string `json:"pane_id"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		env, err := b.sendAndReceiveFiltered(wire.TClosePane, wire.ClosePaneMsg{PaneID: a.PaneID}, func(e wire.Envelope) bool {
			if e.Type != wire.TPaneClosed {
				return true
			}
			var m wire.PaneClosedMsg
			return e.Decode(&m) == nil && m.PaneID == a.PaneID
		})
		return decodeResult[wire.PaneClosedMsg](env, err)

	case "ccmux_send_orchestration":
		var a struct {
			TargetSessionID string `json:"target_session_id"`
			TargetTag       string `json:"target_tag"`
			Payload         string `json:"payload"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		env, err := b.sendAndReceive(wire.TSendOrchestration, wire.SendOrchestrationMsg{TargetSessionID: a.TargetSessionID, TargetTag: a.TargetTag, Payload: []byte(a.Payload)})
		return decodeResult[wire.OrchestrationDeliveredMsg](env, err)

	case "ccmux_poll_messages":
		var a struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		env, err := b.sendAndReceive(wire.TPollMessages, wire.PollMessagesMsg{SessionID: a.SessionID})
		return decodeResult[wire.MessagesPolledMsg](env, err)

	case "ccmux_get_worker_status":
		var a struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
		env, err := b.sendAndReceive(wire.TGetWorkerStatus, wire.GetWorkerStatusMsg{SessionID: a.SessionID})
		return decodeResult[wire.WorkerStatusMsg](env, err)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func decodeResult[T any](env wire.Envelope, err error) (T, error) {
	var out T
	if err != nil {
		return out, err
	}
	if env.Type == wire.TError {
		var e wire.ErrorMsg
		_ = env.Decode(&e)
		return out, fmt.Errorf("%s: %s", e.Code, e.Message)
	}
	if decErr := env.Decode(&out); decErr != nil {
		return out, decErr
	}
	return out, nil
}
