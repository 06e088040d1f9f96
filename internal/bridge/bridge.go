// Package bridge implements the agent control-plane: a stdio JSON-RPC 2.0
// server that translates MCP-style tool calls into requests against a
// running ccmuxd daemon over its Unix socket (spec §4.6). Grounded almost
// directly on original_source/ccmux-server/src/mcp/bridge.rs, re-expressed
// in Go idiom rather than transliterated.
package bridge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ianremillard/ccmuxd/internal/wire"
)

// JSONRPCRequest is one incoming stdio request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse is the corresponding reply.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Bridge owns the daemon connection and the stdio JSON-RPC loop.
type Bridge struct {
	log        *slog.Logger
	socketPath string

	mu   sync.Mutex
	conn net.Conn
	enc  *wire.Encoder
	dec  *wire.Decoder

	// pendingBroadcasts collects every envelope sendAndReceiveFiltered skipped
	// while waiting for a response (broadcasts per classify() and envelopes
	// the accept predicate rejected). Nothing in the bridge reads them back.
	pendingBroadcasts []wire.Envelope
}

func New(log *slog.Logger, socketPath string) *Bridge {
	return &Bridge{log: log, socketPath: socketPath}
}

// connect dials the daemon with a bounded retry, since the bridge may start
// slightly before the daemon finishes binding its socket.
func (b *Bridge) connect() error {
	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		conn, err := net.Dial("unix", b.socketPath)
		if err == nil {
			b.conn = conn
			b.enc = wire.NewEncoder(conn)
			b.dec = wire.NewDecoder(conn)
			return b.handshake()
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("bridge: connect to %s: %w", b.socketPath, lastErr)
}

func (b *Bridge) handshake() error {
	if err := b.enc.Encode(wire.TConnect, wire.ConnectMsg{
		ClientID:        "agent-bridge",
		ProtocolVersion: wire.Protocol,
		ClientType:      wire.ClientAgent,
	}); err != nil {
		return fmt.Errorf("bridge: handshake send: %w", err)
	}
	env, err := b.dec.Decode()
	if err != nil {
		return fmt.Errorf("bridge: handshake recv: %w", err)
	}
	if env.Type != wire.TConnected {
		return fmt.Errorf("bridge: unexpected handshake reply %q", env.Type)
	}
	return nil
}

// classify reports whether env is an unsolicited broadcast rather than the
// direct response to a request, grounded on is_broadcast_message
// (bridge.rs:215-240). PaneClosed is deliberately NOT classified as a
// broadcast: tool_close_pane expects it as its own response. Sequenced is a
// broadcast too: the daemon wraps pane output in it.
func classify(env wire.Envelope) bool {
	switch env.Type {
	case wire.TOutput,
		wire.TSequenced,
		wire.TPaneStateChanged,
		wire.TAgentStateChanged,
		wire.TPaneCreated,
		wire.TWindowCreated,
		wire.TWindowClosed,
		wire.TSessionEnded,
		wire.TViewportUpdated,
		wire.TOrchestrationReceived,
		wire.TMailReceived,
		wire.TSessionsChanged:
		return true
	default:
		return false
	}
}

// sendAndReceive writes a request and returns the first non-broadcast
// envelope, stashing any broadcasts observed along the way.
func (b *Bridge) sendAndReceive(msgType string, payload interface{}) (wire.Envelope, error) {
	return b.sendAndReceiveFiltered(msgType, payload, func(wire.Envelope) bool { return true })
}

// sendAndReceiveFiltered is sendAndReceive with an extra predicate the
// caller can use to wait for a specific response shape (e.g. ClosePane's
// caller wants a PaneClosed for its own pane id, not just any response).
func (b *Bridge) sendAndReceiveFiltered(msgType string, payload interface{}, accept func(wire.Envelope) bool) (wire.Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.enc.Encode(msgType, payload); err != nil {
		return wire.Envelope{}, fmt.Errorf("bridge: send %s: %w", msgType, err)
	}

	for {
		env, err := b.dec.Decode()
		if err != nil {
			return wire.Envelope{}, fmt.Errorf("bridge: recv: %w", err)
		}
		if classify(env) || !accept(env) {
			b.pendingBroadcasts = append(b.pendingBroadcasts, env)
			continue
		}
		return env, nil
	}
}

// Run reads JSON-RPC requests from stdin, writes responses to stdout, and
// serves them until stdin closes. Grounded on bridge.rs's run()/handle_request
// loop and the teacher's own bufio.Scanner-over-stdin idiom (cmd/catherd/main.go).
func (b *Bridge) Run(stdin io.Reader, stdout io.Writer) error {
	if err := b.connect(); err != nil {
		return err
	}
	defer b.conn.Close()

	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	w := bufio.NewWriter(stdout)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			b.log.Warn("malformed jsonrpc request", "err", err)
			continue
		}
		resp := b.handleRequest(req)
		if resp == nil {
			continue // notifications (initialized) get no response
		}
		data, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		w.Write(data)
		w.WriteByte('\n')
		w.Flush()
	}
	return scanner.Err()
}

func (b *Bridge) handleRequest(req JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
			"serverInfo":      map[string]interface{}{"name": "ccmuxd-bridge", "version": "1"},
		}}
	case "initialized", "notifications/initialized":
		return nil
	case "tools/list":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{"tools": ToolCatalog()}}
	case "tools/call":
		return b.handleToolsCall(req)
	default:
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &JSONRPCError{Code: -32601, Message: "method not found: " + req.Method}}
	}
}

func (b *Bridge) handleToolsCall(req JSONRPCRequest) *JSONRPCResponse {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &JSONRPCError{Code: -32602, Message: "invalid params"}}
	}

	result, err := b.dispatchTool(params.Name, params.Arguments)
	if err != nil {
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{
			"isError": true,
			"content": []map[string]interface{}{{"type": "text", "text": err.Error()}},
		}}
	}
	text, _ := json.Marshal(result)
	return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{
		"content": []map[string]interface{}{{"type": "text", "text": string(text)}},
	}}
}
