package wire

import "time"

// Client-to-server message type tags (spec §6). The Go struct following each
// constant is that message's payload shape.
const (
	TConnect                   = "Connect"
	TListSessions               = "ListSessions"
	TCreateSessionWithOptions   = "CreateSessionWithOptions"
	TAttachSession              = "AttachSession"
	TCreateWindowWithOptions    = "CreateWindowWithOptions"
	TCreatePaneWithOptions      = "CreatePaneWithOptions"
	TSplitPane                  = "SplitPane"
	TInput                      = "Input"
	TResize                     = "Resize"
	TClosePane                  = "ClosePane"
	TSelectPane                 = "SelectPane"
	TSelectWindow               = "SelectWindow"
	TSelectSession              = "SelectSession"
	TDetach                     = "Detach"
	TSync                       = "Sync"
	TPing                       = "Ping"
	TSetViewportOffset          = "SetViewportOffset"
	TJumpToBottom               = "JumpToBottom"
	TReply                      = "Reply"
	TSendOrchestration          = "SendOrchestration"
	TDestroySession             = "DestroySession"
	TListAllPanes               = "ListAllPanes"
	TListWindows                = "ListWindows"
	TReadPane                   = "ReadPane"
	TGetPaneStatus              = "GetPaneStatus"
	TRenameSession              = "RenameSession"
	TRenamePane                 = "RenamePane"
	TRenameWindow               = "RenameWindow"
	TResizePaneDelta            = "ResizePaneDelta"
	TCreateLayout               = "CreateLayout"
	TSetEnvironment             = "SetEnvironment"
	TGetEnvironment             = "GetEnvironment"
	TSetMetadata                = "SetMetadata"
	TGetMetadata                = "GetMetadata"
	TSetTags                    = "SetTags"
	TGetTags                    = "GetTags"
	TUserCommandModeEntered     = "UserCommandModeEntered"
	TUserCommandModeExited      = "UserCommandModeExited"
	TGetEventsSince             = "GetEventsSince"
	TCreateMirror               = "CreateMirror"
	TGetWorkerStatus            = "GetWorkerStatus"
	TPollMessages               = "PollMessages"
	TWatchdogStart              = "WatchdogStart"
	TWatchdogStop               = "WatchdogStop"
	TWatchdogStatus             = "WatchdogStatus"
)

// Server-to-client message type tags (spec §6).
const (
	TConnected                  = "Connected"
	TPong                       = "Pong"
	TError                      = "Error"
	TSessionList                = "SessionList"
	TSessionsChanged            = "SessionsChanged"
	TSessionCreated             = "SessionCreated"
	TAttached                   = "Attached"
	TStateSnapshot              = "StateSnapshot"
	TSequenced                  = "Sequenced"
	TWindowCreated              = "WindowCreated"
	TPaneCreated                = "PaneCreated"
	TOutput                     = "Output"
	TPaneStateChanged           = "PaneStateChanged"
	TAgentStateChanged          = "AgentStateChanged"
	TPaneClosed                 = "PaneClosed"
	TWindowClosed               = "WindowClosed"
	TSessionEnded               = "SessionEnded"
	TViewportUpdated            = "ViewportUpdated"
	TReplyDelivered             = "ReplyDelivered"
	TOrchestrationReceived      = "OrchestrationReceived"
	TMailReceived               = "MailReceived"
	TOrchestrationDelivered     = "OrchestrationDelivered"
	TAllPanesList               = "AllPanesList"
	TWindowList                 = "WindowList"
	TPaneContent                = "PaneContent"
	TPaneStatus                 = "PaneStatus"
	TPaneCreatedWithDetails     = "PaneCreatedWithDetails"
	TSessionCreatedWithDetails  = "SessionCreatedWithDetails"
	TWindowCreatedWithDetails   = "WindowCreatedWithDetails"
	TSessionRenamed             = "SessionRenamed"
	TPaneRenamed                = "PaneRenamed"
	TWindowRenamed              = "WindowRenamed"
	TPaneSplit                  = "PaneSplit"
	TPaneResized                = "PaneResized"
	TLayoutCreated              = "LayoutCreated"
	TSessionDestroyed           = "SessionDestroyed"
	TEnvironmentSet             = "EnvironmentSet"
	TEnvironmentList            = "EnvironmentList"
	TMetadataSet                = "MetadataSet"
	TMetadataList               = "MetadataList"
	TTagsSet                    = "TagsSet"
	TTagsList                   = "TagsList"
	TPaneFocused                = "PaneFocused"
	TWindowFocused              = "WindowFocused"
	TSessionFocused             = "SessionFocused"
	TMirrorCreated              = "MirrorCreated"
	TMirrorSourceClosed         = "MirrorSourceClosed"
	TWatchdogStarted            = "WatchdogStarted"
	TWatchdogStopped            = "WatchdogStopped"
	TWatchdogStatusResponse     = "WatchdogStatusResponse"
	TWorkerStatus               = "WorkerStatus"
	TMessagesPolled             = "MessagesPolled"
)

// ClientType identifies which of the two client populations a connection
// belongs to (spec §1).
type ClientType string

const (
	ClientTUI   ClientType = "tui"
	ClientAgent ClientType = "agent"
)

// Protocol is the wire protocol version exchanged on Connect. Bumping it is
// a breaking change (spec §6).
const Protocol = 1

// --- Client -> server payloads -------------------------------------------

type ConnectMsg struct {
	ClientID        string     `cbor:"client_id"`
	ProtocolVersion int        `cbor:"protocol_version"`
	ClientType      ClientType `cbor:"client_type"`
}

type ListSessionsMsg struct{}

type CreateSessionWithOptionsMsg struct {
	Name        string            `cbor:"name,omitempty"`
	Command     string            `cbor:"command,omitempty"`
	Cwd         string            `cbor:"cwd,omitempty"`
	Environment map[string]string `cbor:"environment,omitempty"`
	Tags        []string          `cbor:"tags,omitempty"`
	Orchestrator bool             `cbor:"orchestrator,omitempty"`
}

type AttachSessionMsg struct {
	SessionID  string `cbor:"session_id"`
	LastSeenSeq uint64 `cbor:"last_seen_seq,omitempty"`
}

type CreateWindowWithOptionsMsg struct {
	SessionID string `cbor:"session_id,omitempty"`
	Name      string `cbor:"name,omitempty"`
	Command   string `cbor:"command,omitempty"`
	Cwd       string `cbor:"cwd,omitempty"`
	Select    bool   `cbor:"select,omitempty"`
}

type CreatePaneWithOptionsMsg struct {
	SessionID string `cbor:"session_id,omitempty"`
	WindowID  string `cbor:"window_id,omitempty"`
	Direction string `cbor:"direction,omitempty"` // "horizontal" | "vertical"
	Command   string `cbor:"command,omitempty"`
	Cwd       string `cbor:"cwd,omitempty"`
	Select    bool   `cbor:"select,omitempty"`
	Name      string `cbor:"name,omitempty"`
}

type SplitPaneMsg struct {
	PaneID    string `cbor:"pane_id"`
	Direction string `cbor:"direction"`
	Command   string `cbor:"command,omitempty"`
	Cwd       string `cbor:"cwd,omitempty"`
	Select    bool   `cbor:"select,omitempty"`
}

type InputMsg struct {
	PaneID string `cbor:"pane_id"`
	Data   []byte `cbor:"data"`
}

type ResizeMsg struct {
	PaneID string `cbor:"pane_id"`
	Cols   uint16 `cbor:"cols"`
	Rows   uint16 `cbor:"rows"`
}

type ClosePaneMsg struct {
	PaneID string `cbor:"pane_id"`
}

type SelectPaneMsg struct{ PaneID string `cbor:"pane_id"` }
type SelectWindowMsg struct{ WindowID string `cbor:"window_id"` }
type SelectSessionMsg struct{ SessionID string `cbor:"session_id"` }

type DetachMsg struct{}
type SyncMsg struct{ SessionID string `cbor:"session_id"` }
type PingMsg struct{}

type SetViewportOffsetMsg struct {
	PaneID string `cbor:"pane_id"`
	Offset int    `cbor:"offset"`
}
type JumpToBottomMsg struct{ PaneID string `cbor:"pane_id"` }

type ReplyMsg struct {
	TargetID   string `cbor:"target_id,omitempty"`
	TargetName string `cbor:"target_name,omitempty"`
	Content    []byte `cbor:"content"`
}

type SendOrchestrationMsg struct {
	TargetTag       string `cbor:"target_tag,omitempty"`
	TargetSessionID string `cbor:"target_session_id,omitempty"`
	TargetWorktree  string `cbor:"target_worktree,omitempty"`
	Broadcast       bool   `cbor:"broadcast,omitempty"`
	Payload         []byte `cbor:"payload"`
}

type DestroySessionMsg struct{ SessionID string `cbor:"session_id"` }
type ListAllPanesMsg struct{}
type ListWindowsMsg struct{ SessionID string `cbor:"session_id,omitempty"` }

type ReadPaneMsg struct {
	PaneID string `cbor:"pane_id"`
	Lines  int    `cbor:"lines,omitempty"`
}
type GetPaneStatusMsg struct{ PaneID string `cbor:"pane_id"` }

type RenameSessionMsg struct {
	SessionID string `cbor:"session_id"`
	Name      string `cbor:"name"`
}
type RenamePaneMsg struct {
	PaneID string `cbor:"pane_id"`
	Name   string `cbor:"name"`
}
type RenameWindowMsg struct {
	WindowID string `cbor:"window_id"`
	Name     string `cbor:"name"`
}

type ResizePaneDeltaMsg struct {
	PaneID   string `cbor:"pane_id"`
	DeltaCol int    `cbor:"delta_col"`
	DeltaRow int    `cbor:"delta_row"`
}

type LayoutPaneSpec struct {
	Command string `cbor:"command,omitempty"`
	Cwd     string `cbor:"cwd,omitempty"`
	Cols    uint16 `cbor:"cols"`
	Rows    uint16 `cbor:"rows"`
}
type CreateLayoutMsg struct {
	SessionID string           `cbor:"session_id,omitempty"`
	WindowID  string           `cbor:"window_id,omitempty"`
	Panes     []LayoutPaneSpec `cbor:"panes"`
}

type SetEnvironmentMsg struct {
	SessionID string `cbor:"session_id"`
	Key       string `cbor:"key"`
	Value     string `cbor:"value"`
}
type GetEnvironmentMsg struct{ SessionID string `cbor:"session_id"` }
type SetMetadataMsg struct {
	SessionID string `cbor:"session_id"`
	Key       string `cbor:"key"`
	Value     string `cbor:"value"`
}
type GetMetadataMsg struct{ SessionID string `cbor:"session_id"` }
type SetTagsMsg struct {
	SessionID string   `cbor:"session_id"`
	Tags      []string `cbor:"tags"`
}
type GetTagsMsg struct{ SessionID string `cbor:"session_id"` }

type UserCommandModeEnteredMsg struct {
	SessionID string `cbor:"session_id"`
	DurationMS int64 `cbor:"duration_ms,omitempty"`
}
type UserCommandModeExitedMsg struct{ SessionID string `cbor:"session_id"` }

type GetEventsSinceMsg struct {
	SessionID string `cbor:"session_id"`
	LastSeq   uint64 `cbor:"last_seq"`
}

type CreateMirrorMsg struct {
	SourcePaneID    string `cbor:"source_pane_id"`
	TargetSessionID string `cbor:"target_session_id,omitempty"`
	TargetWindowID  string `cbor:"target_window_id,omitempty"`
}

type GetWorkerStatusMsg struct{ SessionID string `cbor:"session_id,omitempty"` }
type PollMessagesMsg struct{ SessionID string `cbor:"session_id,omitempty"` }

type WatchdogStartMsg struct {
	Name       string `cbor:"name"`
	PaneID     string `cbor:"pane_id"`
	Message    []byte `cbor:"message"`
	IntervalMS int64  `cbor:"interval_ms"`
}
type WatchdogStopMsg struct{ Name string `cbor:"name,omitempty"` } // empty -> stop all
type WatchdogStatusMsg struct{}

// --- Server -> client payloads --------------------------------------------

type ConnectedMsg struct {
	ClientID        string `cbor:"client_id"`
	ProtocolVersion int    `cbor:"protocol_version"`
}
type PongMsg struct{}

// ErrorCode is the stable wire taxonomy from spec §7.
type ErrorCode string

const (
	ErrSessionNotFound    ErrorCode = "SessionNotFound"
	ErrWindowNotFound     ErrorCode = "WindowNotFound"
	ErrPaneNotFound       ErrorCode = "PaneNotFound"
	ErrInvalidOperation   ErrorCode = "InvalidOperation"
	ErrProtocolMismatch   ErrorCode = "ProtocolMismatch"
	ErrInternalError      ErrorCode = "InternalError"
	ErrNotAwaitingInput   ErrorCode = "NotAwaitingInput"
	ErrNoRepository       ErrorCode = "NoRepository"
	ErrNoRecipients       ErrorCode = "NoRecipients"
	ErrSessionNameExists  ErrorCode = "SessionNameExists"
	ErrUserPriorityActive ErrorCode = "UserPriorityActive"
)

type ErrorMsg struct {
	Code    ErrorCode              `cbor:"code"`
	Message string                 `cbor:"message"`
	Details map[string]interface{} `cbor:"details,omitempty"`
}

type SessionSummary struct {
	ID              string            `cbor:"id"`
	Name            string            `cbor:"name"`
	CreatedAt       int64             `cbor:"created_at"`
	WindowCount     int               `cbor:"window_count"`
	AttachedClients int               `cbor:"attached_clients"`
	Worktree        *WorktreeInfo     `cbor:"worktree,omitempty"`
	Tags            []string          `cbor:"tags,omitempty"`
	Metadata        map[string]string `cbor:"metadata,omitempty"`
	Orchestrator    bool              `cbor:"orchestrator,omitempty"`
}

type WorktreeInfo struct {
	Path   string `cbor:"path"`
	Branch string `cbor:"branch,omitempty"`
	IsMain bool   `cbor:"is_main"`
}

type WindowSummary struct {
	ID           string `cbor:"id"`
	SessionID    string `cbor:"session_id"`
	Name         string `cbor:"name"`
	Index        int    `cbor:"index"`
	PaneCount    int    `cbor:"pane_count"`
	ActivePaneID string `cbor:"active_pane_id,omitempty"`
}

type PaneSummary struct {
	ID       string `cbor:"id"`
	WindowID string `cbor:"window_id"`
	Index    int    `cbor:"index"`
	Cols     uint16 `cbor:"cols"`
	Rows     uint16 `cbor:"rows"`
	State    string `cbor:"state"` // "normal" | "agent" | "exited" | "status_only"
	AgentInfo *AgentStateSummary `cbor:"agent_info,omitempty"`
	ExitCode *int   `cbor:"exit_code,omitempty"`
	Name     string `cbor:"name,omitempty"`
	Title    string `cbor:"title,omitempty"`
	Cwd      string `cbor:"cwd,omitempty"`
	IsMirror bool   `cbor:"is_mirror,omitempty"`
}

type AgentStateSummary struct {
	AgentType string                 `cbor:"agent_type"`
	SessionID string                 `cbor:"session_id,omitempty"`
	Activity  string                 `cbor:"activity"`
	Metadata  map[string]interface{} `cbor:"metadata,omitempty"`
}

type SessionListMsg struct{ Sessions []SessionSummary `cbor:"sessions"` }
type SessionsChangedMsg struct{ Sessions []SessionSummary `cbor:"sessions"` }
type SessionCreatedMsg struct{ Session SessionSummary `cbor:"session"` }

type AttachedMsg struct {
	Session   SessionSummary  `cbor:"session"`
	Windows   []WindowSummary `cbor:"windows"`
	Panes     []PaneSummary   `cbor:"panes"`
	CommitSeq uint64          `cbor:"commit_seq"`
}

type StateSnapshotMsg struct {
	CommitSeq uint64          `cbor:"commit_seq"`
	Session   SessionSummary  `cbor:"session"`
	Windows   []WindowSummary `cbor:"windows"`
	Panes     []PaneSummary   `cbor:"panes"`
}

// SequencedMsg wraps a state-mutating broadcast with its commit sequence
// number (spec §4.5). InnerType carries the wrapped message's type tag so the
// receiver can decode InnerPayload once it knows the shape.
type SequencedMsg struct {
	Seq          uint64          `cbor:"seq"`
	InnerType    string          `cbor:"inner_type"`
	InnerPayload cbor.RawMessage `cbor:"inner_payload"`
}

type WindowCreatedMsg struct{ Window WindowSummary `cbor:"window"` }
type PaneCreatedMsg struct {
	Pane         PaneSummary `cbor:"pane"`
	Direction    string      `cbor:"direction,omitempty"`
	ShouldFocus  bool        `cbor:"should_focus,omitempty"`
}

type OutputMsg struct {
	PaneID string `cbor:"pane_id"`
	Data   []byte `cbor:"data"`
}

type PaneStateChangedMsg struct {
	PaneID string `cbor:"pane_id"`
	State  PaneSummary `cbor:"state"`
}

type AgentStateChangedMsg struct {
	PaneID string            `cbor:"pane_id"`
	Agent  AgentStateSummary `cbor:"agent"`
}

type PaneClosedMsg struct {
	PaneID   string `cbor:"pane_id"`
	ExitCode *int   `cbor:"exit_code,omitempty"`
}

type WindowClosedMsg struct{ WindowID string `cbor:"window_id"` }
type SessionEndedMsg struct{ SessionID string `cbor:"session_id"` }

type ViewportUpdatedMsg struct {
	PaneID           string `cbor:"pane_id"`
	OffsetFromBottom int    `cbor:"offset_from_bottom"`
	IsPinned         bool   `cbor:"is_pinned"`
	NewLinesSincePin int    `cbor:"new_lines_since_pin"`
}

type ReplyDeliveredMsg struct {
	PaneID       string `cbor:"pane_id"`
	BytesWritten int    `cbor:"bytes_written"`
}

type OrchestrationReceivedMsg struct {
	FromSessionID string `cbor:"from_session_id"`
	Payload       []byte `cbor:"payload"`
}
type MailReceivedMsg struct {
	FromSessionID string `cbor:"from_session_id"`
	Payload       []byte `cbor:"payload"`
}
type OrchestrationDeliveredMsg struct{ Delivered int `cbor:"delivered"` }

type AllPanesListMsg struct{ Panes []PaneSummary `cbor:"panes"` }
type WindowListMsg struct{ Windows []WindowSummary `cbor:"windows"` }
type PaneContentMsg struct {
	PaneID string   `cbor:"pane_id"`
	Lines  []string `cbor:"lines"`
}
type PaneStatusMsg struct{ Pane PaneSummary `cbor:"pane"` }

type PaneCreatedWithDetailsMsg struct {
	Pane      PaneSummary `cbor:"pane"`
	WindowID  string      `cbor:"window_id"`
	SessionID string      `cbor:"session_id"`
}
type SessionCreatedWithDetailsMsg struct{ Session SessionSummary `cbor:"session"` }
type WindowCreatedWithDetailsMsg struct{ Window WindowSummary `cbor:"window"` }

type SessionRenamedMsg struct {
	SessionID string `cbor:"session_id"`
	Name      string `cbor:"name"`
}
type PaneRenamedMsg struct {
	PaneID string `cbor:"pane_id"`
	Name   string `cbor:"name"`
}
type WindowRenamedMsg struct {
	WindowID string `cbor:"window_id"`
	Name     string `cbor:"name"`
}
type PaneSplitMsg struct {
	ParentPaneID string `cbor:"parent_pane_id"`
	NewPane      PaneSummary `cbor:"new_pane"`
}
type PaneResizedMsg struct {
	PaneID string `cbor:"pane_id"`
	Cols   uint16 `cbor:"cols"`
	Rows   uint16 `cbor:"rows"`
}
type LayoutCreatedMsg struct{ Panes []PaneSummary `cbor:"panes"` }
type SessionDestroyedMsg struct{ SessionID string `cbor:"session_id"` }

type EnvironmentSetMsg struct {
	SessionID string `cbor:"session_id"`
	Key       string `cbor:"key"`
}
type EnvironmentListMsg struct {
	SessionID string            `cbor:"session_id"`
	Environment map[string]string `cbor:"environment"`
}
type MetadataSetMsg struct {
	SessionID string `cbor:"session_id"`
	Key       string `cbor:"key"`
}
type MetadataListMsg struct {
	SessionID string            `cbor:"session_id"`
	Metadata  map[string]string `cbor:"metadata"`
}
type TagsSetMsg struct {
	SessionID string   `cbor:"session_id"`
	Tags      []string `cbor:"tags"`
}
type TagsListMsg struct {
	SessionID string   `cbor:"session_id"`
	Tags      []string `cbor:"tags"`
}

type PaneFocusedMsg struct {
	SessionID string `cbor:"session_id"`
	WindowID  string `cbor:"window_id"`
	PaneID    string `cbor:"pane_id"`
}
type WindowFocusedMsg struct {
	SessionID string `cbor:"session_id"`
	WindowID  string `cbor:"window_id"`
}
type SessionFocusedMsg struct{ SessionID string `cbor:"session_id"` }

type MirrorCreatedMsg struct {
	SourcePaneID string      `cbor:"source_pane_id"`
	MirrorPane   PaneSummary `cbor:"mirror_pane"`
}
type MirrorSourceClosedMsg struct {
	MirrorPaneID string `cbor:"mirror_pane_id"`
	SourcePaneID string `cbor:"source_pane_id"`
	ExitCode     *int   `cbor:"exit_code,omitempty"`
}

type WatchdogStartedMsg struct{ Name string `cbor:"name"` }
type WatchdogStoppedMsg struct{ Names []string `cbor:"names"` }
type WatchdogInfo struct {
	Name       string `cbor:"name"`
	PaneID     string `cbor:"pane_id"`
	IntervalMS int64  `cbor:"interval_ms"`
}
type WatchdogStatusResponseMsg struct{ Watchdogs []WatchdogInfo `cbor:"watchdogs"` }

type WorkerStatusMsg struct {
	SessionID string `cbor:"session_id"`
	Busy      bool   `cbor:"busy"`
	LastSeen  int64  `cbor:"last_seen"`
}
type MessagesPolledMsg struct {
	Messages []OrchestrationReceivedMsg `cbor:"messages"`
}

// Now returns the current time as a millisecond-precision Unix timestamp,
// the resolution spec §3 requires for Session.CreatedAt.
func Now() int64 { return time.Now().UnixMilli() }
