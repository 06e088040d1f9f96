package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmuxd/internal/wire"
)

func TestReplyByTargetIDWritesToPane(t *testing.T) {
	r := newTestRouter(t)
	defer r.pty.KillAll()
	_, _, paneID := createTestSession(t, r, "bridge-reply-id")

	result := r.Handle("c1", encodeEnv(t, wire.TReply, wire.ReplyMsg{TargetID: paneID, Content: []byte("hello\n")}))
	require.Equal(t, wire.TReplyDelivered, result.Type)
	delivered := result.Payload.(wire.ReplyDeliveredMsg)
	assert.Equal(t, paneID, delivered.PaneID)
	assert.Equal(t, len("hello\n"), delivered.BytesWritten)
}

func TestReplyByTargetNameResolvesPane(t *testing.T) {
	r := newTestRouter(t)
	defer r.pty.KillAll()
	_, _, paneID := createTestSession(t, r, "bridge-reply-name")
	r.Handle("c1", encodeEnv(t, wire.TRenamePane, wire.RenamePaneMsg{PaneID: paneID, Name: "worker"}))

	result := r.Handle("c1", encodeEnv(t, wire.TReply, wire.ReplyMsg{TargetName: "worker", Content: []byte("hi\n")}))
	require.Equal(t, wire.TReplyDelivered, result.Type)
	assert.Equal(t, paneID, result.Payload.(wire.ReplyDeliveredMsg).PaneID)
}

func TestReplyNoMatchingTargetFails(t *testing.T) {
	r := newTestRouter(t)
	result := r.Handle("c1", encodeEnv(t, wire.TReply, wire.ReplyMsg{TargetID: "ghost"}))
	assert.Equal(t, wire.TError, result.Type)
}

func TestSendOrchestrationByTargetSessionID(t *testing.T) {
	r := newTestRouter(t)
	defer r.pty.KillAll()
	sessionID, _, _ := createTestSession(t, r, "bridge-orch-target")

	result := r.Handle("c1", encodeEnv(t, wire.TSendOrchestration, wire.SendOrchestrationMsg{
		TargetSessionID: sessionID,
		Payload:         []byte("go build"),
	}))
	require.Equal(t, wire.TOrchestrationDelivered, result.Type)
	assert.Equal(t, 1, result.Payload.(wire.OrchestrationDeliveredMsg).Delivered)

	polled := r.Handle("c1", encodeEnv(t, wire.TPollMessages, wire.PollMessagesMsg{SessionID: sessionID}))
	require.Equal(t, wire.TMessagesPolled, polled.Type)
	msgs := polled.Payload.(wire.MessagesPolledMsg).Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("go build"), msgs[0].Payload)
}

func TestSendOrchestrationNoMatchFails(t *testing.T) {
	r := newTestRouter(t)
	result := r.Handle("c1", encodeEnv(t, wire.TSendOrchestration, wire.SendOrchestrationMsg{TargetSessionID: "ghost"}))
	assert.Equal(t, wire.TError, result.Type)
}

func TestSendOrchestrationBroadcastReachesOrchestratorSessions(t *testing.T) {
	r := newTestRouter(t)
	defer r.pty.KillAll()
	sessionID, _, _ := createTestSession(t, r, "bridge-orch-broadcast")
	r.mgr.Graph.Lock()
	r.mgr.Graph.Sessions[sessionID].Orchestrator = true
	r.mgr.Graph.Unlock()

	result := r.Handle("c1", encodeEnv(t, wire.TSendOrchestration, wire.SendOrchestrationMsg{Broadcast: true, Payload: []byte("status?")}))
	require.Equal(t, wire.TOrchestrationDelivered, result.Type)
	assert.Equal(t, 1, result.Payload.(wire.OrchestrationDeliveredMsg).Delivered)
}

func TestWatchdogStartStopLifecycle(t *testing.T) {
	r := newTestRouter(t)
	defer r.pty.KillAll()
	_, _, paneID := createTestSession(t, r, "bridge-watchdog")

	start := r.Handle("c1", encodeEnv(t, wire.TWatchdogStart, wire.WatchdogStartMsg{
		Name:       "nudge",
		PaneID:     paneID,
		Message:    []byte("\n"),
		IntervalMS: 50,
	}))
	require.Equal(t, wire.TWatchdogStarted, start.Type)

	status := r.Handle("c1", encodeEnv(t, wire.TWatchdogStatus, wire.WatchdogStatusMsg{}))
	require.Equal(t, wire.TWatchdogStatusResponse, status.Type)
	require.Len(t, status.Payload.(wire.WatchdogStatusResponseMsg).Watchdogs, 1)

	stop := r.Handle("c1", encodeEnv(t, wire.TWatchdogStop, wire.WatchdogStopMsg{Name: "nudge"}))
	require.Equal(t, wire.TWatchdogStopped, stop.Type)
	assert.Equal(t, []string{"nudge"}, stop.Payload.(wire.WatchdogStoppedMsg).Names)
}

func TestWatchdogStartRejectsNonPositiveInterval(t *testing.T) {
	r := newTestRouter(t)
	result := r.Handle("c1", encodeEnv(t, wire.TWatchdogStart, wire.WatchdogStartMsg{Name: "bad", IntervalMS: 0}))
	assert.Equal(t, wire.TError, result.Type)
}
