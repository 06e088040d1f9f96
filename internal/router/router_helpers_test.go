package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmuxd/internal/wire"
)

// createTestSession drives a real CreateSessionWithOptions through Handle,
// returning the ids of the session/window/pane it spawned. The pane runs a
// real /bin/sh, so callers that don't need the process alive should kill it
// via r.pty.KillAll() in a defer.
func createTestSession(t *testing.T, r *Router, name string) (sessionID, windowID, paneID string) {
	t.Helper()
	env := encodeEnv(t, wire.TCreateSessionWithOptions, wire.CreateSessionWithOptionsMsg{
		Name:    name,
		Command: "/bin/sh",
	})
	result := r.Handle("c1", env)
	require.Equal(t, wire.TSessionCreated, result.Type)
	sessionID = result.Payload.(wire.SessionCreatedMsg).Session.ID

	attached := r.Handle("c1", encodeEnv(t, wire.TAttachSession, wire.AttachSessionMsg{SessionID: sessionID}))
	attachedMsg := attached.Payload.(wire.AttachedMsg)
	require.Len(t, attachedMsg.Windows, 1)
	require.Len(t, attachedMsg.Panes, 1)
	windowID = attachedMsg.Windows[0].ID
	paneID = attachedMsg.Panes[0].ID

	// let the shell actually start before tests write to or kill it
	time.Sleep(20 * time.Millisecond)
	return sessionID, windowID, paneID
}
