package router

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmuxd/internal/ipcserver"
	"github.com/ianremillard/ccmuxd/internal/wire"
)

// encodeEnv round-trips a message through the real framing code rather than
// constructing an Envelope's CBOR payload by hand.
func encodeEnv(t *testing.T, msgType string, v interface{}) wire.Envelope {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, wire.WriteEnvelope(&buf, msgType, v))
	env, err := wire.NewDecoder(&buf).Decode()
	require.NoError(t, err)
	return env
}

func TestHandleConnectAcceptsMatchingProtocol(t *testing.T) {
	r := newTestRouter(t)
	env := encodeEnv(t, wire.TConnect, wire.ConnectMsg{ClientID: "c1", ProtocolVersion: wire.Protocol})
	result := r.Handle("c1", env)
	assert.Equal(t, ipcserver.Response, result.Kind)
	assert.Equal(t, wire.TConnected, result.Type)
}

func TestHandleConnectRejectsMismatchedProtocol(t *testing.T) {
	r := newTestRouter(t)
	env := encodeEnv(t, wire.TConnect, wire.ConnectMsg{ClientID: "c1", ProtocolVersion: wire.Protocol + 1})
	result := r.Handle("c1", env)
	assert.Equal(t, ipcserver.Response, result.Kind)
	assert.Equal(t, wire.TError, result.Type)
}

func TestCreateSessionThenAttachThenDestroy(t *testing.T) {
	r := newTestRouter(t)
	defer r.pty.KillAll()

	createEnv := encodeEnv(t, wire.TCreateSessionWithOptions, wire.CreateSessionWithOptionsMsg{
		Name:    "work",
		Command: "/bin/sh",
	})
	created := r.Handle("c1", createEnv)
	require.Equal(t, ipcserver.ResponseWithGlobalBroadcast, created.Kind)
	require.Equal(t, wire.TSessionCreated, created.Type)
	sessionID := created.Payload.(wire.SessionCreatedMsg).Session.ID
	require.NotEmpty(t, sessionID)

	// Duplicate name is rejected.
	dupEnv := encodeEnv(t, wire.TCreateSessionWithOptions, wire.CreateSessionWithOptionsMsg{Name: "work"})
	dup := r.Handle("c2", dupEnv)
	assert.Equal(t, wire.TError, dup.Type)

	attachEnv := encodeEnv(t, wire.TAttachSession, wire.AttachSessionMsg{SessionID: sessionID})
	attached := r.Handle("c1", attachEnv)
	require.Equal(t, ipcserver.Response, attached.Kind)
	require.Equal(t, wire.TAttached, attached.Type)
	attachedMsg := attached.Payload.(wire.AttachedMsg)
	assert.Equal(t, sessionID, attachedMsg.Session.ID)
	require.Len(t, attachedMsg.Windows, 1)
	require.Len(t, attachedMsg.Panes, 1)

	// Give the spawned shell a moment to start before destroy kills it.
	time.Sleep(50 * time.Millisecond)

	destroyEnv := encodeEnv(t, wire.TDestroySession, wire.DestroySessionMsg{SessionID: sessionID})
	destroyed := r.Handle("c1", destroyEnv)
	require.Equal(t, ipcserver.ResponseWithGlobalBroadcast, destroyed.Kind)
	assert.Equal(t, wire.TSessionDestroyed, destroyed.Type)

	list := r.Handle("c1", encodeEnv(t, wire.TListSessions, wire.ListSessionsMsg{}))
	assert.Empty(t, list.Payload.(wire.SessionListMsg).Sessions)
}

func TestHandleAttachUnknownSessionFails(t *testing.T) {
	r := newTestRouter(t)
	env := encodeEnv(t, wire.TAttachSession, wire.AttachSessionMsg{SessionID: "ghost"})
	result := r.Handle("c1", env)
	assert.Equal(t, wire.TError, result.Type)
}

func TestHandleUnknownMessageTypeReturnsError(t *testing.T) {
	r := newTestRouter(t)
	result := r.Handle("c1", wire.Envelope{Type: "NotARealType"})
	assert.Equal(t, wire.TError, result.Type)
}
