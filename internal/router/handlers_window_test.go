package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmuxd/internal/ipcserver"
	"github.com/ianremillard/ccmuxd/internal/wire"
)

func TestCreateWindowAddsToSession(t *testing.T) {
	r := newTestRouter(t)
	defer r.pty.KillAll()
	sessionID, _, _ := createTestSession(t, r, "window-create")

	env := encodeEnv(t, wire.TCreateWindowWithOptions, wire.CreateWindowWithOptionsMsg{
		SessionID: sessionID,
		Name:      "logs",
		Command:   "/bin/sh",
	})
	result := r.Handle("c1", env)
	require.Equal(t, ipcserver.ResponseWithBroadcast, result.Kind)
	require.Equal(t, wire.TWindowCreated, result.Type)
	win := result.Payload.(wire.WindowCreatedMsg).Window
	assert.Equal(t, "logs", win.Name)

	list := r.Handle("c1", encodeEnv(t, wire.TListWindows, wire.ListWindowsMsg{SessionID: sessionID}))
	assert.Len(t, list.Payload.(wire.WindowListMsg).Windows, 2)
}

func TestCreateWindowUnknownSessionFails(t *testing.T) {
	r := newTestRouter(t)
	env := encodeEnv(t, wire.TCreateWindowWithOptions, wire.CreateWindowWithOptionsMsg{SessionID: "ghost"})
	result := r.Handle("c1", env)
	assert.Equal(t, wire.TError, result.Type)
}

func TestRenameWindowUpdatesName(t *testing.T) {
	r := newTestRouter(t)
	defer r.pty.KillAll()
	_, windowID, _ := createTestSession(t, r, "window-rename")

	result := r.Handle("c1", encodeEnv(t, wire.TRenameWindow, wire.RenameWindowMsg{WindowID: windowID, Name: "build"}))
	require.Equal(t, wire.TWindowRenamed, result.Type)
	assert.Equal(t, "build", result.Payload.(wire.WindowRenamedMsg).Name)
}

func TestRenameWindowUnknownWindowFails(t *testing.T) {
	r := newTestRouter(t)
	result := r.Handle("c1", encodeEnv(t, wire.TRenameWindow, wire.RenameWindowMsg{WindowID: "ghost", Name: "x"}))
	assert.Equal(t, wire.TError, result.Type)
}

func TestSelectWindowSetsActiveWindow(t *testing.T) {
	r := newTestRouter(t)
	defer r.pty.KillAll()
	sessionID, windowID, _ := createTestSession(t, r, "window-select")

	result := r.Handle("c1", encodeEnv(t, wire.TSelectWindow, wire.SelectWindowMsg{WindowID: windowID}))
	require.Equal(t, wire.TWindowFocused, result.Type)
	focused := result.Payload.(wire.WindowFocusedMsg)
	assert.Equal(t, sessionID, focused.SessionID)
	assert.Equal(t, windowID, focused.WindowID)
}

func TestSelectWindowUnknownWindowFails(t *testing.T) {
	r := newTestRouter(t)
	result := r.Handle("c1", encodeEnv(t, wire.TSelectWindow, wire.SelectWindowMsg{WindowID: "ghost"}))
	assert.Equal(t, wire.TError, result.Type)
}
