package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSessionWindowPane(t *testing.T, m *Manager) (*Session, *Window, *Pane) {
	t.Helper()
	sess := m.CreateSession("proj", 0)
	win := m.CreateWindow(sess.ID, "main")
	require.NotNil(t, win)
	pane := m.CreatePane(win.ID, 80, 24)
	require.NotNil(t, pane)
	return sess, win, pane
}

func TestCreateWindowUnknownSessionReturnsNil(t *testing.T) {
	m := NewManager()
	assert.Nil(t, m.CreateWindow("ghost", "w"))
}

func TestCreatePaneUnknownWindowReturnsNil(t *testing.T) {
	m := NewManager()
	assert.Nil(t, m.CreatePane("ghost", 80, 24))
}

func TestClosePaneAlsoClosesMirrors(t *testing.T) {
	m := NewManager()
	_, win, pane := setupSessionWindowPane(t, m)
	mirror := m.CreateMirror(pane.ID, win.ID, 80, 24)
	require.NotNil(t, mirror)
	assert.Equal(t, []string{mirror.ID}, m.MirrorsOf(pane.ID))

	windowID, orphaned := m.ClosePane(pane.ID)
	assert.Equal(t, win.ID, windowID)
	assert.Equal(t, []string{mirror.ID}, orphaned)

	m.Graph.RLock()
	defer m.Graph.RUnlock()
	assert.Nil(t, m.Graph.Panes[pane.ID])
	assert.Nil(t, m.Graph.Panes[mirror.ID])
}

func TestCloseWindowClosesAllPanes(t *testing.T) {
	m := NewManager()
	sess, win, p1 := setupSessionWindowPane(t, m)
	p2 := m.CreatePane(win.ID, 80, 24)
	require.NotNil(t, p2)

	sessionID := m.CloseWindow(win.ID)
	assert.Equal(t, sess.ID, sessionID)

	m.Graph.RLock()
	defer m.Graph.RUnlock()
	assert.Nil(t, m.Graph.Panes[p1.ID])
	assert.Nil(t, m.Graph.Panes[p2.ID])
	assert.Nil(t, m.Graph.Windows[win.ID])
}

func TestDestroySessionRemovesEverything(t *testing.T) {
	m := NewManager()
	sess, win, pane := setupSessionWindowPane(t, m)

	m.DestroySession(sess.ID)

	m.Graph.RLock()
	defer m.Graph.RUnlock()
	assert.Nil(t, m.Graph.Sessions[sess.ID])
	assert.Nil(t, m.Graph.Windows[win.ID])
	assert.Nil(t, m.Graph.Panes[pane.ID])
}

func TestListSessionsOrderedByCreation(t *testing.T) {
	m := NewManager()
	s2 := m.CreateSession("second", 20)
	s1 := m.CreateSession("first", 10)

	got := m.ListSessions()
	require.Len(t, got, 2)
	assert.Equal(t, s1.ID, got[0].ID)
	assert.Equal(t, s2.ID, got[1].ID)
}

func TestListWindowsOrderedByIndex(t *testing.T) {
	m := NewManager()
	sess := m.CreateSession("proj", 0)
	w1 := m.CreateWindow(sess.ID, "a")
	w2 := m.CreateWindow(sess.ID, "b")

	got := m.ListWindows(sess.ID)
	require.Len(t, got, 2)
	assert.Equal(t, w1.ID, got[0].ID)
	assert.Equal(t, w2.ID, got[1].ID)
}

func TestListAllPanesAcrossSessions(t *testing.T) {
	m := NewManager()
	_, _, p1 := setupSessionWindowPane(t, m)
	_, _, p2 := setupSessionWindowPane(t, m)

	got := m.ListAllPanes()
	ids := []string{got[0].ID, got[1].ID}
	assert.ElementsMatch(t, []string{p1.ID, p2.ID}, ids)
}
