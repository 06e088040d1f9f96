package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestViewportSetOffsetUnpinsThenRePins(t *testing.T) {
	v := NewViewport()
	assert.True(t, v.IsPinned)

	v.SetOffset(12)
	assert.False(t, v.IsPinned)
	assert.Equal(t, 12, v.OffsetFromBottom)

	v.AddNewLines(3)
	assert.Equal(t, 3, v.NewLinesSincePin)

	v.SetOffset(0)
	assert.True(t, v.IsPinned)
	assert.Equal(t, 0, v.NewLinesSincePin)
}

func TestViewportSetOffsetClampsNegative(t *testing.T) {
	v := NewViewport()
	v.SetOffset(-5)
	assert.Equal(t, 0, v.OffsetFromBottom)
	assert.True(t, v.IsPinned)
}

func TestViewportAddNewLinesIgnoredWhilePinned(t *testing.T) {
	v := NewViewport()
	v.AddNewLines(10)
	assert.Equal(t, 0, v.NewLinesSincePin)
}

func TestViewportJumpToBottomIsAliasForPin(t *testing.T) {
	v := NewViewport()
	v.SetOffset(50)
	v.JumpToBottom()
	assert.True(t, v.IsAtBottom())
	assert.True(t, v.IsPinned)
}

func TestSessionTagRoundTrip(t *testing.T) {
	s := NewSession("proj", 0)
	assert.False(t, s.HasTag("orchestrator"))
	s.AddTag("orchestrator")
	assert.True(t, s.HasTag("orchestrator"))
	s.RemoveTag("orchestrator")
	assert.False(t, s.HasTag("orchestrator"))
}

func TestGraphAddAndRemovePaneFixesUpActiveID(t *testing.T) {
	g := NewGraph()
	g.Lock()
	sess := NewSession("s", 0)
	g.AddSession(sess)
	win := &Window{ID: NewID(), SessionID: sess.ID}
	g.AddWindow(win)
	p1 := &Pane{ID: NewID(), WindowID: win.ID}
	p2 := &Pane{ID: NewID(), WindowID: win.ID}
	g.AddPane(p1)
	g.AddPane(p2)
	g.Unlock()

	assert.Equal(t, p1.ID, win.ActivePaneID)
	assert.Equal(t, sess, g.SessionOfWindow(win.ID))
	assert.Equal(t, sess, g.SessionOfPane(p1.ID))

	g.Lock()
	g.RemovePane(p1.ID)
	g.Unlock()

	assert.Equal(t, p2.ID, win.ActivePaneID, "removing the active pane should promote the remaining one")
	assert.Nil(t, g.Panes[p1.ID])
}

func TestGraphResolveByIDAndByName(t *testing.T) {
	g := NewGraph()
	g.Lock()
	sess := NewSession("s", 0)
	g.AddSession(sess)
	win := &Window{ID: NewID(), SessionID: sess.ID}
	g.AddWindow(win)
	p := &Pane{ID: NewID(), WindowID: win.ID, Name: "editor"}
	g.AddPane(p)
	g.Unlock()

	g.RLock()
	defer g.RUnlock()
	assert.Equal(t, p, g.Resolve(sess.ID, PaneTarget{ID: p.ID}))
	assert.Equal(t, p, g.Resolve(sess.ID, PaneTarget{Name: "editor"}))
	assert.Nil(t, g.Resolve(sess.ID, PaneTarget{Name: "missing"}))
}
