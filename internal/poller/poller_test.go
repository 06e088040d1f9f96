package poller

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmuxd/internal/ptymgr"
	"github.com/ianremillard/ccmuxd/internal/sideband"
)

type fakeSink struct {
	mu       sync.Mutex
	output   []byte
	commands []sideband.Command
	exited   bool
}

func (f *fakeSink) HandleOutput(paneID string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.output = append(f.output, data...)
}

func (f *fakeSink) HandleSideband(paneID string, cmd sideband.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
}

func (f *fakeSink) HandleExit(paneID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exited = true
}

func (f *fakeSink) snapshot() ([]byte, []sideband.Command, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.output...), append([]sideband.Command(nil), f.commands...), f.exited
}

func TestPollerFlushesOutputAndSignalsExit(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := ptymgr.New(log)
	_, reader, err := mgr.Spawn("p1", ptymgr.SpawnOptions{
		Command: []string{"/bin/sh", "-c", "echo hello world"},
		Cols:    80,
		Rows:    24,
	})
	require.NoError(t, err)

	sink := &fakeSink{}
	p := New("p1", reader, mgr, sink, log)

	done := make(chan struct{})
	go func() {
		p.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not finish draining in time")
	}

	output, _, exited := sink.snapshot()
	assert.Contains(t, string(output), "hello world")
	assert.True(t, exited)
}

func TestPollerExtractsSidebandCommands(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := ptymgr.New(log)
	_, reader, err := mgr.Spawn("p1", ptymgr.SpawnOptions{
		Command: []string{"/bin/sh", "-c", `printf 'before <ccmux:notify msg="hi"/> after\n'`},
		Cols:    80,
		Rows:    24,
	})
	require.NoError(t, err)

	sink := &fakeSink{}
	p := New("p1", reader, mgr, sink, log)

	done := make(chan struct{})
	go func() {
		p.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not finish draining in time")
	}

	output, cmds, _ := sink.snapshot()
	assert.NotContains(t, string(output), "ccmux:notify")
	require.Len(t, cmds, 1)
	assert.Equal(t, "notify", cmds[0].Name)
	assert.Equal(t, "hi", cmds[0].Attrs["msg"])
}

func TestContainsNewline(t *testing.T) {
	assert.True(t, containsNewline([]byte("a\nb")))
	assert.False(t, containsNewline([]byte("ab")))
}
