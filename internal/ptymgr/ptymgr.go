// Package ptymgr owns every PTY-backed pane process the daemon runs. One
// Manager instance serves the whole daemon; each pane gets its own handle
// keyed by pane id (spec §4.1).
package ptymgr

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// SpawnOptions configure a new pane process.
type SpawnOptions struct {
	Command []string
	Cwd     string
	Env     []string
	Cols    uint16
	Rows    uint16
}

// Handle is one live PTY-backed process.
type Handle struct {
	PaneID string

	mu   sync.Mutex
	ptm  *os.File
	cmd  *exec.Cmd
	pid  int
	dead bool

	// Done is closed once the process has fully exited and Wait() has
	// returned, the same processDone handshake the teacher uses in
	// instance.go to let the reader goroutine signal completion exactly
	// once.
	Done chan struct{}
}

// Manager spawns, writes to, resizes and kills panes. Grounded on
// instance.go's startAgent/ptyReader/destroy, generalized from "one PTY per
// instance keyed by instance id" to "one PTY per pane keyed by pane id",
// and on trybotster's pty/session.go Spawn/Resize/Kill shape.
type Manager struct {
	log *slog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

func New(log *slog.Logger) *Manager {
	return &Manager{
		log:     log,
		handles: make(map[string]*Handle),
	}
}

// Spawn starts a process under a new PTY for paneID and registers its
// handle. The caller owns reading from the returned io.Reader (typically
// handed to internal/poller).
func (m *Manager) Spawn(paneID string, opts SpawnOptions) (*Handle, io.Reader, error) {
	if len(opts.Command) == 0 {
		return nil, nil, fmt.Errorf("ptymgr: spawn %s: empty command", paneID)
	}

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.Cwd
	cmd.Env = opts.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	// pty.Start calls setsid on the child, giving it its own session and
	// process group (PGID == PID) so Kill can target the whole group
	// without a separate Setpgid call (the teacher notes Setpgid after
	// Setsid returns EPERM on macOS).
	ptm, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: opts.Cols, Rows: opts.Rows})
	if err != nil {
		return nil, nil, fmt.Errorf("ptymgr: pty.Start %s: %w", paneID, err)
	}

	h := &Handle{
		PaneID: paneID,
		ptm:    ptm,
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		Done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.handles[paneID] = h
	m.mu.Unlock()

	go m.reapOnExit(h)

	m.log.Info("pane spawned", "pane_id", paneID, "pid", h.pid, "cmd", opts.Command[0])
	return h, ptm, nil
}

// reapOnExit waits for the child process and closes Done once it has
// exited, mirroring ptyReader's cmd.Wait() handshake in the teacher.
func (m *Manager) reapOnExit(h *Handle) {
	waitErr := h.cmd.Wait()

	h.mu.Lock()
	h.dead = true
	if h.ptm != nil {
		h.ptm.Close()
		h.ptm = nil
	}
	h.mu.Unlock()

	if waitErr != nil {
		m.log.Info("pane process exited", "pane_id", h.PaneID, "err", waitErr)
	} else {
		m.log.Info("pane process exited", "pane_id", h.PaneID)
	}
	close(h.Done)
}

// ExitCode returns the process's exit code once Done has fired; only valid
// after <-h.Done.
func (h *Handle) ExitCode() int {
	if h.cmd.ProcessState == nil {
		return -1
	}
	return h.cmd.ProcessState.ExitCode()
}

// Write sends bytes to the pane's PTY master (client input, spec §4.5 Input).
func (m *Manager) Write(paneID string, data []byte) error {
	h, ok := m.get(paneID)
	if !ok {
		return fmt.Errorf("ptymgr: write: unknown pane %s", paneID)
	}
	h.mu.Lock()
	ptm := h.ptm
	h.mu.Unlock()
	if ptm == nil {
		return fmt.Errorf("ptymgr: write: pane %s has no live pty", paneID)
	}
	_, err := ptm.Write(data)
	return err
}

// Resize changes the pane's PTY window size (spec §4.5 Resize).
func (m *Manager) Resize(paneID string, cols, rows uint16) error {
	h, ok := m.get(paneID)
	if !ok {
		return fmt.Errorf("ptymgr: resize: unknown pane %s", paneID)
	}
	h.mu.Lock()
	ptm := h.ptm
	h.mu.Unlock()
	if ptm == nil {
		return fmt.Errorf("ptymgr: resize: pane %s has no live pty", paneID)
	}
	return pty.Setsize(ptm, &pty.Winsize{Cols: cols, Rows: rows})
}

// Kill terminates the pane's process group and releases its PTY, grounded
// on destroy(): look up the real PGID via Getpgid rather than assuming it
// equals the PID, falling back to killing just the process.
func (m *Manager) Kill(paneID string) error {
	h, ok := m.get(paneID)
	if !ok {
		return nil
	}
	h.mu.Lock()
	pid := h.pid
	h.mu.Unlock()

	if pid > 0 {
		if pgid, err := syscall.Getpgid(pid); err == nil && pgid > 0 {
			_ = unix.Kill(-pgid, syscall.SIGKILL)
		} else {
			_ = unix.Kill(pid, syscall.SIGKILL)
		}
	}
	return nil
}

// KillAll terminates every live pane, used during daemon shutdown.
func (m *Manager) KillAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		_ = m.Kill(id)
	}
}

// Remove drops the bookkeeping entry for a pane once its output poller has
// finished draining it. It does not kill the process; call Kill first.
func (m *Manager) Remove(paneID string) {
	m.mu.Lock()
	delete(m.handles, paneID)
	m.mu.Unlock()
}

func (m *Manager) get(paneID string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[paneID]
	return h, ok
}
