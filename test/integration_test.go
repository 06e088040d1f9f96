//go:build integration

// Integration tests for ccmuxd, driven directly over its Unix socket.
//
// TestMain builds the ccmuxd binary once, each test starts an isolated
// daemon under a temp root directory, and talks to it with a raw wire
// client exercising the same request/response shapes a real TUI or agent
// bridge client would use.
//
// Run with:
//
//	go test -tags=integration -v ./test/
//	go test -tags=integration -run TestSessionLifecycle -v ./test/

package integration_test

import (
	"bytes"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmuxd/internal/wire"
)

var ccmuxdBin string

func TestMain(m *testing.M) {
	root := moduleRoot()

	tmpBin, err := os.MkdirTemp("", "ccmuxd-inttest-bin-*")
	if err != nil {
		panic("MkdirTemp: " + err.Error())
	}
	defer os.RemoveAll(tmpBin)

	ccmuxdBin = filepath.Join(tmpBin, "ccmuxd")
	cmd := exec.Command("go", "build", "-o", ccmuxdBin, "./cmd/ccmuxd")
	cmd.Dir = root
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic("build ./cmd/ccmuxd: " + err.Error())
	}

	os.Exit(m.Run())
}

// moduleRoot returns the path to the Go module root (one level up from test/).
func moduleRoot() string {
	abs, err := filepath.Abs("..")
	if err != nil {
		panic(err)
	}
	return abs
}

// ── Test environment ────────────────────────────────────────────────────────

type testEnv struct {
	t        *testing.T
	root     string
	sockPath string
	daemon   *exec.Cmd
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{t: t, root: root, sockPath: filepath.Join(root, "ccmuxd.sock")}
	t.Cleanup(env.cleanup)
	return env
}

// startDaemon starts `ccmuxd serve` and blocks until its Unix socket appears.
func (e *testEnv) startDaemon() {
	e.t.Helper()
	cmd := exec.Command(ccmuxdBin, "--root", e.root, "serve")
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	require.NoError(e.t, cmd.Start(), "start ccmuxd")
	e.daemon = cmd

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(e.sockPath); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	e.t.Fatal("ccmuxd socket did not appear within 5s")
}

func (e *testEnv) cleanup() {
	if e.daemon != nil && e.daemon.Process != nil {
		_ = e.daemon.Process.Signal(syscall.SIGTERM)
		_ = e.daemon.Wait()
	}
}

// ── A raw wire client, standing in for a TUI or the agent bridge ───────────

type testClient struct {
	t    *testing.T
	conn net.Conn
	enc  *wire.Encoder
	dec  *wire.Decoder
}

func (e *testEnv) dial() *testClient {
	e.t.Helper()
	conn, err := net.Dial("unix", e.sockPath)
	require.NoError(e.t, err)
	c := &testClient{t: e.t, conn: conn, enc: wire.NewEncoder(conn), dec: wire.NewDecoder(conn)}
	e.t.Cleanup(func() { conn.Close() })
	return c
}

// request sends msgType/payload and returns the first reply whose type is
// not a broadcast the pump fans out independently of this request (mirrors
// the agent bridge's classify/sendAndReceive shape in internal/bridge).
func (c *testClient) request(msgType string, payload interface{}) wire.Envelope {
	c.t.Helper()
	require.NoError(c.t, c.enc.Encode(msgType, payload))
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		env, err := c.dec.Decode()
		require.NoError(c.t, err)
		switch env.Type {
		case wire.TSessionsChanged, wire.TOutput, wire.TSequenced:
			continue
		default:
			return env
		}
	}
}

func (c *testClient) connect(clientID string) wire.Envelope {
	return c.request(wire.TConnect, wire.ConnectMsg{
		ClientID:        clientID,
		ProtocolVersion: wire.Protocol,
		ClientType:      wire.ClientTUI,
	})
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestConnectHandshake(t *testing.T) {
	env := newTestEnv(t)
	env.startDaemon()
	c := env.dial()

	reply := c.connect("c1")
	assert.Equal(t, wire.TConnected, reply.Type)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.startDaemon()
	c := env.dial()
	c.connect("c1")

	created := c.request(wire.TCreateSessionWithOptions, wire.CreateSessionWithOptionsMsg{
		Name:    "work",
		Command: "/bin/sh",
	})
	require.Equal(t, wire.TSessionCreated, created.Type)
	var createdMsg wire.SessionCreatedMsg
	require.NoError(t, created.Decode(&createdMsg))
	sessionID := createdMsg.Session.ID
	require.NotEmpty(t, sessionID)

	attached := c.request(wire.TAttachSession, wire.AttachSessionMsg{SessionID: sessionID})
	require.Equal(t, wire.TAttached, attached.Type)
	var attachedMsg wire.AttachedMsg
	require.NoError(t, attached.Decode(&attachedMsg))
	require.Len(t, attachedMsg.Panes, 1)

	list := c.request(wire.TListSessions, wire.ListSessionsMsg{})
	require.Equal(t, wire.TSessionList, list.Type)
	var listMsg wire.SessionListMsg
	require.NoError(t, list.Decode(&listMsg))
	assert.Len(t, listMsg.Sessions, 1)

	destroyed := c.request(wire.TDestroySession, wire.DestroySessionMsg{SessionID: sessionID})
	assert.Equal(t, wire.TSessionDestroyed, destroyed.Type)

	list = c.request(wire.TListSessions, wire.ListSessionsMsg{})
	require.NoError(t, list.Decode(&listMsg))
	assert.Empty(t, listMsg.Sessions)
}

func TestInputIsEchoedBack(t *testing.T) {
	env := newTestEnv(t)
	env.startDaemon()
	c := env.dial()
	c.connect("c1")

	created := c.request(wire.TCreateSessionWithOptions, wire.CreateSessionWithOptionsMsg{
		Name:    "echo-test",
		Command: "/bin/cat",
	})
	var createdMsg wire.SessionCreatedMsg
	require.NoError(t, created.Decode(&createdMsg))

	attached := c.request(wire.TAttachSession, wire.AttachSessionMsg{SessionID: createdMsg.Session.ID})
	var attachedMsg wire.AttachedMsg
	require.NoError(t, attached.Decode(&attachedMsg))
	paneID := attachedMsg.Panes[0].ID

	require.NoError(t, c.enc.Encode(wire.TInput, wire.InputMsg{PaneID: paneID, Data: []byte("hello\n")}))

	// Collect live output until the echoed input shows up.
	var got []byte
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for !bytes.Contains(got, []byte("hello")) {
		env, err := c.dec.Decode()
		require.NoError(t, err)
		if env.Type != wire.TSequenced {
			continue
		}
		var seqd wire.SequencedMsg
		require.NoError(t, env.Decode(&seqd))
		if seqd.InnerType != wire.TOutput {
			continue
		}
		var out wire.OutputMsg
		require.NoError(t, wire.Envelope{Payload: seqd.InnerPayload}.Decode(&out))
		got = append(got, out.Data...)
	}
}

func TestMultipleSessionsListedTogether(t *testing.T) {
	env := newTestEnv(t)
	env.startDaemon()
	c := env.dial()
	c.connect("c1")

	first := c.request(wire.TCreateSessionWithOptions, wire.CreateSessionWithOptionsMsg{Name: "alpha", Command: "/bin/sh"})
	second := c.request(wire.TCreateSessionWithOptions, wire.CreateSessionWithOptionsMsg{Name: "beta", Command: "/bin/sh"})
	require.Equal(t, wire.TSessionCreated, first.Type)
	require.Equal(t, wire.TSessionCreated, second.Type)

	list := c.request(wire.TListSessions, wire.ListSessionsMsg{})
	var listMsg wire.SessionListMsg
	require.NoError(t, list.Decode(&listMsg))
	names := make([]string, 0, len(listMsg.Sessions))
	for _, s := range listMsg.Sessions {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
}
