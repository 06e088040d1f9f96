package ipcserver

import (
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmuxd/internal/registry"
	"github.com/ianremillard/ccmuxd/internal/wire"
)

type fakeRouter struct {
	result       RouterResult
	disconnected []string
}

func (f *fakeRouter) Handle(clientID string, env wire.Envelope) RouterResult {
	return f.result
}

func (f *fakeRouter) OnDisconnect(clientID string) {
	f.disconnected = append(f.disconnected, clientID)
}

func newTestServer(t *testing.T, router Router) (*Server, string) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(log)
	srv := New(log, reg, router)

	sock := filepath.Join(t.TempDir(), "test.sock")
	require.NoError(t, srv.Listen(sock))
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return srv, sock
}

func TestServeRespondsToRequest(t *testing.T) {
	router := &fakeRouter{result: RouterResult{
		Kind:    Response,
		Type:    wire.TPong,
		Payload: wire.PongMsg{},
	}}
	_, sock := newTestServer(t, router)

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()

	enc := wire.NewEncoder(conn)
	require.NoError(t, enc.Encode(wire.TPing, wire.PingMsg{}))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	dec := wire.NewDecoder(conn)
	env, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, wire.TPong, env.Type)
}

func TestServeBroadcastsToSessionExceptSender(t *testing.T) {
	router := &fakeRouter{result: RouterResult{
		Kind:               ResponseWithBroadcast,
		Type:               wire.TPong,
		Payload:            wire.PongMsg{},
		BroadcastSessionID: "s1",
		BroadcastType:      wire.TSessionsChanged,
		BroadcastPayload:   wire.SessionsChangedMsg{},
	}}
	srv, sock := newTestServer(t, router)

	sender, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer sender.Close()

	listener, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer listener.Close()

	// Let both connections register with the pump before attaching the
	// listener to the session the broadcast will target.
	require.Eventually(t, func() bool {
		return len(srv.reg.AllClientIDs()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	// Attach both connections to s1: the sender must get only its direct
	// response, the listener only the broadcast.
	for _, id := range srv.reg.AllClientIDs() {
		srv.reg.Attach(id, "s1")
	}

	enc := wire.NewEncoder(sender)
	require.NoError(t, enc.Encode(wire.TPing, wire.PingMsg{}))

	sender.SetReadDeadline(time.Now().Add(3 * time.Second))
	dec := wire.NewDecoder(sender)
	env, err := dec.Decode() // the direct response to the sender
	require.NoError(t, err)
	assert.Equal(t, wire.TPong, env.Type)

	listener.SetReadDeadline(time.Now().Add(3 * time.Second))
	got, err := wire.NewDecoder(listener).Decode()
	require.NoError(t, err)
	assert.Equal(t, wire.TSessionsChanged, got.Type)

	sender.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, err = dec.Decode()
	assert.Error(t, err, "the sender must not receive its own broadcast")
}

func TestIsClosedErr(t *testing.T) {
	assert.True(t, isClosedErr(net.ErrClosed))
	assert.False(t, isClosedErr(io.EOF))
}
