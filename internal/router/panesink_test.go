package router

import (
	"io"
	"log/slog"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ianremillard/ccmuxd/internal/config"
	"github.com/ianremillard/ccmuxd/internal/model"
	"github.com/ianremillard/ccmuxd/internal/ptymgr"
	"github.com/ianremillard/ccmuxd/internal/registry"
	"github.com/ianremillard/ccmuxd/internal/wire"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := model.NewManager()
	pty := ptymgr.New(log)
	reg := registry.New(log)
	return New(log, config.Default(), mgr, pty, reg)
}

// TestMirrorSameSessionRebroadcast exercises Open Question decision #2
// (see DESIGN.md): a mirror pane in the same session as its source still
// gets its own Output broadcast, stamped under the mirror's own pane id.
func TestMirrorSameSessionRebroadcast(t *testing.T) {
	r := newTestRouter(t)
	sess := r.mgr.CreateSession("s", 0)
	win := r.mgr.CreateWindow(sess.ID, "main")
	source := r.mgr.CreatePane(win.ID, 80, 24)
	mirror := r.mgr.CreateMirror(source.ID, win.ID, 80, 24)

	client := r.reg.Register("c1", wire.ClientTUI)
	r.reg.Attach("c1", sess.ID)

	sink := &paneSink{r: r, sessionID: sess.ID}
	sink.HandleOutput(source.ID, []byte("hello"))

	var paneIDs []string
	for i := 0; i < 2; i++ {
		env := <-client.Outbox()
		require.Equal(t, wire.TSequenced, env.Type)
		var seqd wire.SequencedMsg
		require.NoError(t, env.Decode(&seqd))
		require.Equal(t, wire.TOutput, seqd.InnerType)
		var out wire.OutputMsg
		require.NoError(t, cbor.Unmarshal(seqd.InnerPayload, &out))
		paneIDs = append(paneIDs, out.PaneID)
	}

	assert.ElementsMatch(t, []string{source.ID, mirror.ID}, paneIDs)
}

// TestMirrorCrossSessionBroadcastsIntoMirrorSession covers spec §4.2 step 4 /
// invariant 5: a mirror living in a different session than its source must
// have its rewritten Output{mirror_id} published into the MIRROR's session,
// not the source's. A client attached only to the source session should see
// just its own pane's output; a client attached only to the mirror's session
// should see the mirror's rewritten output.
func TestMirrorCrossSessionBroadcastsIntoMirrorSession(t *testing.T) {
	r := newTestRouter(t)
	sourceSess := r.mgr.CreateSession("source", 0)
	sourceWin := r.mgr.CreateWindow(sourceSess.ID, "main")
	source := r.mgr.CreatePane(sourceWin.ID, 80, 24)

	mirrorSess := r.mgr.CreateSession("mirror", 0)
	mirrorWin := r.mgr.CreateWindow(mirrorSess.ID, "main")
	mirror := r.mgr.CreateMirror(source.ID, mirrorWin.ID, 80, 24)

	sourceClient := r.reg.Register("c1", wire.ClientTUI)
	r.reg.Attach("c1", sourceSess.ID)
	mirrorClient := r.reg.Register("c2", wire.ClientTUI)
	r.reg.Attach("c2", mirrorSess.ID)

	sink := &paneSink{r: r, sessionID: sourceSess.ID}
	sink.HandleOutput(source.ID, []byte("hello"))

	sourceEnv := <-sourceClient.Outbox()
	var sourceSeqd wire.SequencedMsg
	require.NoError(t, sourceEnv.Decode(&sourceSeqd))
	var sourceOut wire.OutputMsg
	require.NoError(t, cbor.Unmarshal(sourceSeqd.InnerPayload, &sourceOut))
	assert.Equal(t, source.ID, sourceOut.PaneID)

	mirrorEnv := <-mirrorClient.Outbox()
	var mirrorSeqd wire.SequencedMsg
	require.NoError(t, mirrorEnv.Decode(&mirrorSeqd))
	var mirrorOut wire.OutputMsg
	require.NoError(t, cbor.Unmarshal(mirrorSeqd.InnerPayload, &mirrorOut))
	assert.Equal(t, mirror.ID, mirrorOut.PaneID)

	select {
	case env := <-sourceClient.Outbox():
		t.Fatalf("source client received unexpected extra envelope: %+v", env)
	default:
	}
	select {
	case env := <-mirrorClient.Outbox():
		t.Fatalf("mirror client received unexpected extra envelope: %+v", env)
	default:
	}
}
