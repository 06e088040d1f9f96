// Package poller drains each pane's PTY output, applies a flush policy, and
// fans the result out to attached clients, sideband command handling, and
// mirror panes (spec §4.2).
package poller

import (
	"io"
	"log/slog"
	"time"

	"github.com/ianremillard/ccmuxd/internal/ptymgr"
	"github.com/ianremillard/ccmuxd/internal/sideband"
)

// flushSize and flushInterval are the size/timeout triggers generalized
// from instance.go's ptyReader, which forwards every Read() immediately;
// this daemon batches instead so many small PTY reads don't become many
// small broadcast messages (spec §4.2: "flush on newline, 16KiB, or a short
// timeout, whichever comes first").
const (
	flushSize     = 16 * 1024
	flushInterval = 50 * time.Millisecond
	readChunk     = 4096
)

// Sink receives a poller's output. The router wires one Sink per pane that
// broadcasts to the owning session and fans out to any mirrors.
type Sink interface {
	// HandleOutput is called with a flushed chunk of visible PTY bytes.
	HandleOutput(paneID string, data []byte)
	// HandleSideband is called once per extracted out-of-band command.
	HandleSideband(paneID string, cmd sideband.Command)
	// HandleExit is called once the PTY reader loop ends (process exited).
	HandleExit(paneID string)
}

// Poller drains one pane's PTY output on a dedicated goroutine, the same
// "one blocking reader per instance" shape as instance.go's ptyReader, but
// generalized to a buffer-then-flush policy instead of forward-every-Read.
type Poller struct {
	paneID string
	reader io.Reader
	mgr    *ptymgr.Manager
	sink   Sink
	log    *slog.Logger

	cursor cursorTracker
	side   sideband.Scanner
}

func New(paneID string, reader io.Reader, mgr *ptymgr.Manager, sink Sink, log *slog.Logger) *Poller {
	return &Poller{
		paneID: paneID,
		reader: reader,
		mgr:    mgr,
		sink:   sink,
		log:    log,
	}
}

// Run drains the PTY until it closes. Call it in its own goroutine; it
// returns when the underlying process has exited and all remaining output
// has been flushed.
func (p *Poller) Run() {
	chunks := make(chan []byte, 8)
	readErr := make(chan error, 1)

	go func() {
		buf := make([]byte, readChunk)
		for {
			n, err := p.reader.Read(buf)
			if n > 0 {
				c := make([]byte, n)
				copy(c, buf[:n])
				chunks <- c
			}
			if err != nil {
				readErr <- err
				close(chunks)
				return
			}
		}
	}()

	var pending []byte
	timer := time.NewTimer(flushInterval)
	if !timer.Stop() {
		<-timer.C
	}
	timerRunning := false

	flush := func() {
		if len(pending) == 0 {
			return
		}
		p.process(pending)
		pending = nil
	}

	for {
		select {
		case c, ok := <-chunks:
			if !ok {
				flush()
				p.sink.HandleExit(p.paneID)
				return
			}
			pending = append(pending, c...)
			if len(pending) >= flushSize || containsNewline(c) {
				if timerRunning {
					if !timer.Stop() {
						<-timer.C
					}
					timerRunning = false
				}
				flush()
			} else if !timerRunning {
				timer.Reset(flushInterval)
				timerRunning = true
			}
		case <-timer.C:
			timerRunning = false
			flush()
		}
	}
}

func containsNewline(b []byte) bool {
	for _, c := range b {
		if c == '\n' {
			return true
		}
	}
	return false
}

// process runs one flushed chunk through DSR reply synthesis and sideband
// extraction before handing the remaining visible bytes to the sink.
func (p *Poller) process(chunk []byte) {
	p.cursor.Observe(chunk)

	if req := extractDSRRequests(chunk); len(req) > 0 {
		reply := p.cursor.ReportPosition()
		if err := p.mgr.Write(p.paneID, reply); err != nil {
			p.log.Warn("dsr reply write failed", "pane_id", p.paneID, "err", err)
		}
	}

	visible, cmds := p.side.Feed(chunk)
	for _, cmd := range cmds {
		p.sink.HandleSideband(p.paneID, cmd)
	}
	if len(visible) > 0 {
		p.sink.HandleOutput(p.paneID, visible)
	}
}
