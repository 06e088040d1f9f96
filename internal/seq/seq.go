// Package seq assigns each state-mutating broadcast a monotonically
// increasing commit sequence number and keeps a bounded ring of recent
// events so a reattaching client can resync by replay instead of always
// needing a full snapshot (spec §4.5, §8).
package seq

import (
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/ianremillard/ccmuxd/internal/wire"
)

// Event is one recorded broadcast, stamped with the sequence number it was
// assigned at commit time.
type Event struct {
	Seq     uint64
	Type    string
	Payload interface{}
}

// Ring is a per-session fixed-capacity ring buffer of recent events plus
// the monotonic counter that stamps new ones. Grounded on spec §4.5/§8
// directly; the Rust original's session/manager.rs confirms the
// counter-plus-snapshot-fallback shape (no corpus repo carries a
// ring-buffer library, so this is a plain slice used as a ring — see
// DESIGN.md).
type Ring struct {
	mu       sync.Mutex
	capacity int
	next     uint64
	buf      []Event
	start    int // index of the oldest entry in buf
	count    int // number of valid entries in buf
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Ring{
		capacity: capacity,
		buf:      make([]Event, capacity),
	}
}

// Commit assigns the next sequence number to an event and records it,
// returning the stamped event.
func (r *Ring) Commit(msgType string, payload interface{}) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	ev := Event{Seq: r.next, Type: msgType, Payload: payload}

	if r.count < r.capacity {
		idx := (r.start + r.count) % r.capacity
		r.buf[idx] = ev
		r.count++
	} else {
		r.buf[r.start] = ev
		r.start = (r.start + 1) % r.capacity
	}
	return ev
}

// Current returns the latest committed sequence number without recording
// a new event.
func (r *Ring) Current() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// Since returns every event committed after lastSeq, in order. ok is false
// when lastSeq has already fallen out of the ring (or is from the future),
// meaning the caller must fall back to a full StateSnapshot instead (spec
// §4.5: "if the requested sequence is no longer in the ring, respond with a
// snapshot").
func (r *Ring) Since(lastSeq uint64) (events []Event, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lastSeq > r.next {
		return nil, false
	}
	if r.count == 0 {
		return nil, lastSeq == r.next
	}
	oldestSeq := r.buf[r.start].Seq
	if lastSeq < oldestSeq-1 {
		return nil, false
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%r.capacity]
		if ev.Seq > lastSeq {
			out = append(out, ev)
		}
	}
	return out, true
}

// ToSequenced wraps a committed event as the wire SequencedMsg envelope
// payload, encoding the inner message via CBOR raw bytes so the Envelope
// layer doesn't need to know about every inner type.
func ToSequenced(ev Event) (wire.SequencedMsg, error) {
	inner, err := cbor.Marshal(ev.Payload)
	if err != nil {
		return wire.SequencedMsg{}, err
	}
	return wire.SequencedMsg{
		Seq:          ev.Seq,
		InnerType:    ev.Type,
		InnerPayload: inner,
	}, nil
}
