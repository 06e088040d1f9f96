// Package wire defines the IPC message types and framing shared between the
// ccmuxd daemon and its two client-facing adapters (the TUI's stream socket
// protocol and the agent bridge's internal daemon connection).
//
// Every message on the socket is a length-prefixed binary frame: a 4-byte
// big-endian length followed by a CBOR-encoded Envelope. The envelope's Type
// field names one of the fixed message variants in messages.go; its Payload
// carries that variant's fields as raw CBOR so adding a new variant does not
// require touching the framing code, but the fixed set of Type strings is
// still the wire contract (spec §4.4: "adding a variant is a breaking wire
// change").
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// maxFrameBytes bounds a single frame's payload so a corrupt length prefix
// can't make the daemon try to allocate gigabytes.
const maxFrameBytes = 16 << 20 // 16 MiB

// Envelope is the outer shape of every framed message.
type Envelope struct {
	Type    string          `cbor:"type"`
	Payload cbor.RawMessage `cbor:"payload"`
}

// WriteEnvelope encodes v under the given type tag and writes one length-prefixed
// frame to w.
func WriteEnvelope(w io.Writer, msgType string, v interface{}) error {
	payload, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", msgType, err)
	}
	env := Envelope{Type: msgType, Payload: payload}
	data, err := cbor.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope for %s: %w", msgType, err)
	}
	return WriteFrame(w, data)
}

// WriteFrame writes a single length-prefixed frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameBytes {
		return fmt.Errorf("frame too large: %d bytes", len(payload))
	}
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(payload)))
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads a single length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr)
	if n > maxFrameBytes {
		return nil, fmt.Errorf("frame too large: %d bytes", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ReadEnvelope reads one frame from r and decodes its envelope. Use
// Envelope.Decode to unmarshal the payload into a concrete type once the
// caller has switched on Type.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	data, err := ReadFrame(r)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Decode unmarshals the envelope's payload into v.
func (e Envelope) Decode(v interface{}) error {
	return cbor.Unmarshal(e.Payload, v)
}

// Encoder writes envelopes to one connection. Both the client-facing codec
// (server -> client) and the agent bridge's daemon-facing codec (client ->
// server) are instances of the same Encoder/Decoder pair; spec §4.4 calls
// these ClientCodec and ServerCodec but the wire shape is identical in both
// directions, so one implementation serves both.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

func (e *Encoder) Encode(msgType string, v interface{}) error {
	return WriteEnvelope(e.w, msgType, v)
}

// Decoder reads envelopes from one connection.
type Decoder struct {
	r io.Reader
}

func NewDecoder(r io.Reader) *Decoder { return &Decoder{r: r} }

func (d *Decoder) Decode() (Envelope, error) {
	return ReadEnvelope(d.r)
}
