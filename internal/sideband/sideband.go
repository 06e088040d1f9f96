// Package sideband extracts out-of-band XML-ish command tags
// (<ccmux:spawn .../>, <ccmux:notify .../>) that an agent prints to its own
// stdout interleaved with ordinary terminal output (spec §4.2). Tags can be
// split across flush boundaries, so the scanner is stateful: partial tags
// are buffered until a later chunk completes them.
package sideband

import (
	"regexp"
	"strings"
)

// Command is one fully-parsed sideband directive.
type Command struct {
	Name  string // e.g. "spawn", "notify"
	Attrs map[string]string
}

var tagPattern = regexp.MustCompile(`<ccmux:(\w+)((?:\s+[\w-]+="[^"]*")*)\s*/>`)
var attrPattern = regexp.MustCompile(`([\w-]+)="([^"]*)"`)

// Scanner strips sideband tags out of a PTY output stream, buffering a
// partial tag across calls so a tag split by a flush boundary is still
// recognized once the rest of it arrives.
type Scanner struct {
	pending []byte
}

// maxPendingBytes bounds how long a dangling "<ccmux:" prefix can linger
// waiting for its closing "/>" before it's given up on and flushed through
// as plain output, so a malformed or truncated tag can't grow unbounded.
const maxPendingBytes = 4096

// Feed processes a chunk of PTY output, returning the bytes that should be
// shown to clients (with any complete sideband tags removed) and the
// commands extracted from it.
func (s *Scanner) Feed(chunk []byte) (visible []byte, commands []Command) {
	data := append(s.pending, chunk...)
	s.pending = nil

	text := string(data)

	// Find the last occurrence of "<ccmux:" that isn't closed yet; if one
	// exists near the end of the buffer, hold it back for the next chunk.
	cut := len(text)
	if idx := strings.LastIndex(text, "<ccmux:"); idx != -1 {
		if !strings.Contains(text[idx:], "/>") {
			cut = idx
		}
	}

	ready := text[:cut]
	held := text[cut:]

	matches := tagPattern.FindAllStringSubmatchIndex(ready, -1)
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		name := ready[m[2]:m[3]]
		attrStr := ready[m[4]:m[5]]
		b.WriteString(ready[last:start])
		last = end

		cmd := Command{Name: name, Attrs: make(map[string]string)}
		for _, am := range attrPattern.FindAllStringSubmatch(attrStr, -1) {
			cmd.Attrs[am[1]] = am[2]
		}
		commands = append(commands, cmd)
	}
	b.WriteString(ready[last:])

	if len(held) > 0 {
		if len(held) > maxPendingBytes {
			// Give up on ever completing this tag; emit it as plain text.
			b.WriteString(held)
		} else {
			s.pending = []byte(held)
		}
	}

	return []byte(b.String()), commands
}
