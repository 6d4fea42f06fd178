// Copyright 2026 The StratumGate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package stream incrementally extracts typed events from the ever-growing
// byte buffer a chunked HTTP response produces, without a full JSON decode
// pass per scan attempt.
package stream

import (
	"bytes"

	"github.com/tidwall/gjson"

	"github.com/stratumgate/gateway/internal/log"
)

// EventType discriminates a parsed StreamParser-K event.
type EventType string

const (
	EventContent      EventType = "content"
	EventToolUse      EventType = "toolUse"
	EventToolUseInput EventType = "toolUseInput"
	EventToolUseStop  EventType = "toolUseStop"
)

// Event is one parsed frame from the upstream byte stream.
type Event struct {
	Type EventType

	Content   string
	Name      string
	ToolUseID string
	Input     string
	Stop      bool
}

// prefixes are the five known JSON-object opening markers the parser scans
// for. Order doesn't express priority: the earliest byte-offset match in the
// buffer always wins.
var prefixes = [][]byte{
	[]byte(`{"content":`),
	[]byte(`{"name":`),
	[]byte(`{"followupPrompt":`),
	[]byte(`{"input":`),
	[]byte(`{"stop":`),
}

// maxPrefixLen bounds how much garbage-prefix buffer must be retained across
// Feed calls in case a marker is split across a chunk boundary.
var maxPrefixLen = func() int {
	max := 0
	for _, p := range prefixes {
		if len(p) > max {
			max = len(p)
		}
	}
	return max
}()

// Parser holds the restartable scan state across chunk boundaries.
type Parser struct {
	buf []byte
}

// New constructs an empty Parser.
func New() *Parser {
	return &Parser{}
}

// Feed appends chunk to the internal buffer and returns every event that
// could be fully parsed out of it, leaving any incomplete tail buffered for
// the next call.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)

	var events []Event
	for {
		idx := earliestPrefixIndex(p.buf)
		if idx == -1 {
			if len(p.buf) > maxPrefixLen {
				p.buf = p.buf[len(p.buf)-(maxPrefixLen-1):]
			}
			break
		}

		end, ok := findMatchingClose(p.buf, idx)
		if !ok {
			p.buf = p.buf[idx:]
			break
		}

		raw := p.buf[idx:end]
		if ev := parseAndRoute(raw); ev != nil {
			events = append(events, *ev)
		}
		p.buf = p.buf[end:]
	}
	return events
}

func earliestPrefixIndex(buf []byte) int {
	earliest := -1
	for _, prefix := range prefixes {
		if idx := bytes.Index(buf, prefix); idx != -1 && (earliest == -1 || idx < earliest) {
			earliest = idx
		}
	}
	return earliest
}

// findMatchingClose walks buf from start (the opening '{') tracking
// (depth, in-string, escape-pending) to find the index just past the
// matching top-level '}'. Returns ok=false if the object isn't yet closed.
func findMatchingClose(buf []byte, start int) (int, bool) {
	depth := 0
	inString := false
	escape := false

	for i := start; i < len(buf); i++ {
		c := buf[i]
		if escape {
			escape = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// parseAndRoute routes a fully-extracted JSON object by its discriminant
// fields. Malformed JSON is discarded, returning nil, and scanning resumes
// past it.
func parseAndRoute(raw []byte) *Event {
	text := string(raw)
	if !gjson.Valid(text) {
		log.Debug("discarding malformed frame from upstream stream")
		return nil
	}
	parsed := gjson.Parse(text)

	name := parsed.Get("name")
	toolUseID := parsed.Get("toolUseId")
	input := parsed.Get("input")
	stop := parsed.Get("stop")
	content := parsed.Get("content")
	followup := parsed.Get("followupPrompt")

	switch {
	case name.Exists() && toolUseID.Exists():
		return &Event{
			Type:      EventToolUse,
			Name:      name.String(),
			ToolUseID: toolUseID.String(),
			Input:     input.String(),
			Stop:      stop.Bool(),
		}
	case input.Exists() && !name.Exists():
		return &Event{Type: EventToolUseInput, Input: input.String()}
	case stop.Exists():
		return &Event{Type: EventToolUseStop, Stop: stop.Bool()}
	case content.Exists() && !followup.Exists():
		return &Event{Type: EventContent, Content: content.String()}
	default:
		return nil
	}
}
