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

package wire

import (
	"bytes"
	"encoding/base64"
	"io"
	"regexp"
	"unicode/utf8"

	"github.com/r3labs/sse/v2"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/stratumgate/gateway/internal/log"
)

// EventType discriminates one of the three semantic event kinds the decoder
// extracts from an opaque protobuf frame.
type EventType string

const (
	EventAgentText EventType = "agent-text"
	EventToolCall  EventType = "tool-call"
	EventReasoning EventType = "reasoning"
)

// Event is one decoded frame.
type Event struct {
	Type EventType
	// Text carries the agent-visible payload: the output text for
	// EventAgentText/EventReasoning, or the best-effort full command line
	// for EventToolCall (Command is just the classified command name).
	Text    string
	Command string
}

var (
	markerAgentOutput    = []byte("agent_output")
	markerAgentReasoning = []byte("agent_reasoning")

	toolCallTokenPattern = regexp.MustCompile(`call_[A-Za-z0-9]+`)
	uuidPattern          = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	base64ishPattern     = regexp.MustCompile(`^[A-Za-z0-9+/=]{20,}$`)

	noisePrefixes = []string{"agent_", "server_", "USER_", "primary_", "call_", "precmd-"}

	knownCommandPatterns = []string{"ls", "cat", "grep", "find"}
)

// DecodeFrame inspects a single base64-decoded protobuf frame and extracts
// one semantic event by structural signature. Returns nil if the frame
// matches none of the three known signatures; unrecognized frames are
// ignored so schema additions on the server side don't break decoding.
func DecodeFrame(raw []byte) *Event {
	switch {
	case bytes.Contains(raw, markerAgentReasoning):
		for _, text := range extractStrings(raw, 3) {
			if text == "" || text == string(markerAgentReasoning) {
				continue
			}
			return &Event{Type: EventReasoning, Text: text}
		}
		return nil

	case toolCallTokenPattern.Match(raw):
		command := "shell"
		for _, candidate := range knownCommandPatterns {
			if bytes.Contains(raw, []byte(candidate)) {
				command = candidate
				break
			}
		}
		var args string
		for _, text := range extractStrings(raw, 3) {
			if text == "" || toolCallTokenPattern.MatchString(text) {
				continue
			}
			args = text
			break
		}
		return &Event{Type: EventToolCall, Command: command, Text: args}

	case bytes.Contains(raw, markerAgentOutput):
		for _, text := range extractStrings(raw, 3) {
			if isNoise(text) {
				continue
			}
			return &Event{Type: EventAgentText, Text: text}
		}
		return nil

	default:
		return nil
	}
}

// isNoise is the agent-text noise filter: reject empty strings, bare UUIDs,
// known structural prefixes, and anything that looks like an opaque base64
// blob rather than visible text.
func isNoise(s string) bool {
	if s == "" {
		return true
	}
	if uuidPattern.MatchString(s) {
		return true
	}
	for _, prefix := range noisePrefixes {
		if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
			return true
		}
	}
	if base64ishPattern.MatchString(s) {
		return true
	}
	return false
}

// extractStrings walks buf as a sequence of top-level protobuf fields,
// recursing into bytes-typed fields up to maxDepth, and collects every
// valid-UTF8 bytes-typed payload encountered. The upstream schema is
// undocumented, so there is nothing to parse against: this simply surfaces
// every string-shaped leaf and lets the caller's noise filter and marker
// match decide what's meaningful. Malformed input causes the walk to stop
// where it is, returning whatever was found so far.
func extractStrings(buf []byte, maxDepth int) []string {
	var out []string
	off := 0
	for off < len(buf) {
		_, typ, n := protowire.ConsumeTag(buf[off:])
		if n < 0 {
			return out
		}
		off += n

		switch typ {
		case protowire.BytesType:
			v, n2 := protowire.ConsumeBytes(buf[off:])
			if n2 < 0 {
				return out
			}
			off += n2
			// A bytes field that itself parses as a message with string
			// leaves is a submessage container, not text; surfacing the raw
			// container would leak length-prefix bytes into the output.
			var nested []string
			if maxDepth > 0 {
				nested = extractStrings(v, maxDepth-1)
			}
			if len(nested) > 0 {
				out = append(out, nested...)
			} else if utf8.Valid(v) && isPrintable(v) {
				out = append(out, string(v))
			}
		case protowire.VarintType:
			_, n2 := protowire.ConsumeVarint(buf[off:])
			if n2 < 0 {
				return out
			}
			off += n2
		case protowire.Fixed32Type:
			_, n2 := protowire.ConsumeFixed32(buf[off:])
			if n2 < 0 {
				return out
			}
			off += n2
		case protowire.Fixed64Type:
			_, n2 := protowire.ConsumeFixed64(buf[off:])
			if n2 < 0 {
				return out
			}
			off += n2
		default:
			return out
		}
	}
	return out
}

func isPrintable(b []byte) bool {
	for _, r := range string(b) {
		if r < 0x20 && r != '\n' && r != '\t' {
			return false
		}
	}
	return true
}

// DecodeSSE reads SSE `event:`/`data:` pairs from body, base64-decodes each
// data line, and runs DecodeFrame over the result, invoking onEvent for
// every recognized event. It returns when body is exhausted or reading
// errors out; the caller owns cancellation and socket release via the
// reader it hands in.
func DecodeSSE(body io.Reader, onEvent func(Event)) error {
	reader := sse.NewEventStreamReader(body, 1<<20)
	for {
		raw, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		data := extractDataLine(raw)
		if len(data) == 0 {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil {
			log.Debug("skipping SSE data line with invalid base64 payload")
			continue
		}
		if ev := DecodeFrame(decoded); ev != nil {
			onEvent(*ev)
		}
	}
}

// extractDataLine pulls the payload after a "data:" line prefix out of one
// raw SSE event block.
func extractDataLine(block []byte) []byte {
	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if bytes.HasPrefix(line, []byte("data:")) {
			return bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		}
	}
	return nil
}
