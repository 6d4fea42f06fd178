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

// Package compress reduces message history on a context-overflow signal from
// a ChatEngine, preserving the first and last N turns.
package compress

import (
	"fmt"

	"github.com/stratumgate/gateway/pkg/chatapi"
)

// MaxLevel is the highest compressionLevel ContextCompressor will accept;
// beyond this the caller must surface a terminal context-exhausted error.
const MaxLevel = 3

// keepRecent and maxContentChars derive the trim policy from the
// compression level: higher levels keep fewer recent messages and allow
// shorter contents.
func keepRecent(level int) int {
	v := 6 - 2*level
	if v < 2 {
		return 2
	}
	return v
}

func maxContentChars(level int) int {
	v := 2000 - 500*level
	if v < 500 {
		return 500
	}
	return v
}

// Compress reduces messages at the given compressionLevel (1..3). Message
// index 0 is always kept unchanged (it carries the system turn or first
// user turn folded by RequestAssembler).
func Compress(messages []chatapi.Message, level int) []chatapi.Message {
	if len(messages) == 0 {
		return messages
	}
	recent := keepRecent(level)
	maxChars := maxContentChars(level)

	if len(messages) <= recent+1 {
		return truncateFrom(messages, 1, maxChars)
	}

	head := messages[0]
	tail := messages[len(messages)-recent:]
	dropped := messages[1 : len(messages)-recent]

	placeholder := buildPlaceholder(dropped, level)

	out := make([]chatapi.Message, 0, 1+len(placeholder)+len(tail))
	out = append(out, head)
	out = append(out, placeholder...)
	out = append(out, tail...)

	return truncateFrom(out, 1+len(placeholder), maxChars)
}

// buildPlaceholder synthesizes the two-message middle-block placeholder:
// at level 1 a list-style digest of the first three dropped messages,
// otherwise a fixed elision notice, followed by an assistant acknowledgment.
func buildPlaceholder(dropped []chatapi.Message, level int) []chatapi.Message {
	var digest string
	if level <= 1 {
		digest = digestFirstThree(dropped)
	} else {
		digest = fmt.Sprintf("[%d earlier messages elided]", len(dropped))
	}

	return []chatapi.Message{
		{Role: chatapi.RoleUser, Content: chatapi.NewTextContent(digest)},
		{Role: chatapi.RoleAssistant, Content: chatapi.NewTextContent("Understood, continuing from the summarized context.")},
	}
}

func digestFirstThree(dropped []chatapi.Message) string {
	n := len(dropped)
	if n > 3 {
		n = 3
	}
	out := fmt.Sprintf("[digest of first %d of %d elided messages]", n, len(dropped))
	for i := 0; i < n; i++ {
		text := dropped[i].Content.PlainText()
		if len(text) > 120 {
			text = text[:120]
		}
		out += fmt.Sprintf("\n- %s: %s", dropped[i].Role, text)
	}
	return out
}

// truncateFrom truncates messages[from:] in place on a copy, appending the
// "[truncated, original length: N]" suffix. Messages before `from` (the
// preserved head and synthetic placeholder) are left untouched.
func truncateFrom(messages []chatapi.Message, from int, maxChars int) []chatapi.Message {
	out := make([]chatapi.Message, len(messages))
	copy(out, messages)

	for i := from; i < len(out); i++ {
		out[i] = truncateMessage(out[i], maxChars)
	}
	return out
}

func truncateMessage(m chatapi.Message, maxChars int) chatapi.Message {
	if m.Content.IsList {
		m.Content.Parts = truncateParts(m.Content.Parts, maxChars)
		return m
	}
	if len(m.Content.Text) <= maxChars {
		return m
	}
	original := len(m.Content.Text)
	m.Content.Text = fmt.Sprintf("%s [truncated, original length: %d]", m.Content.Text[:maxChars], original)
	return m
}

func truncateParts(parts []chatapi.ContentPart, maxChars int) []chatapi.ContentPart {
	out := make([]chatapi.ContentPart, len(parts))
	copy(out, parts)
	for i, p := range out {
		if p.Type != chatapi.PartText || len(p.Text) <= maxChars {
			continue
		}
		original := len(p.Text)
		out[i].Text = fmt.Sprintf("%s [truncated, original length: %d]", p.Text[:maxChars], original)
	}
	return out
}
