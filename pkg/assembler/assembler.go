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

// Package assembler normalizes an external chat request into the
// alternating-turn shape every provider engine builds its native request
// from.
package assembler

import (
	"strings"

	"github.com/stratumgate/gateway/pkg/chatapi"
)

// ToolUseGuideline is appended to a non-empty system prompt before it is
// folded into the conversation, whenever the request carries tools.
const ToolUseGuideline = "\n\nWhen a tool is available and relevant, call it rather than guessing at the answer."

// HistoryTurn is one userInput/assistantResponse pair.
type HistoryTurn struct {
	User      chatapi.Message
	Assistant chatapi.Message
}

// Assembled is the provider-agnostic normalized request: strictly
// alternating history followed by a single current (always user) message.
type Assembled struct {
	History        []HistoryTurn
	CurrentMessage chatapi.Message
	Tools          []chatapi.ToolSpec
}

// Assemble normalizes req: folds the system prompt, coalesces adjacent
// same-role messages, extracts the current message, applies fallback
// content, and deduplicates tool results. denylist names tools that must be
// dropped for the target provider.
func Assemble(req chatapi.ChatRequest, denylist []string) Assembled {
	messages := foldSystemPrompt(req.Messages, req.System, len(req.Tools) > 0)
	messages = coalesceAdjacentRoles(messages)

	rest, current := extractCurrent(messages)
	history := pairHistory(rest)

	// Dedup before the fallback pass so a message left holding only a
	// duplicate tool result falls back to "Continue" rather than a stray
	// "Tool results provided." prefix.
	dedupeToolResults(history, &current)
	applyFallbackContent(history, &current)

	return Assembled{
		History:        history,
		CurrentMessage: current,
		Tools:          filterTools(req.Tools, denylist),
	}
}

// foldSystemPrompt folds a non-empty system prompt (plus guideline) into the
// first user message, or synthesizes a standalone user turn carrying it if
// no messages exist yet / the first message isn't user.
func foldSystemPrompt(messages []chatapi.Message, system *chatapi.Content, hasTools bool) []chatapi.Message {
	if system == nil || system.IsEmpty() {
		return messages
	}
	systemText := system.PlainText()
	if hasTools {
		systemText += ToolUseGuideline
	}

	if len(messages) > 0 && messages[0].Role == chatapi.RoleUser {
		out := make([]chatapi.Message, len(messages))
		copy(out, messages)
		out[0] = foldTextInto(out[0], systemText)
		return out
	}

	synthetic := chatapi.Message{Role: chatapi.RoleUser, Content: chatapi.NewTextContent(systemText)}
	out := make([]chatapi.Message, 0, len(messages)+1)
	out = append(out, synthetic)
	out = append(out, messages...)
	return out
}

func foldTextInto(msg chatapi.Message, text string) chatapi.Message {
	if !msg.Content.IsList {
		if msg.Content.Text == "" {
			msg.Content.Text = text
		} else {
			msg.Content.Text = text + "\n" + msg.Content.Text
		}
		return msg
	}
	parts := make([]chatapi.ContentPart, 0, len(msg.Content.Parts)+1)
	parts = append(parts, chatapi.ContentPart{Type: chatapi.PartText, Text: text})
	parts = append(parts, msg.Content.Parts...)
	msg.Content.Parts = parts
	return msg
}

// coalesceAdjacentRoles merges any two consecutive messages of the same
// role. List content is extended; string content is joined with "\n"; mixed
// types break the merge.
func coalesceAdjacentRoles(messages []chatapi.Message) []chatapi.Message {
	if len(messages) == 0 {
		return messages
	}
	out := make([]chatapi.Message, 0, len(messages))
	out = append(out, messages[0])

	for _, m := range messages[1:] {
		last := &out[len(out)-1]
		if last.Role != m.Role {
			out = append(out, m)
			continue
		}
		if last.Content.IsList != m.Content.IsList {
			// Mixed types: cannot merge, keep separate.
			out = append(out, m)
			continue
		}
		if last.Content.IsList {
			last.Content.Parts = append(last.Content.Parts, m.Content.Parts...)
		} else {
			last.Content.Text = joinNonEmpty(last.Content.Text, m.Content.Text)
		}
	}
	return out
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n" + b
}

// extractCurrent makes the final message the current message. If it is an
// assistant message, it is pushed back into the history list and a synthetic
// "Continue" user turn becomes current instead.
func extractCurrent(messages []chatapi.Message) (rest []chatapi.Message, current chatapi.Message) {
	if len(messages) == 0 {
		return nil, chatapi.Message{Role: chatapi.RoleUser, Content: chatapi.NewTextContent("Continue")}
	}
	last := messages[len(messages)-1]
	if last.Role == chatapi.RoleAssistant {
		return messages, chatapi.Message{Role: chatapi.RoleUser, Content: chatapi.NewTextContent("Continue")}
	}
	return messages[:len(messages)-1], last
}

// pairHistory groups the remaining messages into strictly alternating
// userInput/assistantResponse pairs, synthesizing a "Continue" counterpart
// turn whenever alternation would otherwise break.
func pairHistory(rest []chatapi.Message) []HistoryTurn {
	var turns []HistoryTurn
	i := 0
	for i < len(rest) {
		m := rest[i]
		if m.Role != chatapi.RoleUser {
			turns = append(turns, HistoryTurn{
				User:      chatapi.Message{Role: chatapi.RoleUser, Content: chatapi.NewTextContent("Continue")},
				Assistant: m,
			})
			i++
			continue
		}
		if i+1 < len(rest) && rest[i+1].Role == chatapi.RoleAssistant {
			turns = append(turns, HistoryTurn{User: m, Assistant: rest[i+1]})
			i += 2
			continue
		}
		turns = append(turns, HistoryTurn{
			User:      m,
			Assistant: chatapi.Message{Role: chatapi.RoleAssistant, Content: chatapi.NewTextContent("Continue")},
		})
		i++
	}
	return turns
}

// applyFallbackContent substitutes a fallback string into user messages
// with no text after parsing. History messages keep their tool-result parts
// untouched; the provider request builders supply wire-level fallback
// content for those. Only the current message gets a text part injected,
// since it is what the upstream reads as the live query.
func applyFallbackContent(history []HistoryTurn, current *chatapi.Message) {
	for i := range history {
		u := &history[i].User
		if u.Content.IsEmpty() && !hasToolResult(u.Content) {
			u.Content = chatapi.NewTextContent("Continue")
		}
	}
	fallbackUser(current)
}

func fallbackUser(m *chatapi.Message) {
	if m.Role != chatapi.RoleUser {
		return
	}
	if m.Content.PlainText() != "" {
		return
	}
	if hasToolResult(m.Content) {
		parts := make([]chatapi.ContentPart, 0, len(m.Content.Parts)+1)
		parts = append(parts, chatapi.ContentPart{Type: chatapi.PartText, Text: "Tool results provided."})
		parts = append(parts, m.Content.Parts...)
		m.Content = chatapi.NewListContent(parts)
		return
	}
	if m.Content.IsEmpty() {
		m.Content = chatapi.NewTextContent("Continue")
	}
}

func hasToolResult(c chatapi.Content) bool {
	if !c.IsList {
		return false
	}
	for _, p := range c.Parts {
		if p.Type == chatapi.PartToolResult {
			return true
		}
	}
	return false
}

// dedupeToolResults keeps only the first occurrence of each tool_use_id
// among tool_result parts within the outgoing request.
func dedupeToolResults(history []HistoryTurn, current *chatapi.Message) {
	seen := make(map[string]bool)
	for i := range history {
		dedupeMessage(&history[i].User, seen)
		dedupeMessage(&history[i].Assistant, seen)
	}
	dedupeMessage(current, seen)
}

func dedupeMessage(m *chatapi.Message, seen map[string]bool) {
	if !m.Content.IsList {
		return
	}
	out := make([]chatapi.ContentPart, 0, len(m.Content.Parts))
	for _, p := range m.Content.Parts {
		if p.Type == chatapi.PartToolResult {
			if seen[p.ToolResultID] {
				continue
			}
			seen[p.ToolResultID] = true
		}
		out = append(out, p)
	}
	m.Content.Parts = out
}

// filterTools drops tools on the provider-specific denylist.
func filterTools(tools []chatapi.ToolSpec, denylist []string) []chatapi.ToolSpec {
	if len(denylist) == 0 {
		return tools
	}
	deny := make(map[string]bool, len(denylist))
	for _, name := range denylist {
		deny[strings.ToLower(name)] = true
	}
	out := make([]chatapi.ToolSpec, 0, len(tools))
	for _, t := range tools {
		if deny[strings.ToLower(t.Name)] {
			continue
		}
		out = append(out, t)
	}
	return out
}
