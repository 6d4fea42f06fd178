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

// Package chatapi defines the uniform chat request/response shapes that sit
// in front of all provider engines. Message content is modeled as a tagged
// variant rather than branching on runtime shape.
package chatapi

// Role identifies the sender of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType tags the kind of ContentPart carried in a Message.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartToolUse    PartType = "tool_use"
	PartToolResult PartType = "tool_result"
)

// ContentPart is one element of a Message's content when the content is a
// list rather than a plain string. Exactly one of the type-specific fields is
// meaningful, selected by Type; unrecognized Type values are dropped by
// callers with a logged warning rather than rejected (forward-compatible).
type ContentPart struct {
	Type PartType

	// Text is set when Type == PartText.
	Text string

	// MediaType and ImageBytes are set when Type == PartImage.
	MediaType  string
	ImageBytes []byte

	// ToolUseID, ToolName, and ToolInput are set when Type == PartToolUse.
	ToolUseID string
	ToolName  string
	ToolInput map[string]any

	// ToolResultID, ToolResultStatus, and ToolResultPayload are set when
	// Type == PartToolResult.
	ToolResultID      string
	ToolResultStatus  string
	ToolResultPayload any
}

// Content holds a Message's content as either a plain string or an ordered
// list of ContentPart. Exactly one of Text/Parts is populated; IsList reports
// which.
type Content struct {
	Text   string
	Parts  []ContentPart
	IsList bool
}

// NewTextContent wraps a plain string as Content.
func NewTextContent(text string) Content {
	return Content{Text: text}
}

// NewListContent wraps an ordered list of parts as Content.
func NewListContent(parts []ContentPart) Content {
	return Content{Parts: parts, IsList: true}
}

// PlainText returns the message's text if it is string content, or the
// concatenation of text parts if it is list content (images and tool parts
// contribute nothing).
func (c Content) PlainText() string {
	if !c.IsList {
		return c.Text
	}
	out := ""
	for _, p := range c.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// IsEmpty reports whether the content carries no visible text and no parts.
func (c Content) IsEmpty() bool {
	if c.IsList {
		return len(c.Parts) == 0
	}
	return c.Text == ""
}

// Message is one turn in a ChatRequest's message list.
type Message struct {
	Role    Role
	Content Content
}

// ToolSpec describes a tool the model may call.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ChatRequest is the uniform external request shape accepted by
// POST /provider/chat.
type ChatRequest struct {
	Messages  []Message
	System    *Content
	Tools     []ToolSpec
	Model     string
	MaxTokens int
	Stream    bool
}
