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

package chatapi

// ToolCall is a finalized tool invocation accumulated by a ChatEngine during
// streaming or returned in full by the non-streaming path.
type ToolCall struct {
	ID   string
	Name string
	// Input is the parsed JSON input object. If the accumulated input string
	// failed to parse as JSON, Input is nil and RawInput carries the raw
	// text.
	Input    map[string]any
	RawInput string
}

// EventType discriminates the uniform SSE event types emitted over
// /provider/chat.
type EventType string

const (
	EventContentDelta EventType = "content_block_delta"
	EventToolUse      EventType = "tool_use"
	EventError        EventType = "error"
)

// StreamEvent is one SSE event emitted by a ChatEngine's streaming path.
type StreamEvent struct {
	Type EventType

	// Text is set on EventContentDelta.
	Text string

	// Tool is set on EventToolUse.
	Tool *ToolCall

	// Err is set on EventError.
	Err error
}

// ChatResult is the non-streaming response shape.
type ChatResult struct {
	Content   string
	ToolCalls []ToolCall
}
