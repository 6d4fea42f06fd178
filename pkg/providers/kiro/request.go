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

// Package kiro implements the Kiro provider: request assembly, the
// JSON-framed event-stream chat engine, and the upstream HTTP transport.
package kiro

import (
	"github.com/google/uuid"

	"github.com/stratumgate/gateway/pkg/assembler"
	"github.com/stratumgate/gateway/pkg/chatapi"
)

// ToolDenylist drops tools the upstream can't be trusted to invoke safely.
var ToolDenylist = []string{"Bash"}

// ToolSpecWire is the on-wire shape of a ToolSpec.
type ToolSpecWire struct {
	ToolSpecification struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		InputSchema struct {
			JSON map[string]any `json:"json"`
		} `json:"inputSchema"`
	} `json:"toolSpecification"`
}

// ToolUseWire is a finalized tool invocation as emitted in history.
type ToolUseWire struct {
	ToolUseID string         `json:"toolUseId"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
}

// ToolResultContentWire is one content entry of a tool result.
type ToolResultContentWire struct {
	Text string `json:"text,omitempty"`
	JSON any    `json:"json,omitempty"`
}

// ToolResultWire is a tool execution outcome fed back to the upstream.
type ToolResultWire struct {
	ToolUseID string                  `json:"toolUseId"`
	Status    string                  `json:"status"`
	Content   []ToolResultContentWire `json:"content"`
}

// UserInputMessageContext carries tool specs/results attached to a user
// turn.
type UserInputMessageContext struct {
	ToolResults []ToolResultWire `json:"toolResults,omitempty"`
	Tools       []ToolSpecWire   `json:"tools,omitempty"`
}

// UserInputMessage is the wire shape of a user turn.
type UserInputMessage struct {
	Content                 string                   `json:"content"`
	ModelID                 string                   `json:"modelId,omitempty"`
	Origin                  string                   `json:"origin,omitempty"`
	UserInputMessageContext *UserInputMessageContext `json:"userInputMessageContext,omitempty"`
}

// AssistantResponseMessage is the wire shape of an assistant turn.
type AssistantResponseMessage struct {
	Content  string        `json:"content"`
	ToolUses []ToolUseWire `json:"toolUses,omitempty"`
}

// HistoryEntry carries exactly one of UserInputMessage or
// AssistantResponseMessage, matching a single history slot on the wire.
type HistoryEntry struct {
	UserInputMessage         *UserInputMessage         `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *AssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

// ConversationState is the body of ProviderRequest-K.
type ConversationState struct {
	ConversationID  string       `json:"conversationId"`
	ChatTriggerType string       `json:"chatTriggerType"`
	History         []HistoryEntry `json:"history"`
	CurrentMessage  HistoryEntry `json:"currentMessage"`
}

// Request is the full JSON body posted to Upstream-K.
type Request struct {
	ConversationState ConversationState `json:"conversationState"`
	ProfileArn        string            `json:"profileArn,omitempty"`
}

// BuildRequest assembles chatReq into the upstream request shape: a freshly
// minted conversation id, alternating history, and a single current message,
// with tool specs filtered by ToolDenylist and tool-result ids deduplicated
// by the assembler.
func BuildRequest(chatReq chatapi.ChatRequest, modelID, profileArn string) Request {
	assembled := assembler.Assemble(chatReq, ToolDenylist)

	history := make([]HistoryEntry, 0, len(assembled.History)*2)
	for _, turn := range assembled.History {
		history = append(history,
			HistoryEntry{UserInputMessage: toUserInputMessage(turn.User, modelID, nil)},
			HistoryEntry{AssistantResponseMessage: toAssistantResponseMessage(turn.Assistant)},
		)
	}

	current := HistoryEntry{UserInputMessage: toUserInputMessage(assembled.CurrentMessage, modelID, assembled.Tools)}

	return Request{
		ConversationState: ConversationState{
			ConversationID:  uuid.NewString(),
			ChatTriggerType: "MANUAL",
			History:         history,
			CurrentMessage:  current,
		},
		ProfileArn: profileArn,
	}
}

func toUserInputMessage(msg chatapi.Message, modelID string, tools []chatapi.ToolSpec) *UserInputMessage {
	out := &UserInputMessage{
		Content: msg.Content.PlainText(),
		ModelID: modelID,
		Origin:  "AI_EDITOR",
	}

	var results []ToolResultWire
	if msg.Content.IsList {
		for _, part := range msg.Content.Parts {
			if part.Type == chatapi.PartToolResult {
				results = append(results, toToolResultWire(part))
			}
		}
	}

	if len(results) > 0 || len(tools) > 0 {
		ctx := &UserInputMessageContext{ToolResults: results}
		for _, tool := range tools {
			ctx.Tools = append(ctx.Tools, toToolSpecWire(tool))
		}
		out.UserInputMessageContext = ctx
	}

	// The upstream rejects empty content fields.
	if out.Content == "" {
		if len(results) > 0 {
			out.Content = "Tool results provided."
		} else {
			out.Content = "Continue"
		}
	}

	return out
}

func toAssistantResponseMessage(msg chatapi.Message) *AssistantResponseMessage {
	out := &AssistantResponseMessage{Content: msg.Content.PlainText()}
	if msg.Content.IsList {
		for _, part := range msg.Content.Parts {
			if part.Type == chatapi.PartToolUse {
				out.ToolUses = append(out.ToolUses, ToolUseWire{
					ToolUseID: part.ToolUseID,
					Name:      part.ToolName,
					Input:     part.ToolInput,
				})
			}
		}
	}
	return out
}

func toToolResultWire(part chatapi.ContentPart) ToolResultWire {
	status := part.ToolResultStatus
	if status == "" {
		status = "success"
	}
	content := ToolResultContentWire{}
	switch v := part.ToolResultPayload.(type) {
	case string:
		content.Text = v
	default:
		content.JSON = v
	}
	return ToolResultWire{
		ToolUseID: part.ToolResultID,
		Status:    status,
		Content:   []ToolResultContentWire{content},
	}
}

func toToolSpecWire(tool chatapi.ToolSpec) ToolSpecWire {
	wire := ToolSpecWire{}
	wire.ToolSpecification.Name = tool.Name
	wire.ToolSpecification.Description = tool.Description
	wire.ToolSpecification.InputSchema.JSON = tool.InputSchema
	return wire
}
