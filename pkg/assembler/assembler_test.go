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

package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumgate/gateway/pkg/chatapi"
)

func textMsg(role chatapi.Role, text string) chatapi.Message {
	return chatapi.Message{Role: role, Content: chatapi.NewTextContent(text)}
}

func TestAssemble_CoalescesAdjacentRoles(t *testing.T) {
	req := chatapi.ChatRequest{
		Messages: []chatapi.Message{
			textMsg(chatapi.RoleUser, "part one"),
			textMsg(chatapi.RoleUser, "part two"),
			textMsg(chatapi.RoleAssistant, "ack"),
			textMsg(chatapi.RoleUser, "final question"),
		},
	}

	got := Assemble(req, nil)

	require.Len(t, got.History, 1)
	assert.Equal(t, "part one\npart two", got.History[0].User.Content.Text)
	assert.Equal(t, "ack", got.History[0].Assistant.Content.Text)
	assert.Equal(t, "final question", got.CurrentMessage.Content.Text)
}

func TestAssemble_ToolResultDedup(t *testing.T) {
	dupPart := chatapi.ContentPart{Type: chatapi.PartToolResult, ToolResultID: "tool-1", ToolResultPayload: "first"}
	dupPartAgain := chatapi.ContentPart{Type: chatapi.PartToolResult, ToolResultID: "tool-1", ToolResultPayload: "stale-retry"}

	req := chatapi.ChatRequest{
		Messages: []chatapi.Message{
			{Role: chatapi.RoleUser, Content: chatapi.NewListContent([]chatapi.ContentPart{dupPart})},
			textMsg(chatapi.RoleAssistant, "working on it"),
			{Role: chatapi.RoleUser, Content: chatapi.NewListContent([]chatapi.ContentPart{dupPartAgain})},
		},
	}

	got := Assemble(req, nil)

	require.Len(t, got.History, 1)
	require.Len(t, got.History[0].User.Content.Parts, 1)
	assert.Equal(t, "first", got.History[0].User.Content.Parts[0].ToolResultPayload)
	// The duplicate landed in CurrentMessage and must be dropped entirely.
	assert.Empty(t, got.CurrentMessage.Content.Parts)
}

func TestAssemble_TrailingAssistantSynthesizesContinue(t *testing.T) {
	req := chatapi.ChatRequest{
		Messages: []chatapi.Message{
			textMsg(chatapi.RoleUser, "hello"),
			textMsg(chatapi.RoleAssistant, "hi there"),
		},
	}

	got := Assemble(req, nil)

	require.Len(t, got.History, 1)
	assert.Equal(t, "hello", got.History[0].User.Content.Text)
	assert.Equal(t, "hi there", got.History[0].Assistant.Content.Text)
	assert.Equal(t, chatapi.RoleUser, got.CurrentMessage.Role)
	assert.Equal(t, "Continue", got.CurrentMessage.Content.Text)
}

func TestAssemble_SystemPromptFoldedIntoFirstUserMessage(t *testing.T) {
	system := chatapi.NewTextContent("You are a helpful assistant.")
	req := chatapi.ChatRequest{
		System: &system,
		Messages: []chatapi.Message{
			textMsg(chatapi.RoleUser, "what's the weather?"),
		},
	}

	got := Assemble(req, nil)

	assert.Contains(t, got.CurrentMessage.Content.Text, "You are a helpful assistant.")
	assert.Contains(t, got.CurrentMessage.Content.Text, "what's the weather?")
}

func TestAssemble_SystemPromptSynthesizesStandaloneTurnWhenFirstMessageNotUser(t *testing.T) {
	system := chatapi.NewTextContent("persona text")
	req := chatapi.ChatRequest{
		System: &system,
		Messages: []chatapi.Message{
			textMsg(chatapi.RoleAssistant, "greetings"),
			textMsg(chatapi.RoleUser, "hi"),
		},
	}

	got := Assemble(req, nil)

	require.Len(t, got.History, 1)
	assert.Equal(t, "persona text", got.History[0].User.Content.Text)
	assert.Equal(t, "greetings", got.History[0].Assistant.Content.Text)
	assert.Equal(t, "hi", got.CurrentMessage.Content.Text)
}

func TestAssemble_FallbackContentForEmptyUserTurn(t *testing.T) {
	req := chatapi.ChatRequest{
		Messages: []chatapi.Message{
			{Role: chatapi.RoleUser, Content: chatapi.NewListContent(nil)},
		},
	}

	got := Assemble(req, nil)

	assert.Equal(t, "Continue", got.CurrentMessage.Content.Text)
}

func TestAssemble_FallbackContentPreservesToolResultParts(t *testing.T) {
	req := chatapi.ChatRequest{
		Messages: []chatapi.Message{
			{Role: chatapi.RoleUser, Content: chatapi.NewListContent([]chatapi.ContentPart{
				{Type: chatapi.PartToolResult, ToolResultID: "t1", ToolResultPayload: "42"},
			})},
		},
	}

	got := Assemble(req, nil)

	assert.Equal(t, "Tool results provided.", got.CurrentMessage.Content.PlainText())
	require.True(t, got.CurrentMessage.Content.IsList)
	require.Len(t, got.CurrentMessage.Content.Parts, 2)
	assert.Equal(t, chatapi.PartToolResult, got.CurrentMessage.Content.Parts[1].Type)
	assert.Equal(t, "t1", got.CurrentMessage.Content.Parts[1].ToolResultID)
}

func TestAssemble_ToolDenylistFiltersByName(t *testing.T) {
	req := chatapi.ChatRequest{
		Messages: []chatapi.Message{textMsg(chatapi.RoleUser, "hi")},
		Tools: []chatapi.ToolSpec{
			{Name: "Bash"},
			{Name: "Grep"},
		},
	}

	got := Assemble(req, []string{"bash"})

	require.Len(t, got.Tools, 1)
	assert.Equal(t, "Grep", got.Tools[0].Name)
}

func TestAssemble_MixedContentTypesDoNotMerge(t *testing.T) {
	req := chatapi.ChatRequest{
		Messages: []chatapi.Message{
			textMsg(chatapi.RoleUser, "string turn"),
			{Role: chatapi.RoleUser, Content: chatapi.NewListContent([]chatapi.ContentPart{
				{Type: chatapi.PartText, Text: "list turn"},
			})},
		},
	}

	got := Assemble(req, nil)

	// Adjacent same-role messages with mismatched content shapes stay
	// separate rather than merging; the list-typed message becomes current,
	// and the dangling string-typed turn synthesizes a "Continue" assistant
	// response to preserve alternation.
	require.Len(t, got.History, 1)
	assert.Equal(t, "string turn", got.History[0].User.Content.Text)
	assert.Equal(t, "Continue", got.History[0].Assistant.Content.Text)
	assert.True(t, got.CurrentMessage.Content.IsList)
}
