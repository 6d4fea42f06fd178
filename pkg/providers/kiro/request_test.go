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

package kiro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumgate/gateway/pkg/chatapi"
)

func TestBuildRequest_HistoryAlternatesAndCurrentIsUser(t *testing.T) {
	req := chatapi.ChatRequest{
		Messages: []chatapi.Message{
			{Role: chatapi.RoleUser, Content: chatapi.NewTextContent("hi")},
			{Role: chatapi.RoleAssistant, Content: chatapi.NewTextContent("hello")},
			{Role: chatapi.RoleUser, Content: chatapi.NewTextContent("how are you")},
		},
	}

	built := BuildRequest(req, "claude-sonnet", "")

	require.Len(t, built.ConversationState.History, 2)
	require.NotNil(t, built.ConversationState.History[0].UserInputMessage)
	require.NotNil(t, built.ConversationState.History[1].AssistantResponseMessage)
	require.NotNil(t, built.ConversationState.CurrentMessage.UserInputMessage)
	assert.Equal(t, "how are you", built.ConversationState.CurrentMessage.UserInputMessage.Content)
	assert.NotEmpty(t, built.ConversationState.ConversationID)
}

func TestBuildRequest_DropsDenylistedToolAndCarriesRest(t *testing.T) {
	req := chatapi.ChatRequest{
		Messages: []chatapi.Message{
			{Role: chatapi.RoleUser, Content: chatapi.NewTextContent("list files")},
		},
		Tools: []chatapi.ToolSpec{
			{Name: "Bash", Description: "run a shell command"},
			{Name: "search", Description: "search the web"},
		},
	}

	built := BuildRequest(req, "claude-sonnet", "")

	ctx := built.ConversationState.CurrentMessage.UserInputMessage.UserInputMessageContext
	require.NotNil(t, ctx)
	require.Len(t, ctx.Tools, 1)
	assert.Equal(t, "search", ctx.Tools[0].ToolSpecification.Name)
}

func TestBuildRequest_ToolResultCarriedInContext(t *testing.T) {
	req := chatapi.ChatRequest{
		Messages: []chatapi.Message{
			{Role: chatapi.RoleUser, Content: chatapi.NewListContent([]chatapi.ContentPart{
				{Type: chatapi.PartToolResult, ToolResultID: "t1", ToolResultStatus: "success", ToolResultPayload: "42"},
			})},
		},
	}

	built := BuildRequest(req, "claude-sonnet", "")

	ctx := built.ConversationState.CurrentMessage.UserInputMessage.UserInputMessageContext
	require.NotNil(t, ctx)
	require.Len(t, ctx.ToolResults, 1)
	assert.Equal(t, "t1", ctx.ToolResults[0].ToolUseID)
	assert.Equal(t, "42", ctx.ToolResults[0].Content[0].Text)
}
