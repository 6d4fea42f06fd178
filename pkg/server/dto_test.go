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

package server

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumgate/gateway/pkg/chatapi"
)

func TestDecodeChatRequest_PlainStringContent(t *testing.T) {
	body := []byte(`{"model":"m1","messages":[{"role":"user","content":"hello"}]}`)

	req, err := decodeChatRequest(body)
	require.NoError(t, err)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "hello", req.Messages[0].Content.PlainText())
}

func TestDecodeChatRequest_ListContentWithToolParts(t *testing.T) {
	body := []byte(`{
		"model":"m1",
		"messages":[{"role":"assistant","content":[
			{"type":"text","text":"checking"},
			{"type":"tool_use","id":"tu1","name":"grep","input":{"pattern":"foo"}}
		]}]
	}`)

	req, err := decodeChatRequest(body)
	require.NoError(t, err)
	require.Len(t, req.Messages, 1)
	parts := req.Messages[0].Content.Parts
	require.Len(t, parts, 2)
	assert.Equal(t, chatapi.PartText, parts[0].Type)
	assert.Equal(t, chatapi.PartToolUse, parts[1].Type)
	assert.Equal(t, "grep", parts[1].ToolName)
}

func TestDecodeChatRequest_DropsUnknownPartType(t *testing.T) {
	body := []byte(`{
		"model":"m1",
		"messages":[{"role":"user","content":[
			{"type":"text","text":"known"},
			{"type":"future_part_type","text":"unknown"}
		]}]
	}`)

	req, err := decodeChatRequest(body)
	require.NoError(t, err)
	require.Len(t, req.Messages[0].Content.Parts, 1)
	assert.Equal(t, "known", req.Messages[0].Content.Parts[0].Text)
}

func TestDecodeChatRequest_DecodesImagePartBase64(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01, 0x02}
	body := []byte(`{
		"model":"m1",
		"messages":[{"role":"user","content":[
			{"type":"image","media_type":"image/jpeg","image_base64":"` + base64.StdEncoding.EncodeToString(raw) + `"}
		]}]
	}`)

	req, err := decodeChatRequest(body)
	require.NoError(t, err)
	require.Len(t, req.Messages[0].Content.Parts, 1)
	part := req.Messages[0].Content.Parts[0]
	assert.Equal(t, chatapi.PartImage, part.Type)
	assert.Equal(t, "image/jpeg", part.MediaType)
	assert.Equal(t, raw, part.ImageBytes)
}

func TestDecodeChatRequest_RejectsMalformedImageBase64(t *testing.T) {
	body := []byte(`{
		"model":"m1",
		"messages":[{"role":"user","content":[
			{"type":"image","media_type":"image/jpeg","image_base64":"not-valid-base64!!"}
		]}]
	}`)

	_, err := decodeChatRequest(body)
	require.Error(t, err)
}

func TestDecodeChatRequest_RejectsEmptyMessages(t *testing.T) {
	_, err := decodeChatRequest([]byte(`{"model":"m1","messages":[]}`))
	require.Error(t, err)
}

func TestDecodeChatRequest_DecodesSystemPromptAndTools(t *testing.T) {
	body := []byte(`{
		"model":"m1",
		"system":"be concise",
		"tools":[{"name":"grep","description":"search","input_schema":{"type":"object"}}],
		"messages":[{"role":"user","content":"hi"}]
	}`)

	req, err := decodeChatRequest(body)
	require.NoError(t, err)
	require.NotNil(t, req.System)
	assert.Equal(t, "be concise", req.System.PlainText())
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "grep", req.Tools[0].Name)
}
