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
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/stratumgate/gateway/internal/log"
	"github.com/stratumgate/gateway/pkg/chatapi"
	"github.com/stratumgate/gateway/pkg/gwerrors"
)

// requestBody is the external wire shape of POST /provider/.../chat:
// {messages, model, system?, tools?, max_tokens?, stream}. Decoding this
// into chatapi types is the routing shell's one piece of real logic, since
// chatapi.Content is a tagged variant that json.Unmarshal can't derive on
// its own.
type requestBody struct {
	Messages  []json.RawMessage `json:"messages"`
	Model     string            `json:"model"`
	System    json.RawMessage   `json:"system,omitempty"`
	Tools     []toolSpecBody    `json:"tools,omitempty"`
	MaxTokens int               `json:"max_tokens,omitempty"`
	Stream    bool              `json:"stream"`
}

type toolSpecBody struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type messageBody struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentPartBody struct {
	Type       string         `json:"type"`
	Text       string         `json:"text,omitempty"`
	MediaType  string         `json:"media_type,omitempty"`
	ImageB64   string         `json:"image_base64,omitempty"`
	ToolUseID  string         `json:"id,omitempty"`
	ToolName   string         `json:"name,omitempty"`
	ToolInput  map[string]any `json:"input,omitempty"`
	ToolResID  string         `json:"tool_use_id,omitempty"`
	ToolStatus string         `json:"status,omitempty"`
	ToolResult any            `json:"content,omitempty"`
}

// decodeChatRequest translates the external JSON body into chatapi.ChatRequest.
func decodeChatRequest(body []byte) (chatapi.ChatRequest, error) {
	var raw requestBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return chatapi.ChatRequest{}, gwerrors.Wrap(gwerrors.KindValidation, "malformed request body", err)
	}
	if len(raw.Messages) == 0 {
		return chatapi.ChatRequest{}, gwerrors.New(gwerrors.KindValidation, "messages is required and must be non-empty")
	}

	messages := make([]chatapi.Message, 0, len(raw.Messages))
	for i, rm := range raw.Messages {
		var mb messageBody
		if err := json.Unmarshal(rm, &mb); err != nil {
			return chatapi.ChatRequest{}, gwerrors.Wrap(gwerrors.KindValidation, fmt.Sprintf("malformed message at index %d", i), err)
		}
		content, err := decodeContent(mb.Content)
		if err != nil {
			return chatapi.ChatRequest{}, err
		}
		messages = append(messages, chatapi.Message{Role: chatapi.Role(mb.Role), Content: content})
	}

	req := chatapi.ChatRequest{
		Messages:  messages,
		Model:     raw.Model,
		MaxTokens: raw.MaxTokens,
		Stream:    raw.Stream,
	}

	if len(raw.System) > 0 {
		sysContent, err := decodeContent(raw.System)
		if err != nil {
			return chatapi.ChatRequest{}, err
		}
		req.System = &sysContent
	}

	for _, t := range raw.Tools {
		req.Tools = append(req.Tools, chatapi.ToolSpec{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}

	return req, nil
}

// decodeContent handles content's dual shape: a plain JSON string, or an
// ordered array of tagged parts.
func decodeContent(raw json.RawMessage) (chatapi.Content, error) {
	if len(raw) == 0 {
		return chatapi.Content{}, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return chatapi.NewTextContent(asString), nil
	}

	var asParts []contentPartBody
	if err := json.Unmarshal(raw, &asParts); err != nil {
		return chatapi.Content{}, gwerrors.Wrap(gwerrors.KindValidation, "content must be a string or an array of parts", err)
	}

	parts := make([]chatapi.ContentPart, 0, len(asParts))
	for _, p := range asParts {
		switch chatapi.PartType(p.Type) {
		case chatapi.PartText:
			parts = append(parts, chatapi.ContentPart{Type: chatapi.PartText, Text: p.Text})
		case chatapi.PartImage:
			decoded, err := base64.StdEncoding.DecodeString(p.ImageB64)
			if err != nil {
				return chatapi.Content{}, gwerrors.Wrap(gwerrors.KindValidation, "image part has invalid base64 payload", err)
			}
			// Neither provider's wire format has an image field; the part
			// survives into chatapi.Content but no engine forwards it
			// upstream.
			log.Warn("image content part accepted but dropped before reaching any provider engine", zap.String("mediaType", p.MediaType))
			parts = append(parts, chatapi.ContentPart{Type: chatapi.PartImage, MediaType: p.MediaType, ImageBytes: decoded})
		case chatapi.PartToolUse:
			parts = append(parts, chatapi.ContentPart{Type: chatapi.PartToolUse, ToolUseID: p.ToolUseID, ToolName: p.ToolName, ToolInput: p.ToolInput})
		case chatapi.PartToolResult:
			parts = append(parts, chatapi.ContentPart{Type: chatapi.PartToolResult, ToolResultID: p.ToolResID, ToolResultStatus: p.ToolStatus, ToolResultPayload: p.ToolResult})
		default:
			// Unknown content part types are dropped rather than rejected so
			// new client part kinds don't hard-fail older gateways.
			log.Warn("dropping unrecognized content part type", zap.String("type", p.Type))
		}
	}
	return chatapi.NewListContent(parts), nil
}
