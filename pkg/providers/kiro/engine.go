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
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratumgate/gateway/internal/config"
	"github.com/stratumgate/gateway/internal/log"
	"github.com/stratumgate/gateway/pkg/chatapi"
	"github.com/stratumgate/gateway/pkg/compress"
	"github.com/stratumgate/gateway/pkg/gwerrors"
	"github.com/stratumgate/gateway/pkg/providers/common"
	"github.com/stratumgate/gateway/pkg/providers/kiro/stream"
)

// DefaultBaseURL is the upstream service base URL.
const DefaultBaseURL = "https://codewhisperer.us-east-1.amazonaws.com"

const pseudoIDEVersion = "1.97.2"

// Credential is the subset of pkg/credential.Credential the engine needs to
// authenticate a single call. Kept narrow so this package doesn't import the
// credential package just to read two fields.
type Credential struct {
	AccessToken string
	ProfileID   string
}

// Engine owns the HTTP round-trip, retry/backoff, context-overflow
// recovery, tool-call accumulation, and event emission for the Kiro
// upstream.
type Engine struct {
	http    *http.Client
	baseURL string
}

// NewEngine constructs an Engine. A nil httpClient gets a default transport
// with the per-host connection budget every credential's client carries.
func NewEngine(httpClient *http.Client, baseURL string) *Engine {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxConnsPerHost:     100,
				MaxIdleConnsPerHost: 5,
			},
		}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Engine{http: httpClient, baseURL: baseURL}
}

// GenerateContentStream streams content deltas and finalized tool calls for
// one chat request. The returned channel is closed once the stream ends
// (successfully or with a terminal error reported as an EventError).
func (e *Engine) GenerateContentStream(ctx context.Context, cred Credential, modelID string, chatReq chatapi.ChatRequest) <-chan chatapi.StreamEvent {
	out := make(chan chatapi.StreamEvent)

	go func() {
		defer close(out)

		req := chatReq
		err := common.Do(ctx,
			func(level int) error {
				req.Messages = compress.Compress(req.Messages, level)
				log.Debug("compressing context after overflow", zap.Int("level", level))
				return nil
			},
			func(ctx context.Context) error {
				return e.attempt(ctx, cred, modelID, req, out)
			},
		)
		if err != nil {
			out <- chatapi.StreamEvent{Type: chatapi.EventError, Err: err}
		}
	}()

	return out
}

// GenerateContent is the non-streaming path, implemented by draining
// GenerateContentStream.
func (e *Engine) GenerateContent(ctx context.Context, cred Credential, modelID string, chatReq chatapi.ChatRequest) (chatapi.ChatResult, error) {
	var result chatapi.ChatResult
	for ev := range e.GenerateContentStream(ctx, cred, modelID, chatReq) {
		switch ev.Type {
		case chatapi.EventContentDelta:
			result.Content += ev.Text
		case chatapi.EventToolUse:
			result.ToolCalls = append(result.ToolCalls, *ev.Tool)
		case chatapi.EventError:
			return result, ev.Err
		}
	}
	return result, nil
}

// attempt performs exactly one HTTP round-trip and streams its events to
// out, translating a non-2xx response into a classified *gwerrors.Error so
// common.Do can decide whether to retry.
func (e *Engine) attempt(ctx context.Context, cred Credential, modelID string, chatReq chatapi.ChatRequest, out chan<- chatapi.StreamEvent) error {
	wireReq := BuildRequest(chatReq, modelID, cred.ProfileID)
	body, err := json.Marshal(wireReq)
	if err != nil {
		return fmt.Errorf("marshal provider request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/codewhisperer/generateAssistantResponse", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	httpReq.Header.Set("amz-sdk-invocation-id", uuid.NewString())
	httpReq.Header.Set("User-Agent", userAgent(cred.ProfileID))

	resp, err := e.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return gwerrors.Wrap(gwerrors.KindUpstreamTransient, "upstream-k transport error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if classified := common.ClassifyHTTPError(resp.StatusCode, resp.Header, string(respBody)); classified != nil {
			return classified
		}
		return fmt.Errorf("upstream-k: unexpected status %d", resp.StatusCode)
	}

	return e.consumeStream(ctx, resp.Body, out)
}

// openToolCall tracks the in-progress accumulation of one toolUse frame
// across stream events.
type openToolCall struct {
	id    string
	name  string
	input bytes.Buffer
}

func (e *Engine) consumeStream(ctx context.Context, body io.ReadCloser, out chan<- chatapi.StreamEvent) error {
	parser := stream.New()
	reader := bufio.NewReaderSize(body, 32*1024)

	var lastContent string
	var open *openToolCall

	finalize := func() {
		if open == nil {
			return
		}
		call := finalizeToolCall(*open)
		open = nil
		select {
		case out <- chatapi.StreamEvent{Type: chatapi.EventToolUse, Tool: &call}:
		case <-ctx.Done():
		}
	}

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := reader.Read(buf)
		if n > 0 {
			for _, ev := range parser.Feed(buf[:n]) {
				switch ev.Type {
				case stream.EventContent:
					if ev.Content == lastContent {
						continue
					}
					lastContent = ev.Content
					select {
					case out <- chatapi.StreamEvent{Type: chatapi.EventContentDelta, Text: ev.Content}:
					case <-ctx.Done():
						return ctx.Err()
					}
				case stream.EventToolUse:
					if open != nil && open.id != ev.ToolUseID {
						finalize()
					}
					if open == nil {
						open = &openToolCall{id: ev.ToolUseID, name: ev.Name}
					}
					if ev.Input != "" {
						open.input.WriteString(ev.Input)
					}
					if ev.Stop {
						finalize()
					}
				case stream.EventToolUseInput:
					if open != nil {
						open.input.WriteString(ev.Input)
					}
				case stream.EventToolUseStop:
					finalize()
				}
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				finalize()
				return nil
			}
			return readErr
		}
	}
}

func finalizeToolCall(open openToolCall) chatapi.ToolCall {
	call := chatapi.ToolCall{ID: open.id, Name: open.name, RawInput: open.input.String()}
	var parsed map[string]any
	if call.RawInput != "" {
		if err := json.Unmarshal(open.input.Bytes(), &parsed); err == nil {
			call.Input = parsed
		}
	}
	return call
}

// userAgent carries the pseudo-IDE version plus a hashed machine id derived
// from the credential's profile, which the upstream expects on every call.
// Credentials without a profile fall back to the process-wide machine
// identity seed.
func userAgent(seed string) string {
	if seed == "" {
		seed = config.Get().MachineIDSeed
	}
	sum := sha256.Sum256([]byte(seed))
	return fmt.Sprintf("aws-toolkit-vscode/%s machineId/%s", pseudoIDEVersion, hex.EncodeToString(sum[:8]))
}
