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

package warp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stratumgate/gateway/internal/log"
	"github.com/stratumgate/gateway/pkg/chatapi"
	"github.com/stratumgate/gateway/pkg/providers/common"
	"github.com/stratumgate/gateway/pkg/providers/warp/wire"
)

// DefaultUpstreamURL is the upstream multi-agent endpoint.
const DefaultUpstreamURL = "https://app.warp.dev/ai/multi-agent"

// Engine owns one HTTP round-trip against the Warp upstream and the
// retry/backoff policy shared with the Kiro engine via
// pkg/providers/common. Unlike the Kiro engine, a single Engine call never
// loops on tool calls itself; Loop (agentic.go) drives the multi-iteration
// conversation across repeated Engine calls.
type Engine struct {
	http *http.Client
	url  string
}

// NewEngine constructs an Engine. A nil httpClient gets the same per-host
// connection budget every credential's transport carries.
func NewEngine(httpClient *http.Client, url string) *Engine {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxConnsPerHost:     100,
				MaxIdleConnsPerHost: 5,
			},
		}
	}
	if url == "" {
		url = DefaultUpstreamURL
	}
	return &Engine{http: httpClient, url: url}
}

// Turn is one decoded round-trip: the agent's visible text (agent-text plus
// reasoning events concatenated in arrival order) plus any tool calls the
// upstream emitted.
type Turn struct {
	Text      string
	ToolCalls []chatapi.ToolCall
}

// Run performs exactly one HTTP round-trip encoding req and decoding the
// SSE response into a Turn, with 429/5xx exponential backoff. No
// compression hook is wired here: the Warp wire format has no reliable
// context-overflow signal, so a context-limit error surfaces to the
// agentic loop's caller instead of triggering an automatic compress-retry.
func (e *Engine) Run(ctx context.Context, accessToken string, req wire.Request) (Turn, error) {
	var turn Turn
	err := common.Do(ctx, nil, func(ctx context.Context) error {
		t, err := e.attempt(ctx, accessToken, req)
		if err != nil {
			return err
		}
		turn = t
		return nil
	})
	return turn, err
}

func (e *Engine) attempt(ctx context.Context, accessToken string, req wire.Request) (Turn, error) {
	body := wire.Encode(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return Turn{}, err
	}
	httpReq.Header.Set("content-type", "application/x-protobuf")
	httpReq.Header.Set("accept", "text/event-stream")
	httpReq.Header.Set("authorization", "Bearer "+accessToken)
	for k, v := range identityHeaders() {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Turn{}, ctx.Err()
		}
		return Turn{}, fmt.Errorf("upstream-w transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if classified := common.ClassifyHTTPError(resp.StatusCode, resp.Header, string(respBody)); classified != nil {
			return Turn{}, classified
		}
		return Turn{}, fmt.Errorf("upstream-w: unexpected status %d", resp.StatusCode)
	}

	var turn Turn
	var open *pendingToolCall
	err = wire.DecodeSSE(resp.Body, func(ev wire.Event) {
		switch ev.Type {
		case wire.EventAgentText, wire.EventReasoning:
			turn.Text += ev.Text
		case wire.EventToolCall:
			if ev.Command == "" {
				log.Warn("tool-call frame with no extractable command name")
				return
			}
			if open == nil || open.command != ev.Command || open.args != ev.Text {
				if open != nil {
					turn.ToolCalls = append(turn.ToolCalls, open.finalize())
				}
				open = &pendingToolCall{command: ev.Command, args: ev.Text}
			}
		}
	})
	if open != nil {
		turn.ToolCalls = append(turn.ToolCalls, open.finalize())
	}
	if err != nil {
		return Turn{}, fmt.Errorf("decode upstream-w stream: %w", err)
	}
	return turn, nil
}

// pendingToolCall accumulates one tool-call event's command/args. The Warp
// upstream emits the whole call as a single structural match rather than
// fragments, so finalize is a direct translation (contrast the Kiro
// engine's multi-fragment toolUse accumulation).
type pendingToolCall struct {
	command string
	args    string
}

func (p *pendingToolCall) finalize() chatapi.ToolCall {
	return chatapi.ToolCall{Name: p.command, RawInput: p.args}
}

// identityHeaders returns the fixed x-warp-* client identity headers the
// upstream requires before it will accept a request.
func identityHeaders() map[string]string {
	return map[string]string{
		"x-warp-client-version": "v0.2026.07.29.08.11.stable_02",
		"x-warp-os-category":    "Linux",
		"x-warp-os-name":        "Linux",
		"x-warp-channel":        "stable",
	}
}
