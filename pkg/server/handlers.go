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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/stratumgate/gateway/internal/log"
	"github.com/stratumgate/gateway/pkg/chatapi"
	"github.com/stratumgate/gateway/pkg/credential"
	"github.com/stratumgate/gateway/pkg/gwerrors"
	"github.com/stratumgate/gateway/pkg/providers/kiro"
	"github.com/stratumgate/gateway/pkg/providers/warp"
	"github.com/stratumgate/gateway/pkg/quota"
)

// ProviderBinding wires a credential pool and chat engine for Kiro.
type ProviderBinding struct {
	Pool   *credential.Pool
	Engine *kiro.Engine
}

// WarpBinding wires a credential pool and the agentic loop for Warp. A chat
// call against Warp always runs through the loop; a caller that wants a
// single non-agentic turn gets one by virtue of the loop returning as soon
// as no tool calls are pending.
type WarpBinding struct {
	Pool     *credential.Pool
	Loop     *warp.Loop
	Sessions *warp.SessionStore
}

// KeyAdmission resolves the caller's API key and runs it through quota
// admission.
type KeyAdmission struct {
	Keys  quota.Store
	Quota *quota.Engine
}

func (k *KeyAdmission) admit(r *http.Request) (*quota.Lease, string, error) {
	key := extractAPIKey(r)
	if key == "" {
		return nil, "", gwerrors.New(gwerrors.KindValidation, "missing API key")
	}
	apiKey, err := k.Keys.GetByKey(key)
	if err != nil {
		return nil, "", gwerrors.Wrap(gwerrors.KindAuth, "unknown API key", err)
	}
	lease, err := k.Quota.Admit(apiKey.ID)
	if err != nil {
		return nil, "", err
	}
	return lease, apiKey.ID, nil
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("x-api-key")
}

func (gw *Gateway) handleKiroChat(w http.ResponseWriter, r *http.Request) {
	lease, _, err := gw.Keys.admit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var cost float64
	defer func() { lease.Release(cost) }()

	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		writeError(w, gwerrors.Wrap(gwerrors.KindValidation, "failed to read request body", err))
		return
	}
	chatReq, err := decodeChatRequest(body)
	if err != nil {
		writeError(w, err)
		return
	}

	credID := chi.URLParam(r, "credentialId")
	cred, err := leaseKiroCredential(gw.Kiro, r, credID)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, endSpan := gw.tracer().StartSpan(r.Context(), "chat.kiro",
		attribute.String("model", chatReq.Model),
		attribute.Bool("stream", chatReq.Stream))
	defer endSpan()
	r = r.WithContext(ctx)

	engineCred := kiro.Credential{AccessToken: cred.AccessToken, ProfileID: cred.ProfileID}

	if chatReq.Stream {
		streamKiro(w, r, gw, engineCred, chatReq, cred.ID, &cost)
		return
	}

	result, err := gw.Kiro.Engine.GenerateContent(r.Context(), engineCred, chatReq.Model, chatReq)
	if err != nil {
		_ = gw.Kiro.Pool.RecordFailure(cred.ID, err.Error())
		writeError(w, err)
		return
	}
	_ = gw.Kiro.Pool.RecordSuccess(cred.ID)
	cost = quota.EstimateCost(promptText(chatReq), result.Content)
	writeJSON(w, http.StatusOK, chatResultBody(result))
}

// promptText concatenates a chat request's visible text for cost
// estimation, used when the provider didn't report token usage.
func promptText(req chatapi.ChatRequest) string {
	var b strings.Builder
	if req.System != nil {
		b.WriteString(req.System.PlainText())
		b.WriteString("\n")
	}
	for _, m := range req.Messages {
		b.WriteString(m.Content.PlainText())
		b.WriteString("\n")
	}
	return b.String()
}

func leaseKiroCredential(binding *ProviderBinding, r *http.Request, credID string) (credential.Credential, error) {
	if credID != "" {
		return binding.Pool.LeaseByID(r.Context(), credID)
	}
	return binding.Pool.Lease(r.Context(), "kiro")
}

func streamKiro(w http.ResponseWriter, r *http.Request, gw *Gateway, cred kiro.Credential, chatReq chatapi.ChatRequest, credID string, costOut *float64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New("streaming unsupported by this response writer"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	var failed bool
	var completion strings.Builder
	for ev := range gw.Kiro.Engine.GenerateContentStream(r.Context(), cred, chatReq.Model, chatReq) {
		if ev.Type == chatapi.EventError {
			failed = true
		}
		if ev.Type == chatapi.EventContentDelta {
			completion.WriteString(ev.Text)
		}
		writeSSEEvent(w, flusher, ev)
	}
	*costOut = quota.EstimateCost(promptText(chatReq), completion.String())
	if failed {
		_ = gw.Kiro.Pool.RecordFailure(credID, "stream terminated with error")
	} else {
		_ = gw.Kiro.Pool.RecordSuccess(credID)
	}
}

func (gw *Gateway) handleWarpChat(w http.ResponseWriter, r *http.Request) {
	lease, _, err := gw.Keys.admit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var cost float64
	defer func() { lease.Release(cost) }()

	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		writeError(w, gwerrors.Wrap(gwerrors.KindValidation, "failed to read request body", err))
		return
	}
	chatReq, err := decodeChatRequest(body)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(chatReq.Messages) == 0 {
		writeError(w, gwerrors.New(gwerrors.KindValidation, "messages is required"))
		return
	}
	userQuery := chatReq.Messages[len(chatReq.Messages)-1].Content.PlainText()

	credID := chi.URLParam(r, "credentialId")
	cred, err := leaseWarpCredential(gw.Warp, r, credID)
	if err != nil {
		writeError(w, err)
		return
	}

	sessionID := r.Header.Get("x-gateway-session-id")
	if sessionID == "" {
		sess := gw.Warp.Sessions.Create(warp.SessionContext{}, chatReq.Model)
		sessionID = sess.ID
	}

	ctx, endSpan := gw.tracer().StartSpan(r.Context(), "chat.warp",
		attribute.String("model", chatReq.Model),
		attribute.String("session_id", sessionID))
	defer endSpan()

	result, err := gw.Warp.Loop.Run(ctx, cred.AccessToken, sessionID, userQuery, chatReq)
	if err != nil {
		_ = gw.Warp.Pool.RecordFailure(cred.ID, err.Error())
		writeError(w, err)
		return
	}
	_ = gw.Warp.Pool.RecordSuccess(cred.ID)
	cost = quota.EstimateCost(promptText(chatReq), result.Text)

	toolCalls := make([]chatapi.ToolCall, 0, len(result.Executed))
	for _, executed := range result.Executed {
		toolCalls = append(toolCalls, executed.Call)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"content":              result.Text,
		"toolCalls":            toolCalls,
		"sessionId":            sessionID,
		"maxIterationsReached": result.MaxIterationsReached,
	})
}

func leaseWarpCredential(binding *WarpBinding, r *http.Request, credID string) (credential.Credential, error) {
	if credID != "" {
		return binding.Pool.LeaseByID(r.Context(), credID)
	}
	return binding.Pool.Lease(r.Context(), "warp")
}

func chatResultBody(result chatapi.ChatResult) map[string]any {
	return map[string]any{
		"content":   result.Content,
		"toolCalls": result.ToolCalls,
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, ev chatapi.StreamEvent) {
	name := string(ev.Type)
	var payload any
	switch ev.Type {
	case chatapi.EventContentDelta:
		payload = map[string]string{"text": ev.Text}
	case chatapi.EventToolUse:
		payload = ev.Tool
	case chatapi.EventError:
		payload = map[string]string{"message": ev.Err.Error()}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to marshal SSE payload", zap.Error(err))
		return
	}
	_, _ = w.Write([]byte("event: " + name + "\ndata: " + string(data) + "\n\n"))
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a core error to the uniform response shape, using
// gwerrors.Kind to pick the HTTP status.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var ge *gwerrors.Error
	if errors.As(err, &ge) {
		switch ge.Kind {
		case gwerrors.KindValidation:
			status = http.StatusBadRequest
		case gwerrors.KindAuth:
			status = http.StatusUnauthorized
		case gwerrors.KindQuota:
			status = http.StatusTooManyRequests
		case gwerrors.KindContextLimit:
			status = http.StatusBadRequest
		case gwerrors.KindUpstreamPermanent:
			status = http.StatusBadGateway
		case gwerrors.KindUpstreamTransient:
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "requestId": uuid.NewString()})
}
