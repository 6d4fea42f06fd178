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
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumgate/gateway/pkg/chatapi"
)

func TestEngine_StreamsContentAndDedupesDuplicates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"content":"hi"}{"content":"hi"}{"content":" there"}`))
	}))
	defer srv.Close()

	engine := NewEngine(nil, srv.URL)
	result, err := engine.GenerateContent(context.Background(), Credential{AccessToken: "tok"}, "claude-sonnet", chatapi.ChatRequest{
		Messages: []chatapi.Message{{Role: chatapi.RoleUser, Content: chatapi.NewTextContent("hey")}},
	})

	require.NoError(t, err)
	assert.Equal(t, "hi there", result.Content)
}

func TestEngine_FinalizesToolCallOnStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(
			`{"name":"search","toolUseId":"tu1"}` +
				`{"input":"{\"query\":\"go"}` +
				`{"input":"lang\"}"}` +
				`{"stop":true}`,
		))
	}))
	defer srv.Close()

	engine := NewEngine(nil, srv.URL)
	result, err := engine.GenerateContent(context.Background(), Credential{AccessToken: "tok"}, "claude-sonnet", chatapi.ChatRequest{
		Messages: []chatapi.Message{{Role: chatapi.RoleUser, Content: chatapi.NewTextContent("search it")}},
	})

	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "search", result.ToolCalls[0].Name)
	assert.Equal(t, "golang", result.ToolCalls[0].Input["query"])
}

func TestEngine_RetriesTransientErrorThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"content":"recovered"}`))
	}))
	defer srv.Close()

	engine := NewEngine(nil, srv.URL)
	result, err := engine.GenerateContent(context.Background(), Credential{AccessToken: "tok"}, "claude-sonnet", chatapi.ChatRequest{
		Messages: []chatapi.Message{{Role: chatapi.RoleUser, Content: chatapi.NewTextContent("retry please")}},
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Content)
	assert.EqualValues(t, 2, attempts)
}

func TestEngine_SurfacesNonRetryablePermanentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	engine := NewEngine(nil, srv.URL)
	_, err := engine.GenerateContent(context.Background(), Credential{AccessToken: "tok"}, "claude-sonnet", chatapi.ChatRequest{
		Messages: []chatapi.Message{{Role: chatapi.RoleUser, Content: chatapi.NewTextContent("hey")}},
	})

	require.Error(t, err)
}

func TestEngine_ContextOverflowTriggersCompressionRetry(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.Header().Set("x-amzn-errortype", "ValidationException:too long")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"content":"fits now"}`))
	}))
	defer srv.Close()

	messages := make([]chatapi.Message, 0, 12)
	for i := 0; i < 6; i++ {
		messages = append(messages,
			chatapi.Message{Role: chatapi.RoleUser, Content: chatapi.NewTextContent("a long user message with plenty of padding text to compress")},
			chatapi.Message{Role: chatapi.RoleAssistant, Content: chatapi.NewTextContent("a long assistant reply with plenty of padding text to compress")},
		)
	}

	engine := NewEngine(nil, srv.URL)
	result, err := engine.GenerateContent(context.Background(), Credential{AccessToken: "tok"}, "claude-sonnet", chatapi.ChatRequest{
		Messages: messages,
	})

	require.NoError(t, err)
	assert.Equal(t, "fits now", result.Content)
	assert.EqualValues(t, 2, attempts)
}
