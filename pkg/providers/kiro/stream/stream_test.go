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

package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_SingleContentFrame(t *testing.T) {
	p := New()
	events := p.Feed([]byte(`{"content":"hello"}`))

	require.Len(t, events, 1)
	assert.Equal(t, EventContent, events[0].Type)
	assert.Equal(t, "hello", events[0].Content)
}

func TestParser_FrameSplitAcrossChunks(t *testing.T) {
	p := New()
	first := p.Feed([]byte(`{"cont`))
	assert.Empty(t, first)

	second := p.Feed([]byte(`ent":"partial chunk"}`))
	require.Len(t, second, 1)
	assert.Equal(t, "partial chunk", second[0].Content)
}

func TestParser_ToolUseThenInputThenStop(t *testing.T) {
	p := New()
	events := p.Feed([]byte(
		`{"name":"bash","toolUseId":"t1"}` +
			`{"input":"{\"command\":\"ls\"}"}` +
			`{"stop":true}`,
	))

	require.Len(t, events, 3)
	assert.Equal(t, EventToolUse, events[0].Type)
	assert.Equal(t, "bash", events[0].Name)
	assert.Equal(t, "t1", events[0].ToolUseID)

	assert.Equal(t, EventToolUseInput, events[1].Type)
	assert.Contains(t, events[1].Input, "ls")

	assert.Equal(t, EventToolUseStop, events[2].Type)
	assert.True(t, events[2].Stop)
}

func TestParser_FollowupPromptDoesNotCountAsContent(t *testing.T) {
	p := New()
	events := p.Feed([]byte(`{"content":"x","followupPrompt":"what next?"}`))
	assert.Empty(t, events)
}

func TestParser_MalformedJSONDiscardedAndScanResumes(t *testing.T) {
	p := New()
	events := p.Feed([]byte(`{"content":"broken",}{"content":"next"}`))

	require.Len(t, events, 1)
	assert.Equal(t, "next", events[0].Content)
}

func TestParser_NestedBracesWithinContentDoNotBreakMatching(t *testing.T) {
	p := New()
	events := p.Feed([]byte(`{"content":"use {} in code and \"quotes\""}`))

	require.Len(t, events, 1)
	assert.Contains(t, events[0].Content, "use {} in code")
}

func TestParser_MultipleFramesInOneChunk(t *testing.T) {
	p := New()
	events := p.Feed([]byte(`{"content":"a"}{"content":"b"}{"content":"c"}`))

	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].Content)
	assert.Equal(t, "b", events[1].Content)
	assert.Equal(t, "c", events[2].Content)
}

func TestParser_GarbageBeforeFirstPrefixIsSkipped(t *testing.T) {
	p := New()
	events := p.Feed([]byte(`garbage-noise-bytes{"content":"real"}`))

	require.Len(t, events, 1)
	assert.Equal(t, "real", events[0].Content)
}
