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

package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_OmitsEmptyRepoAndBranch(t *testing.T) {
	req := Request{
		Cascade: CascadeInfo{CascadeID: "cas1", Title: "session", ModelID: "claude"},
		Environment: Environment{
			WorkingDir: "/home/dev",
			Timestamp:  NewTimestamp(1_700_000_000_000),
		},
		Metadata: Metadata{Entrypoint: "cli"},
	}

	out := Encode(req)
	require.NotEmpty(t, out)
	assert.True(t, bytes.Contains(out, []byte("cas1")))
	assert.False(t, bytes.Contains(out, []byte("main")), "no branch set, so the literal shouldn't appear")
}

func TestEncode_IncludesRepoAndBranchWhenSet(t *testing.T) {
	req := Request{
		Cascade: CascadeInfo{CascadeID: "cas1", ModelID: "claude"},
		Environment: Environment{
			WorkingDir: "/home/dev",
			Repo:       "stratumgate/gateway",
			Branch:     "main",
			Timestamp:  NewTimestamp(1_700_000_000_000),
		},
	}

	out := Encode(req)
	assert.True(t, bytes.Contains(out, []byte("stratumgate/gateway")))
	assert.True(t, bytes.Contains(out, []byte("main")))
}

func TestEncode_CarriesModelConfigurationBlobByteForByte(t *testing.T) {
	out := Encode(Request{Cascade: CascadeInfo{CascadeID: "c"}})
	assert.True(t, bytes.Contains(out, ModelConfigurationBlob))
}

func TestEncode_MessagesAppearInEmittedOrder(t *testing.T) {
	req := Request{
		Cascade: CascadeInfo{
			CascadeID: "cas1",
			Messages: []MessageWire{
				{CascadeID: "cas1", TurnID: "t1", Role: "user", Text: "first"},
				{CascadeID: "cas1", TurnID: "t1", Role: "assistant", Text: "second"},
			},
		},
	}

	out := Encode(req)
	firstIdx := bytes.Index(out, []byte("first"))
	secondIdx := bytes.Index(out, []byte("second"))
	require.GreaterOrEqual(t, firstIdx, 0)
	require.GreaterOrEqual(t, secondIdx, 0)
	assert.Less(t, firstIdx, secondIdx)
}

func TestEncode_UserQueryOmittedWhenEmpty(t *testing.T) {
	withQuery := Encode(Request{Cascade: CascadeInfo{CascadeID: "c"}, UserQuery: "what's next"})
	withoutQuery := Encode(Request{Cascade: CascadeInfo{CascadeID: "c"}})

	assert.True(t, bytes.Contains(withQuery, []byte("what's next")))
	assert.False(t, bytes.Contains(withoutQuery, []byte("what's next")))
}
