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

package compress

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumgate/gateway/pkg/chatapi"
)

func longText(role chatapi.Role, n int) chatapi.Message {
	return chatapi.Message{Role: role, Content: chatapi.NewTextContent(strings.Repeat("x", n))}
}

func alternating(n, charsEach int) []chatapi.Message {
	out := make([]chatapi.Message, 0, n)
	for i := 0; i < n; i++ {
		role := chatapi.RoleUser
		if i%2 == 1 {
			role = chatapi.RoleAssistant
		}
		out = append(out, longText(role, charsEach))
	}
	return out
}

func TestCompress_Level1TenMessages(t *testing.T) {
	messages := alternating(10, 1200)

	got := Compress(messages, 1)

	// keepRecent(1) = 4, so shape is: head + placeholder pair + last 4.
	require.Len(t, got, 1+2+4)
	assert.Equal(t, chatapi.RoleUser, got[1].Role)
	assert.Contains(t, got[1].Content.Text, "digest of first 3 of 5 elided messages")
	assert.Equal(t, chatapi.RoleAssistant, got[2].Role)

	for _, m := range got[3:] {
		assert.LessOrEqual(t, len(m.Content.Text), maxContentChars(1)+len(" [truncated, original length: 1200]"))
	}
}

func TestCompress_SmallHistoryOnlyTruncates(t *testing.T) {
	messages := alternating(3, 2500)

	got := Compress(messages, 1)

	require.Len(t, got, 3)
	assert.Equal(t, messages[0].Content.Text, got[0].Content.Text)
	for _, m := range got[1:] {
		assert.Contains(t, m.Content.Text, fmt.Sprintf("original length: %d", 2500))
	}
}

func TestCompress_Idempotent(t *testing.T) {
	messages := alternating(12, 1800)

	level := 2
	once := Compress(messages, level)
	twice := Compress(once, level)

	require.Len(t, twice, len(once))
	for i := range once {
		assert.Equal(t, once[i].Role, twice[i].Role)
	}
}

func TestCompress_HigherLevelElidesMoreAggressively(t *testing.T) {
	messages := alternating(10, 1200)

	level2 := Compress(messages, 2)
	level3 := Compress(messages, 3)

	totalLen := func(msgs []chatapi.Message) int {
		n := 0
		for _, m := range msgs {
			n += len(m.Content.Text)
		}
		return n
	}

	assert.Less(t, totalLen(level3), totalLen(level2))
}

func TestCompress_PreservesHeadUnchanged(t *testing.T) {
	messages := alternating(10, 100)
	messages[0] = longText(chatapi.RoleUser, 50)

	got := Compress(messages, 1)

	assert.Equal(t, messages[0].Content.Text, got[0].Content.Text)
}
