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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumgate/gateway/pkg/providers/warp/wire"
)

func TestSessionStore_CreateGetRoundTrip(t *testing.T) {
	store := NewSessionStore(0)
	sess := store.Create(SessionContext{Repo: "stratumgate/gateway"}, "model-x")

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.CascadeID, got.CascadeID)
	assert.Equal(t, "stratumgate/gateway", got.Repo)
}

func TestSessionStore_BeginTurnRotatesTurnIDKeepsCascade(t *testing.T) {
	store := NewSessionStore(0)
	sess := store.Create(SessionContext{}, "model-x")

	turned, err := store.BeginTurn(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.CascadeID, turned.CascadeID)
	assert.NotEqual(t, sess.TurnID, turned.TurnID)
}

func TestSessionStore_BeginTurnRejectsConcurrentClaim(t *testing.T) {
	store := NewSessionStore(0)
	sess := store.Create(SessionContext{}, "model-x")

	_, err := store.BeginTurn(sess.ID)
	require.NoError(t, err)

	_, err = store.BeginTurn(sess.ID)
	require.Error(t, err)

	store.EndTurn(sess.ID)
	_, err = store.BeginTurn(sess.ID)
	require.NoError(t, err)
}

func TestSessionStore_AppendMessagesReleasesInflightClaim(t *testing.T) {
	store := NewSessionStore(0)
	sess := store.Create(SessionContext{}, "model-x")

	_, err := store.BeginTurn(sess.ID)
	require.NoError(t, err)
	require.NoError(t, store.AppendMessages(sess.ID, wire.MessageWire{Role: "user", Text: "hi"}))

	_, err = store.BeginTurn(sess.ID)
	require.NoError(t, err)

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Text)
}

func TestSessionStore_SweepEvictsByLastUpdate(t *testing.T) {
	store := NewSessionStore(0)
	old := store.Create(SessionContext{}, "model-x")
	fresh := store.Create(SessionContext{}, "model-x")

	evicted := store.Sweep(time.Now().Add(time.Hour))
	assert.Equal(t, 2, evicted)

	_, err := store.Get(old.ID)
	assert.Error(t, err)
	_, err = store.Get(fresh.ID)
	assert.Error(t, err)
}

func TestSessionStore_MaxSizeEvictsLRU(t *testing.T) {
	store := NewSessionStore(2)
	first := store.Create(SessionContext{}, "model-x")
	store.Create(SessionContext{}, "model-x")
	store.Create(SessionContext{}, "model-x")

	_, err := store.Get(first.ID)
	assert.Error(t, err)
}

func TestSessionStore_DeleteRemovesSession(t *testing.T) {
	store := NewSessionStore(0)
	sess := store.Create(SessionContext{}, "model-x")
	store.Delete(sess.ID)

	_, err := store.Get(sess.ID)
	assert.Error(t, err)
}
