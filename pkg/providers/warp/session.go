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

// Package warp implements the Warp provider: the agentic protobuf/SSE chat
// engine, its in-memory session table, and the upstream HTTP transport.
package warp

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratumgate/gateway/pkg/providers/warp/wire"
)

// DefaultMaxSessions bounds the in-memory session table before LRU eviction
// kicks in; an unbounded in-process map is a real liability over a long
// process lifetime.
const DefaultMaxSessions = 10_000

// Session is one Warp conversation: id, stable cascade-id, rotating
// turn-id, shell/repo context, and the accumulated message list.
type Session struct {
	ID           string
	CascadeID    string
	TurnID       string
	WorkingDir   string
	HomeDir      string
	ShellName    string
	ShellVersion string
	Repo         string
	Branch       string
	Messages     []wire.MessageWire
	ModelID      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionStore is the in-memory session table: keyed by session id, with
// LRU eviction and fail-fast rejection of concurrent appends to the same
// session.
type SessionStore struct {
	mu       sync.Mutex
	byID     map[string]*list.Element // value: *sessionEntry
	order    *list.List               // front = most recently touched
	maxSize  int
	inflight map[string]bool // sessions with an append in progress
}

type sessionEntry struct {
	id      string
	session Session
}

// NewSessionStore constructs a store. maxSize <= 0 means DefaultMaxSessions.
func NewSessionStore(maxSize int) *SessionStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxSessions
	}
	return &SessionStore{
		byID:     make(map[string]*list.Element),
		order:    list.New(),
		maxSize:  maxSize,
		inflight: make(map[string]bool),
	}
}

// Create starts a new session with a fresh id and cascade-id, and the first
// turn-id.
func (s *SessionStore) Create(ctx SessionContext, modelID string) Session {
	now := time.Now()
	sess := Session{
		ID:           uuid.NewString(),
		CascadeID:    uuid.NewString(),
		TurnID:       uuid.NewString(),
		WorkingDir:   ctx.WorkingDir,
		HomeDir:      ctx.HomeDir,
		ShellName:    ctx.ShellName,
		ShellVersion: ctx.ShellVersion,
		Repo:         ctx.Repo,
		Branch:       ctx.Branch,
		ModelID:      modelID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(sess)
	return sess
}

// SessionContext is the client-machine context a new Session is seeded
// with.
type SessionContext struct {
	WorkingDir   string
	HomeDir      string
	ShellName    string
	ShellVersion string
	Repo         string
	Branch       string
}

// Get returns a copy of the session, touching its LRU position.
func (s *SessionStore) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.byID[id]
	if !ok {
		return Session{}, fmt.Errorf("session %q not found", id)
	}
	s.order.MoveToFront(elem)
	return elem.Value.(*sessionEntry).session, nil
}

// BeginTurn rotates the turn-id for a new user query while keeping the
// cascade-id stable for the session's lifetime. It also claims the session
// for exclusive append access; the claim is released by the next
// AppendMessages or by EndTurn.
func (s *SessionStore) BeginTurn(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.byID[id]
	if !ok {
		return Session{}, fmt.Errorf("session %q not found", id)
	}
	if s.inflight[id] {
		return Session{}, fmt.Errorf("session %q: concurrent append disallowed, caller must serialize", id)
	}
	s.inflight[id] = true

	entry := elem.Value.(*sessionEntry)
	entry.session.TurnID = uuid.NewString()
	entry.session.UpdatedAt = time.Now()
	s.order.MoveToFront(elem)
	return entry.session, nil
}

// AppendMessages appends messages to the session and releases the in-flight
// claim taken by BeginTurn.
func (s *SessionStore) AppendMessages(id string, messages ...wire.MessageWire) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("session %q not found", id)
	}
	entry := elem.Value.(*sessionEntry)
	entry.session.Messages = append(entry.session.Messages, messages...)
	entry.session.UpdatedAt = time.Now()
	delete(s.inflight, id)
	s.order.MoveToFront(elem)
	return nil
}

// EndTurn releases a BeginTurn claim without appending (used on error paths
// so a failed turn doesn't wedge the session permanently).
func (s *SessionStore) EndTurn(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

// Delete removes a session explicitly.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.byID[id]; ok {
		s.order.Remove(elem)
		delete(s.byID, id)
		delete(s.inflight, id)
	}
}

// Sweep evicts sessions untouched since before cutoff. Returns the number
// of sessions evicted.
func (s *SessionStore) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for elem := s.order.Back(); elem != nil; {
		entry := elem.Value.(*sessionEntry)
		if entry.session.UpdatedAt.After(cutoff) {
			break
		}
		prev := elem.Prev()
		s.order.Remove(elem)
		delete(s.byID, entry.id)
		delete(s.inflight, entry.id)
		evicted++
		elem = prev
	}
	return evicted
}

func (s *SessionStore) insertLocked(sess Session) {
	entry := &sessionEntry{id: sess.ID, session: sess}
	elem := s.order.PushFront(entry)
	s.byID[sess.ID] = elem

	for s.order.Len() > s.maxSize {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.byID, oldest.Value.(*sessionEntry).id)
	}
}
