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

package credential

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// MemStore is an in-memory Store, sufficient for single-process deployments
// and tests. All mutating operations are serialized under one mutex.
type MemStore struct {
	mu      sync.Mutex
	byID    map[string]Credential
	errors  map[string]Credential
	nextSeq int64
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		byID:   make(map[string]Credential),
		errors: make(map[string]Credential),
	}
}

func (s *MemStore) GetAll(provider string) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Credential
	for _, c := range s.byID {
		if provider == "" || c.Provider == provider {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemStore) GetByID(id string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[id]; ok {
		return c, nil
	}
	if c, ok := s.errors[id]; ok {
		return c, nil
	}
	return Credential{}, fmt.Errorf("credential %q not found", id)
}

func (s *MemStore) GetByName(provider, name string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byID {
		if c.Provider == provider && c.DisplayName == name {
			return c, nil
		}
	}
	return Credential{}, fmt.Errorf("credential %q/%q not found", provider, name)
}

func (s *MemStore) Add(c Credential) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if c.ID == "" {
		s.nextSeq++
		c.ID = fmt.Sprintf("cred-%d", s.nextSeq)
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	s.byID[c.ID] = c
	return c, nil
}

func (s *MemStore) Update(c Credential) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.ID]; !ok {
		return Credential{}, fmt.Errorf("credential %q not found", c.ID)
	}
	c.UpdatedAt = time.Now()
	s.byID[c.ID] = c
	return c, nil
}

func (s *MemStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	delete(s.errors, id)
	return nil
}

// SetActive marks id active within its provider, clearing any other active
// flag for the same provider so at most one credential per provider is
// active.
func (s *MemStore) SetActive(provider, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("credential %q not found", id)
	}
	for otherID, c := range s.byID {
		if c.Provider == provider && c.Active {
			c.Active = false
			s.byID[otherID] = c
		}
	}
	target.Active = true
	target.UpdatedAt = time.Now()
	s.byID[id] = target
	return nil
}

func (s *MemStore) GetActive(provider string) (Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byID {
		if c.Provider == provider && c.Active {
			return c, true, nil
		}
	}
	return Credential{}, false, nil
}

func (s *MemStore) GetRandomActive(provider string) (Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []Credential
	for _, c := range s.byID {
		if c.Provider == provider && c.Active {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return Credential{}, false, nil
	}
	return candidates[rand.Intn(len(candidates))], true, nil
}

func (s *MemStore) IncrementErrorCount(id, reason string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return Credential{}, fmt.Errorf("credential %q not found", id)
	}
	c.ErrorCount++
	c.LastErrorReason = reason
	c.UpdatedAt = time.Now()
	s.byID[id] = c
	if c.ErrorCount >= QuarantineThreshold {
		c.Active = false
		s.errors[id] = c
		delete(s.byID, id)
	}
	return c, nil
}

func (s *MemStore) ResetErrorCount(id string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return Credential{}, fmt.Errorf("credential %q not found", id)
	}
	c.ErrorCount = 0
	c.LastErrorReason = ""
	c.UpdatedAt = time.Now()
	s.byID[id] = c
	return c, nil
}

func (s *MemStore) UpdateToken(id, accessToken string, expiresAt time.Time) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return Credential{}, fmt.Errorf("credential %q not found", id)
	}
	c.AccessToken = accessToken
	c.ExpiresAt = expiresAt
	c.UpdatedAt = time.Now()
	s.byID[id] = c
	return c, nil
}

func (s *MemStore) IncrementUseCount(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("credential %q not found", id)
	}
	c.UseCount++
	s.byID[id] = c
	return nil
}

func (s *MemStore) GetAllErrors(provider string) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Credential
	for _, c := range s.errors {
		if provider == "" || c.Provider == provider {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemStore) DeleteError(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.errors, id)
	return nil
}

// RestoreFromError validates by caller contract (Pool.Restore runs the
// liveness probe before calling this) and re-inserts the credential into the
// active set with errorCount=0.
func (s *MemStore) RestoreFromError(id string, accessToken string, expiresAt time.Time) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.errors[id]
	if !ok {
		return Credential{}, fmt.Errorf("credential %q not in error bucket", id)
	}
	c.AccessToken = accessToken
	c.ExpiresAt = expiresAt
	c.ErrorCount = 0
	c.LastErrorReason = ""
	c.UpdatedAt = time.Now()
	delete(s.errors, id)
	s.byID[id] = c
	return c, nil
}
