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

package quota

import (
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory Store. Every mutating method, including Admit and
// Release, is serialized under one mutex so currentConcurrent always equals
// the exact number of in-flight admitted requests.
type MemStore struct {
	mu      sync.Mutex
	byID    map[string]ApiKey
	nextSeq int64
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]ApiKey)}
}

func (s *MemStore) Create(k ApiKey) (ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k.ID == "" {
		s.nextSeq++
		k.ID = fmt.Sprintf("key-%d", s.nextSeq)
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}
	s.byID[k.ID] = k
	return k, nil
}

func (s *MemStore) List() ([]ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ApiKey, 0, len(s.byID))
	for _, k := range s.byID {
		out = append(out, k)
	}
	return out, nil
}

func (s *MemStore) GetByID(id string) (ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.byID[id]
	if !ok {
		return ApiKey{}, fmt.Errorf("api key %q not found", id)
	}
	return k, nil
}

func (s *MemStore) GetByKey(key string) (ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.byID {
		if k.Key == key {
			return k, nil
		}
	}
	return ApiKey{}, fmt.Errorf("api key value not found")
}

func (s *MemStore) Toggle(id string, active bool) (ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.byID[id]
	if !ok {
		return ApiKey{}, fmt.Errorf("api key %q not found", id)
	}
	k.Active = active
	s.byID[id] = k
	return k, nil
}

func (s *MemStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *MemStore) UpdateLimits(id string, limits Limits) (ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.byID[id]
	if !ok {
		return ApiKey{}, fmt.Errorf("api key %q not found", id)
	}
	k.DailyLimit = limits.DailyLimit
	k.MonthlyLimit = limits.MonthlyLimit
	k.TotalLimit = limits.TotalLimit
	k.ConcurrentLimit = limits.ConcurrentLimit
	k.DailyCostLimit = limits.DailyCostLimit
	k.MonthlyCostLimit = limits.MonthlyCostLimit
	k.TotalCostLimit = limits.TotalCostLimit
	k.ExpiresInDays = limits.ExpiresInDays
	s.byID[id] = k
	return k, nil
}

func (s *MemStore) Admit(id string, now time.Time) (ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.byID[id]
	if !ok {
		return ApiKey{}, fmt.Errorf("api key %q not found", id)
	}
	k = applyRollover(k, now)
	if err := evaluateAdmission(k, now); err != nil {
		s.byID[id] = k
		return ApiKey{}, err
	}
	k.CurrentConcurrent++
	k.LastUsedAt = now
	s.byID[id] = k
	return k, nil
}

func (s *MemStore) Release(id string, cost float64, now time.Time) (ApiKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.byID[id]
	if !ok {
		return ApiKey{}, fmt.Errorf("api key %q not found", id)
	}
	if k.CurrentConcurrent > 0 {
		k.CurrentConcurrent--
	}
	k.DailyRequests++
	k.MonthlyRequests++
	k.TotalRequests++
	k.DailyCost += cost
	k.MonthlyCost += cost
	k.TotalCost += cost
	s.byID[id] = k
	return k, nil
}

func (s *MemStore) GetLimitsStatus(id string) (LimitsStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.byID[id]
	if !ok {
		return LimitsStatus{}, fmt.Errorf("api key %q not found", id)
	}
	return LimitsStatus{
		Key:              k,
		DailyRemaining:   remaining(k.DailyLimit, k.DailyRequests),
		MonthlyRemaining: remaining(k.MonthlyLimit, k.MonthlyRequests),
		TotalRemaining:   remaining(k.TotalLimit, k.TotalRequests),
	}, nil
}

// Rollover sweeps every key's lazy rollover fields forward, for the
// housekeeping scheduler (SUPPLEMENTED FEATURES: explicit sweep alongside
// the lazy on-admission reset).
func (s *MemStore) Rollover(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, k := range s.byID {
		s.byID[id] = applyRollover(k, now)
	}
}

func remaining(limit, used int64) int64 {
	if limit <= 0 {
		return -1
	}
	if used >= limit {
		return 0
	}
	return limit - used
}
