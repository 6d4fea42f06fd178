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

// Package quota implements request admission, concurrency accounting, and
// cost tracking per ApiKey.
package quota

import "time"

// ApiKey is one API key's limits and live counters.
type ApiKey struct {
	ID          string
	DisplayName string
	Key         string
	Active      bool

	DailyLimit       int64
	MonthlyLimit     int64
	TotalLimit       int64
	ConcurrentLimit  int64
	DailyCostLimit   float64
	MonthlyCostLimit float64
	TotalCostLimit   float64
	ExpiresInDays    int64

	CreatedAt  time.Time
	LastUsedAt time.Time

	DailyRequests     int64
	MonthlyRequests   int64
	TotalRequests     int64
	CurrentConcurrent int64
	DailyCost         float64
	MonthlyCost       float64
	TotalCost         float64

	// LastDailyReset and LastMonthlyReset track the boundary at which the
	// corresponding counters were last zeroed, for lazy rollover.
	LastDailyReset   time.Time
	LastMonthlyReset time.Time
}

// LimitsStatus is the read-only view returned by getLimitsStatus.
type LimitsStatus struct {
	Key              ApiKey
	DailyRemaining   int64
	MonthlyRemaining int64
	TotalRemaining   int64
}

// Store is the abstract ApiKey store.
type Store interface {
	Create(k ApiKey) (ApiKey, error)
	List() ([]ApiKey, error)
	GetByID(id string) (ApiKey, error)
	GetByKey(key string) (ApiKey, error)
	Toggle(id string, active bool) (ApiKey, error)
	Delete(id string) error
	UpdateLimits(id string, limits Limits) (ApiKey, error)

	// Admit atomically applies the admission check and, if admitted,
	// increments currentConcurrent. It performs the lazy day/month rollover
	// first so the evaluated counters are current.
	Admit(id string, now time.Time) (ApiKey, error)

	// Release decrements currentConcurrent and records the completed
	// request's counters (requests += 1, cost += the supplied amount).
	Release(id string, cost float64, now time.Time) (ApiKey, error)

	GetLimitsStatus(id string) (LimitsStatus, error)
}

// Limits is the subset of ApiKey fields UpdateLimits may change.
type Limits struct {
	DailyLimit       int64
	MonthlyLimit     int64
	TotalLimit       int64
	ConcurrentLimit  int64
	DailyCostLimit   float64
	MonthlyCostLimit float64
	TotalCostLimit   float64
	ExpiresInDays    int64
}

// Rejected is returned by Store.Admit when admission fails; it carries which
// limit tripped for diagnostics. Engine.Admit converts it to a quota-kind
// gwerrors.Error.
type Rejected struct {
	Reason string
}

func (r *Rejected) Error() string { return "quota: " + r.Reason }

// evaluateAdmission is the admission predicate, applied against counters
// that have already had lazy rollover performed.
func evaluateAdmission(k ApiKey, now time.Time) error {
	if !k.Active {
		return &Rejected{Reason: "api key is not active"}
	}
	if k.DailyLimit > 0 && k.DailyRequests >= k.DailyLimit {
		return &Rejected{Reason: "daily request limit reached"}
	}
	if k.MonthlyLimit > 0 && k.MonthlyRequests >= k.MonthlyLimit {
		return &Rejected{Reason: "monthly request limit reached"}
	}
	if k.TotalLimit > 0 && k.TotalRequests >= k.TotalLimit {
		return &Rejected{Reason: "total request limit reached"}
	}
	if k.DailyCostLimit > 0 && k.DailyCost >= k.DailyCostLimit {
		return &Rejected{Reason: "daily cost limit reached"}
	}
	if k.MonthlyCostLimit > 0 && k.MonthlyCost >= k.MonthlyCostLimit {
		return &Rejected{Reason: "monthly cost limit reached"}
	}
	if k.TotalCostLimit > 0 && k.TotalCost >= k.TotalCostLimit {
		return &Rejected{Reason: "total cost limit reached"}
	}
	if k.ConcurrentLimit > 0 && k.CurrentConcurrent >= k.ConcurrentLimit {
		return &Rejected{Reason: "concurrent request limit reached"}
	}
	if k.ExpiresInDays > 0 && now.After(k.CreatedAt.AddDate(0, 0, int(k.ExpiresInDays))) {
		return &Rejected{Reason: "api key expired"}
	}
	return nil
}

// applyRollover resets daily/monthly counters when now has crossed the
// local-time day/month boundary since the last reset.
func applyRollover(k ApiKey, now time.Time) ApiKey {
	if k.LastDailyReset.IsZero() || !sameLocalDay(k.LastDailyReset, now) {
		k.DailyRequests = 0
		k.DailyCost = 0
		k.LastDailyReset = now
	}
	if k.LastMonthlyReset.IsZero() || !sameLocalMonth(k.LastMonthlyReset, now) {
		k.MonthlyRequests = 0
		k.MonthlyCost = 0
		k.LastMonthlyReset = now
	}
	return k
}

func sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}

func sameLocalMonth(a, b time.Time) bool {
	ay, am, _ := a.Local().Date()
	by, bm, _ := b.Local().Date()
	return ay == by && am == bm
}
