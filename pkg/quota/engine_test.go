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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumgate/gateway/pkg/gwerrors"
)

func TestEngine_AdmitRejectsOverDailyLimit(t *testing.T) {
	store := NewMemStore()
	k, err := store.Create(ApiKey{Active: true, DailyLimit: 1})
	require.NoError(t, err)

	engine := NewEngine(store)

	lease, err := engine.Admit(k.ID)
	require.NoError(t, err)
	require.NoError(t, lease.Release(0))

	_, err = engine.Admit(k.ID)
	require.Error(t, err)
	assert.True(t, gwerrors.OfKind(err, gwerrors.KindQuota))
}

func TestEngine_AdmitRejectsOverConcurrentLimit(t *testing.T) {
	store := NewMemStore()
	k, err := store.Create(ApiKey{Active: true, ConcurrentLimit: 1})
	require.NoError(t, err)

	engine := NewEngine(store)

	lease1, err := engine.Admit(k.ID)
	require.NoError(t, err)

	_, err = engine.Admit(k.ID)
	require.Error(t, err)

	require.NoError(t, lease1.Release(0))

	lease2, err := engine.Admit(k.ID)
	require.NoError(t, err)
	require.NoError(t, lease2.Release(0))
}

func TestEngine_AdmitRejectsInactiveKey(t *testing.T) {
	store := NewMemStore()
	k, err := store.Create(ApiKey{Active: false})
	require.NoError(t, err)

	_, err = NewEngine(store).Admit(k.ID)
	require.Error(t, err)
}

func TestEngine_AdmitRejectsExpiredKey(t *testing.T) {
	store := NewMemStore()
	k, err := store.Create(ApiKey{
		Active:        true,
		ExpiresInDays: 1,
		CreatedAt:     time.Now().Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	_, err = NewEngine(store).Admit(k.ID)
	require.Error(t, err)
}

func TestEngine_ConcurrentAdmitCountsExactlyInFlight(t *testing.T) {
	store := NewMemStore()
	k, err := store.Create(ApiKey{Active: true, ConcurrentLimit: 100})
	require.NoError(t, err)
	engine := NewEngine(store)

	const n = 20
	var wg sync.WaitGroup
	leases := make([]*Lease, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lease, err := engine.Admit(k.ID)
			if err == nil {
				leases[i] = lease
			}
		}(i)
	}
	wg.Wait()

	updated, err := store.GetByID(k.ID)
	require.NoError(t, err)
	assert.EqualValues(t, n, updated.CurrentConcurrent)

	for _, lease := range leases {
		require.NotNil(t, lease)
		require.NoError(t, lease.Release(0.01))
	}

	final, err := store.GetByID(k.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, final.CurrentConcurrent)
	assert.EqualValues(t, n, final.TotalRequests)
}

func TestEngine_ReleaseIsIdempotent(t *testing.T) {
	store := NewMemStore()
	k, err := store.Create(ApiKey{Active: true})
	require.NoError(t, err)
	engine := NewEngine(store)

	lease, err := engine.Admit(k.ID)
	require.NoError(t, err)

	require.NoError(t, lease.Release(1))
	require.NoError(t, lease.Release(1))

	final, err := store.GetByID(k.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, final.TotalRequests)
	assert.InDelta(t, 1, final.TotalCost, 0.0001)
}

func TestApplyRollover_ResetsAfterDayBoundary(t *testing.T) {
	yesterday := time.Now().AddDate(0, 0, -1)
	k := ApiKey{DailyRequests: 5, MonthlyRequests: 5, LastDailyReset: yesterday, LastMonthlyReset: time.Now()}

	got := applyRollover(k, time.Now())

	assert.EqualValues(t, 0, got.DailyRequests)
	assert.EqualValues(t, 5, got.MonthlyRequests)
}

func TestEstimateCost_ScalesWithTextLength(t *testing.T) {
	short := EstimateCost("hello", "hi")
	long := EstimateCost(
		"this is a considerably longer prompt with many more tokens to encode",
		"and a considerably longer completion with many more tokens as well",
	)
	assert.Greater(t, long, short)
}

func TestRejectedError_UnwrapsCleanly(t *testing.T) {
	var target *Rejected
	err := error(&Rejected{Reason: "daily request limit reached"})
	assert.True(t, errors.As(err, &target))
}
