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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_UpdateLimitsAndToggle(t *testing.T) {
	store := NewMemStore()
	k, err := store.Create(ApiKey{DisplayName: "test"})
	require.NoError(t, err)

	updated, err := store.UpdateLimits(k.ID, Limits{DailyLimit: 100, ConcurrentLimit: 5})
	require.NoError(t, err)
	assert.EqualValues(t, 100, updated.DailyLimit)

	toggled, err := store.Toggle(k.ID, true)
	require.NoError(t, err)
	assert.True(t, toggled.Active)
}

func TestMemStore_GetLimitsStatusReportsRemaining(t *testing.T) {
	store := NewMemStore()
	k, err := store.Create(ApiKey{Active: true, DailyLimit: 10, DailyRequests: 3})
	require.NoError(t, err)

	status, err := store.GetLimitsStatus(k.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 7, status.DailyRemaining)
	assert.EqualValues(t, -1, status.MonthlyRemaining)
}

func TestEngine_RolloverSweepsAllKeys(t *testing.T) {
	store := NewMemStore()
	yesterday := time.Now().AddDate(0, 0, -1)
	k, err := store.Create(ApiKey{Active: true, DailyRequests: 9, LastDailyReset: yesterday, LastMonthlyReset: time.Now()})
	require.NoError(t, err)

	require.NoError(t, NewEngine(store).Rollover())

	reloaded, err := store.GetByID(k.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, reloaded.DailyRequests)
}
