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
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a distributed ApiKey Store for multi-instance deployments,
// where currentConcurrent must be coherent across processes. Each ApiKey is
// a JSON blob under key "quota:<id>"; Admit/Release run under WATCH/MULTI
// optimistic locking so the read-rollover-evaluate-increment sequence is
// atomic without a separate distributed lock.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "quota:"}
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) Create(k ApiKey) (ApiKey, error) {
	ctx := context.Background()
	if k.ID == "" {
		k.ID = fmt.Sprintf("key-%d", time.Now().UnixNano())
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}
	return k, s.save(ctx, k)
}

func (s *RedisStore) save(ctx context.Context, k ApiKey) error {
	blob, err := json.Marshal(k)
	if err != nil {
		return fmt.Errorf("marshal api key: %w", err)
	}
	return s.rdb.Set(ctx, s.key(k.ID), blob, 0).Err()
}

func (s *RedisStore) load(ctx context.Context, id string) (ApiKey, error) {
	blob, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return ApiKey{}, fmt.Errorf("api key %q not found", id)
	}
	if err != nil {
		return ApiKey{}, fmt.Errorf("get api key: %w", err)
	}
	var k ApiKey
	if err := json.Unmarshal(blob, &k); err != nil {
		return ApiKey{}, fmt.Errorf("unmarshal api key: %w", err)
	}
	return k, nil
}

func (s *RedisStore) List() ([]ApiKey, error) {
	ctx := context.Background()
	var out []ApiKey
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		blob, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var k ApiKey
		if err := json.Unmarshal(blob, &k); err == nil {
			out = append(out, k)
		}
	}
	return out, iter.Err()
}

func (s *RedisStore) GetByID(id string) (ApiKey, error) {
	return s.load(context.Background(), id)
}

func (s *RedisStore) GetByKey(key string) (ApiKey, error) {
	all, err := s.List()
	if err != nil {
		return ApiKey{}, err
	}
	for _, k := range all {
		if k.Key == key {
			return k, nil
		}
	}
	return ApiKey{}, fmt.Errorf("api key value not found")
}

func (s *RedisStore) Toggle(id string, active bool) (ApiKey, error) {
	ctx := context.Background()
	k, err := s.load(ctx, id)
	if err != nil {
		return ApiKey{}, err
	}
	k.Active = active
	return k, s.save(ctx, k)
}

func (s *RedisStore) Delete(id string) error {
	return s.rdb.Del(context.Background(), s.key(id)).Err()
}

func (s *RedisStore) UpdateLimits(id string, limits Limits) (ApiKey, error) {
	ctx := context.Background()
	k, err := s.load(ctx, id)
	if err != nil {
		return ApiKey{}, err
	}
	k.DailyLimit = limits.DailyLimit
	k.MonthlyLimit = limits.MonthlyLimit
	k.TotalLimit = limits.TotalLimit
	k.ConcurrentLimit = limits.ConcurrentLimit
	k.DailyCostLimit = limits.DailyCostLimit
	k.MonthlyCostLimit = limits.MonthlyCostLimit
	k.TotalCostLimit = limits.TotalCostLimit
	k.ExpiresInDays = limits.ExpiresInDays
	return k, s.save(ctx, k)
}

// Admit uses WATCH/MULTI optimistic locking around the single key so that
// concurrent admissions against the same ApiKey serialize correctly without
// a separate distributed mutex.
func (s *RedisStore) Admit(id string, now time.Time) (ApiKey, error) {
	ctx := context.Background()
	var result ApiKey

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		k, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		k = applyRollover(k, now)
		if admitErr := evaluateAdmission(k, now); admitErr != nil {
			// Persist the rolled-over counters even on rejection so the
			// next admission attempt doesn't redo the rollover.
			_, txErr := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				blob, _ := json.Marshal(k)
				p.Set(ctx, s.key(id), blob, 0)
				return nil
			})
			if txErr != nil {
				return txErr
			}
			return admitErr
		}
		k.CurrentConcurrent++
		k.LastUsedAt = now

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			blob, marshalErr := json.Marshal(k)
			if marshalErr != nil {
				return marshalErr
			}
			p.Set(ctx, s.key(id), blob, 0)
			return nil
		})
		result = k
		return err
	}, s.key(id))

	if err != nil {
		return ApiKey{}, err
	}
	return result, nil
}

func (s *RedisStore) Release(id string, cost float64, now time.Time) (ApiKey, error) {
	ctx := context.Background()
	var result ApiKey

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		k, err := s.load(ctx, id)
		if err != nil {
			return err
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

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			blob, marshalErr := json.Marshal(k)
			if marshalErr != nil {
				return marshalErr
			}
			p.Set(ctx, s.key(id), blob, 0)
			return nil
		})
		result = k
		return err
	}, s.key(id))

	if err != nil {
		return ApiKey{}, err
	}
	return result, nil
}

func (s *RedisStore) GetLimitsStatus(id string) (LimitsStatus, error) {
	k, err := s.load(context.Background(), id)
	if err != nil {
		return LimitsStatus{}, err
	}
	return LimitsStatus{
		Key:              k,
		DailyRemaining:   remaining(k.DailyLimit, k.DailyRequests),
		MonthlyRemaining: remaining(k.MonthlyLimit, k.MonthlyRequests),
		TotalRemaining:   remaining(k.TotalLimit, k.TotalRequests),
	}, nil
}
