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
	"time"

	"go.uber.org/zap"

	"github.com/stratumgate/gateway/internal/log"
	"github.com/stratumgate/gateway/pkg/gwerrors"
)

// Engine is the admission and accounting surface every chat invocation goes
// through.
type Engine struct {
	store Store
	now   func() time.Time
}

// NewEngine constructs an Engine over store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Lease is a handle on one admitted request; Release must be called exactly
// once regardless of success, failure, or caller disconnect, so
// currentConcurrent is decremented exactly once.
type Lease struct {
	engine *Engine
	keyID  string
	done   bool
}

// Admit evaluates the admission predicate for keyID and, if admitted,
// atomically increments currentConcurrent. The returned Lease's Release
// must be deferred by the caller.
func (e *Engine) Admit(keyID string) (*Lease, error) {
	k, err := e.store.Admit(keyID, e.now())
	if err != nil {
		var rejected *Rejected
		if asRejected(err, &rejected) {
			return nil, gwerrors.New(gwerrors.KindQuota, rejected.Reason)
		}
		return nil, fmt.Errorf("admit request: %w", err)
	}
	log.Debug("request admitted", zap.String("api_key_id", keyID), zap.Int64("current_concurrent", k.CurrentConcurrent))
	return &Lease{engine: e, keyID: keyID}, nil
}

// Release decrements currentConcurrent and records the completed request's
// counters. cost is recorded exactly as given; Release does no estimation
// of its own, so the handlers pass an EstimateCost result.
// Safe to call multiple times; only the first call has effect.
func (l *Lease) Release(cost float64) error {
	if l.done {
		return nil
	}
	l.done = true
	_, err := l.engine.store.Release(l.keyID, cost, l.engine.now())
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// Rollover sweeps day/month counters forward for every key, supplementing
// the lazy on-admission reset (SUPPLEMENTED FEATURES: housekeeping sweep).
func (e *Engine) Rollover() error {
	sweeper, ok := e.store.(interface{ Rollover(time.Time) })
	if !ok {
		return nil
	}
	sweeper.Rollover(e.now())
	return nil
}

func asRejected(err error, target **Rejected) bool {
	r, ok := err.(*Rejected)
	if !ok {
		return false
	}
	*target = r
	return true
}
