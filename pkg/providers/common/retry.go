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

// Package common holds the retry/backoff policy and error classification
// shared by the Kiro and Warp chat engines.
package common

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stratumgate/gateway/internal/log"
	"github.com/stratumgate/gateway/pkg/gwerrors"
)

// MaxTransientRetries is the retry cap for upstream-transient errors
// (429/5xx).
const MaxTransientRetries = 3

// BackoffDelay returns the exponential backoff delay for the given attempt
// (0-indexed): 1000ms doubled per attempt.
func BackoffDelay(attempt int) time.Duration {
	return time.Duration(1000*(1<<uint(attempt))) * time.Millisecond
}

// Sleep waits for BackoffDelay(attempt), returning early with ctx.Err() if
// ctx is cancelled during the wait, so a disconnecting caller never sits out
// a full backoff.
func Sleep(ctx context.Context, attempt int) error {
	delay := BackoffDelay(attempt)
	log.Debug("retry backoff", zap.Int("attempt", attempt), zap.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs call, retrying upstream-transient errors with exponential backoff
// and giving context-limit errors a compress-and-retry hook via
// onContextLimit. call is responsible for classifying its own errors via
// ClassifyHTTPError before returning them.
func Do(ctx context.Context, onContextLimit func(level int) error, call func(ctx context.Context) error) error {
	level := 0
	for attempt := 0; ; attempt++ {
		err := call(ctx)
		if err == nil {
			return nil
		}

		if gwerrors.OfKind(err, gwerrors.KindContextLimit) && onContextLimit != nil && level < 3 {
			level++
			if retryErr := onContextLimit(level); retryErr != nil {
				return retryErr
			}
			attempt = -1 // compression isn't a transient-retry attempt; don't count it.
			continue
		}

		if !gwerrors.OfKind(err, gwerrors.KindUpstreamTransient) || attempt >= MaxTransientRetries {
			return err
		}

		if sleepErr := Sleep(ctx, attempt); sleepErr != nil {
			return sleepErr
		}
	}
}
