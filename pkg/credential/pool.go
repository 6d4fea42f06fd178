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
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stratumgate/gateway/internal/config"
	"github.com/stratumgate/gateway/internal/log"
	"github.com/stratumgate/gateway/pkg/gwerrors"
)

// Refresher exchanges a credential's refresh token for a fresh access token.
// Implementations wrap a provider-specific OAuth2 endpoint.
type Refresher interface {
	Refresh(ctx context.Context, c Credential) (accessToken string, expiresAt time.Time, err error)
}

// Pool is a per-provider collection of credentials backed by a Store,
// applying the selection and refresh policy.
type Pool struct {
	store       Store
	refresher   Refresher
	now         func() time.Time
	refreshSkew time.Duration
}

// NewPool constructs a Pool over store. refresher may be nil if no provider
// in this pool uses OAuth2 refresh. The refresh skew is read from
// config.Get().CredentialRefreshSkew so a token is treated as expired
// slightly before the upstream would reject it.
func NewPool(store Store, refresher Refresher) *Pool {
	return &Pool{store: store, refresher: refresher, now: time.Now, refreshSkew: config.Get().CredentialRefreshSkew}
}

// Lease selects the active credential for provider (or the first in
// creation order if none is marked active), ensures its token is fresh, and
// returns it ready for use.
func (p *Pool) Lease(ctx context.Context, provider string) (Credential, error) {
	cred, found, err := p.store.GetActive(provider)
	if err != nil {
		return Credential{}, fmt.Errorf("get active credential: %w", err)
	}
	if !found {
		cred, found, err = p.firstInCreationOrder(provider)
		if err != nil {
			return Credential{}, err
		}
		if !found {
			return Credential{}, gwerrors.New(gwerrors.KindAuth, fmt.Sprintf("no credential available for provider %q", provider))
		}
	}

	return p.ensureFreshToken(ctx, cred)
}

// LeaseByID leases a specific credential by id, still subject to token
// refresh (used by /provider/chat/:credentialId).
func (p *Pool) LeaseByID(ctx context.Context, id string) (Credential, error) {
	cred, err := p.store.GetByID(id)
	if err != nil {
		return Credential{}, fmt.Errorf("get credential %q: %w", id, err)
	}
	return p.ensureFreshToken(ctx, cred)
}

func (p *Pool) firstInCreationOrder(provider string) (Credential, bool, error) {
	all, err := p.store.GetAll(provider)
	if err != nil {
		return Credential{}, false, fmt.Errorf("list credentials: %w", err)
	}
	if len(all) == 0 {
		return Credential{}, false, nil
	}
	first := all[0]
	for _, c := range all[1:] {
		if c.CreatedAt.Before(first.CreatedAt) {
			first = c
		}
	}
	return first, true, nil
}

// ensureFreshToken is the pre-request refresh check: if the stored access
// token is missing or past its embedded expiry, invoke the refresh
// endpoint; on success update the store atomically; on failure increment
// the error count and raise.
func (p *Pool) ensureFreshToken(ctx context.Context, cred Credential) (Credential, error) {
	if !cred.IsExpired(p.now().Add(p.refreshSkew)) {
		return cred, nil
	}
	if p.refresher == nil {
		return Credential{}, gwerrors.New(gwerrors.KindAuth, fmt.Sprintf("credential %q expired and has no refresher configured", cred.ID))
	}

	log.Debug("refreshing credential token", zap.String("credential_id", cred.ID), zap.String("provider", cred.Provider))

	accessToken, expiresAt, err := p.refresher.Refresh(ctx, cred)
	if err != nil {
		if _, incErr := p.store.IncrementErrorCount(cred.ID, "token refresh failed: "+err.Error()); incErr != nil {
			log.Error("failed to record refresh error", zap.String("credential_id", cred.ID), zap.Error(incErr))
		}
		return Credential{}, gwerrors.Wrap(gwerrors.KindAuth, "token refresh failed", err)
	}

	updated, err := p.store.UpdateToken(cred.ID, accessToken, expiresAt)
	if err != nil {
		return Credential{}, fmt.Errorf("persist refreshed token: %w", err)
	}
	return updated, nil
}

// RecordSuccess resets a credential's error count after a successful
// upstream call and increments its use count.
func (p *Pool) RecordSuccess(id string) error {
	_, err := p.store.ResetErrorCount(id)
	if err != nil {
		return fmt.Errorf("reset error count: %w", err)
	}
	return p.store.IncrementUseCount(id)
}

// RecordFailure increments a credential's error count and, once it crosses
// QuarantineThreshold, moves it to the error bucket so further selections
// skip it.
func (p *Pool) RecordFailure(id, reason string) error {
	updated, err := p.store.IncrementErrorCount(id, reason)
	if err != nil {
		return fmt.Errorf("increment error count: %w", err)
	}
	if updated.ErrorCount < QuarantineThreshold {
		return nil
	}
	log.Warn("credential quarantined", zap.String("credential_id", id), zap.Int("error_count", updated.ErrorCount))
	return nil
}

// Restore validates a (possibly new) token against the provider and, on
// success, restores the credential from the error bucket with errorCount=0.
func (p *Pool) Restore(ctx context.Context, id string, validator func(ctx context.Context, c Credential) error) (Credential, error) {
	errored, err := p.store.GetByID(id)
	if err != nil {
		return Credential{}, fmt.Errorf("get quarantined credential: %w", err)
	}

	accessToken := errored.AccessToken
	expiresAt := errored.ExpiresAt
	if errored.IsExpired(p.now()) && p.refresher != nil {
		accessToken, expiresAt, err = p.refresher.Refresh(ctx, errored)
		if err != nil {
			return Credential{}, gwerrors.Wrap(gwerrors.KindAuth, "rehabilitation refresh failed", err)
		}
	}

	if validator != nil {
		probe := errored
		probe.AccessToken = accessToken
		probe.ExpiresAt = expiresAt
		if err := validator(ctx, probe); err != nil {
			return Credential{}, gwerrors.Wrap(gwerrors.KindValidation, "rehabilitation probe failed", err)
		}
	}

	return p.store.RestoreFromError(id, accessToken, expiresAt)
}
