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

// Package credential manages per-provider collections of credentials with
// activation, selection, refresh, error accounting, and quarantine.
package credential

import "time"

// Credential is one provider credential.
type Credential struct {
	ID           string
	Provider     string
	DisplayName  string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	AuthMethod   string
	Region       string
	ProfileID    string

	ErrorCount      int
	LastErrorReason string
	Active          bool
	UseCount        int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// QuarantineThreshold is the error count at which a credential is moved to
// the error bucket and becomes unselectable. cmd/gatewayd overrides it from
// configuration at startup, before any pool serves traffic.
var QuarantineThreshold = 5

// IsExpired reports whether the credential's access token has no value or
// its embedded expiry has passed.
func (c Credential) IsExpired(now time.Time) bool {
	if c.AccessToken == "" {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return now.After(c.ExpiresAt)
}

// Store is the abstract credential store. Implementations must serialize
// mutating operations so that concurrent requests observe atomic updates.
type Store interface {
	GetAll(provider string) ([]Credential, error)
	GetByID(id string) (Credential, error)
	GetByName(provider, name string) (Credential, error)
	Add(c Credential) (Credential, error)
	Update(c Credential) (Credential, error)
	Delete(id string) error

	SetActive(provider, id string) error
	GetActive(provider string) (Credential, bool, error)
	GetRandomActive(provider string) (Credential, bool, error)

	IncrementErrorCount(id, reason string) (Credential, error)
	ResetErrorCount(id string) (Credential, error)
	UpdateToken(id, accessToken string, expiresAt time.Time) (Credential, error)
	IncrementUseCount(id string) error

	GetAllErrors(provider string) ([]Credential, error)
	DeleteError(id string) error
	RestoreFromError(id string, accessToken string, expiresAt time.Time) (Credential, error)
}
