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

	"golang.org/x/oauth2"
)

// OAuth2Refresher implements Refresher by wrapping a provider's
// refresh-token grant as an oauth2.TokenSource, keeping the token-endpoint
// round trip and expiry bookkeeping in the oauth2 package rather than
// hand-rolled HTTP.
type OAuth2Refresher struct {
	config *oauth2.Config
}

// NewOAuth2Refresher builds a Refresher for a provider whose token endpoint
// supports the standard refresh_token grant.
func NewOAuth2Refresher(tokenURL, clientID, clientSecret string) *OAuth2Refresher {
	return &OAuth2Refresher{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		},
	}
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, c Credential) (string, time.Time, error) {
	if c.RefreshToken == "" {
		return "", time.Time{}, fmt.Errorf("credential %q has no refresh token", c.ID)
	}

	stale := &oauth2.Token{RefreshToken: c.RefreshToken}
	src := r.config.TokenSource(ctx, stale)

	fresh, err := src.Token()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("oauth2 refresh: %w", err)
	}
	return fresh.AccessToken, fresh.Expiry, nil
}
