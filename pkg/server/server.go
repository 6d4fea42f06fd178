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

// Package server is the HTTP routing shell in front of the core. It stays a
// thin adapter: route registration, request decoding, and SSE framing only.
// Every decision of substance (admission, leasing, assembly, streaming)
// lives in the packages it calls into.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stratumgate/gateway/internal/obs"
)

// Gateway wires the providers, credential pools, and quota engine a Server
// routes requests to.
type Gateway struct {
	Kiro *ProviderBinding
	Warp *WarpBinding
	Keys *KeyAdmission

	// Tracer instruments the chat handlers; nil means no tracing.
	Tracer obs.Tracer
}

func (gw *Gateway) tracer() obs.Tracer {
	if gw.Tracer == nil {
		return obs.Noop()
	}
	return gw.Tracer
}

// NewRouter builds the chi router for the uniform chat API plus structured
// request logging on every handler.
func NewRouter(gw *Gateway) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))
	r.Use(requestLogMiddleware)

	r.Route("/provider", func(r chi.Router) {
		r.Post("/kiro/chat", gw.handleKiroChat)
		r.Post("/kiro/chat/{credentialId}", gw.handleKiroChat)
		r.Post("/warp/chat", gw.handleWarpChat)
		r.Post("/warp/chat/{credentialId}", gw.handleWarpChat)
	})

	return r
}
