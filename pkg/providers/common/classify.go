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

package common

import (
	"net/http"
	"strings"

	"github.com/stratumgate/gateway/pkg/gwerrors"
)

// ClassifyHTTPError maps an upstream response onto the gateway's error
// taxonomy: a 400 carrying ValidationException is context-limit, 429/5xx is
// upstream-transient, 401/403 is auth, any other status >= 400 is
// upstream-permanent, and a status below 400 yields nil. headers is the
// upstream response's header set, used to extract the
// x-amzn-errortype/x-amzn-requestid annotations when present.
func ClassifyHTTPError(statusCode int, headers http.Header, body string) *gwerrors.Error {
	errorType := headers.Get("x-amzn-errortype")
	requestID := headers.Get("x-amzn-requestid")

	switch {
	case statusCode == http.StatusBadRequest && strings.Contains(errorType, "ValidationException"):
		return gwerrors.New(gwerrors.KindContextLimit, "context window exceeded").WithUpstream(errorType, requestID)
	case statusCode == http.StatusBadRequest && strings.Contains(body, "ValidationException"):
		return gwerrors.New(gwerrors.KindContextLimit, "context window exceeded").WithUpstream(errorType, requestID)
	case statusCode == http.StatusTooManyRequests:
		return gwerrors.New(gwerrors.KindUpstreamTransient, "rate limited by upstream").WithUpstream(errorType, requestID)
	case statusCode >= 500:
		return gwerrors.New(gwerrors.KindUpstreamTransient, "upstream server error").WithUpstream(errorType, requestID)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return gwerrors.New(gwerrors.KindAuth, "upstream refused credentials").WithUpstream(errorType, requestID)
	case statusCode >= 400:
		return gwerrors.New(gwerrors.KindUpstreamPermanent, "upstream rejected request").WithUpstream(errorType, requestID)
	default:
		return nil
	}
}
