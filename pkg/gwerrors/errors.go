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

// Package gwerrors defines the error kinds the gateway distinguishes as a
// single wrapped error type with errors.Is/errors.As support.
package gwerrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories the core must distinguish so
// that retry policy and downstream status codes can be derived from it.
type Kind string

const (
	// KindValidation means the caller supplied malformed input.
	KindValidation Kind = "validation"
	// KindAuth means a credential's token is missing, expired, or refused.
	KindAuth Kind = "auth"
	// KindUpstreamTransient means a 429 or 5xx eligible for backoff retry.
	KindUpstreamTransient Kind = "upstream-transient"
	// KindContextLimit means the conversation overflowed the model's context
	// window beyond what ContextCompressor could recover.
	KindContextLimit Kind = "context-limit"
	// KindUpstreamPermanent means a non-retryable 4xx from the upstream.
	KindUpstreamPermanent Kind = "upstream-permanent"
	// KindParse means a decoded frame's structure was unrecognized.
	KindParse Kind = "parse"
	// KindToolExecution means a local tool invocation failed; callers must
	// capture this as the tool result payload rather than abort.
	KindToolExecution Kind = "tool-execution"
	// KindQuota means QuotaEngine rejected the request.
	KindQuota Kind = "quota"
)

// Error is the core's uniform error envelope.
type Error struct {
	Kind Kind
	// Message is a human-facing description.
	Message string
	// Cause is the underlying error, if any.
	Cause error
	// UpstreamErrorType mirrors Upstream-K's x-amzn-errortype header when
	// present.
	UpstreamErrorType string
	// UpstreamRequestID mirrors Upstream-K's x-amzn-requestid header when
	// present.
	UpstreamRequestID string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is comparison by Kind: two *Error values match when
// their Kinds are equal.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithUpstream attaches upstream error annotations and returns the receiver
// for chaining.
func (e *Error) WithUpstream(errorType, requestID string) *Error {
	e.UpstreamErrorType = errorType
	e.UpstreamRequestID = requestID
	return e
}

// OfKind reports whether err is a *Error of the given kind.
func OfKind(err error, kind Kind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}
