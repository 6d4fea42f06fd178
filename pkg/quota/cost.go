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
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/stratumgate/gateway/internal/log"
)

// costPerThousandInputTokens and costPerThousandOutputTokens are a coarse,
// provider-agnostic estimate used only when a chat engine cannot report
// real token usage.
const (
	costPerThousandInputTokens  = 0.003
	costPerThousandOutputTokens = 0.015
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func sharedEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Error("failed to load tiktoken encoding, cost estimates will be zero")
			return
		}
		encoding = enc
	})
	return encoding
}

// EstimateCost approximates a request's dollar cost from its text when the
// provider didn't report usage. It is a fallback, not a billing source of
// truth.
func EstimateCost(promptText, completionText string) float64 {
	enc := sharedEncoding()
	if enc == nil {
		return 0
	}
	inputTokens := len(enc.Encode(promptText, nil, nil))
	outputTokens := len(enc.Encode(completionText, nil, nil))

	return float64(inputTokens)/1000*costPerThousandInputTokens +
		float64(outputTokens)/1000*costPerThousandOutputTokens
}
