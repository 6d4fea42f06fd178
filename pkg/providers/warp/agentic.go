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

package warp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stratumgate/gateway/internal/log"
	"github.com/stratumgate/gateway/pkg/chatapi"
)

// DefaultMaxIterations bounds the agentic loop.
const DefaultMaxIterations = 20

// ExecutedTool is one tool call the loop resolved locally, kept so the
// caller sees the full trail of executed tool calls and their outputs.
type ExecutedTool struct {
	Call    chatapi.ToolCall
	Outcome ToolOutcome
}

// Result is the loop's output: the aggregated assistant text across all
// iterations, the executed tool trail, and whether the loop hit
// MaxIterations without reaching a tool-call-free turn.
type Result struct {
	Text                 string
	Executed             []ExecutedTool
	MaxIterationsReached bool
}

// Executor resolves one decoded tool call locally. ToolExecutor runs on
// the host; SandboxExecutor runs inside a Docker container.
type Executor interface {
	Execute(ctx context.Context, command, args string) ToolOutcome
}

// Loop drives a bounded multi-turn conversation where each turn may produce
// text only, or one or more tool calls the loop resolves locally and feeds
// back as tool-results on the next iteration.
type Loop struct {
	Engine           *Engine
	Sessions         *SessionStore
	Executor         Executor
	MaxIterations    int
	AutoExecuteTools bool
}

// NewLoop constructs a Loop with default bounds. AutoExecuteTools defaults
// to true; callers that want tool calls surfaced without local execution
// should set it false after construction.
func NewLoop(engine *Engine, sessions *SessionStore, executor Executor) *Loop {
	return &Loop{
		Engine:           engine,
		Sessions:         sessions,
		Executor:         executor,
		MaxIterations:    DefaultMaxIterations,
		AutoExecuteTools: true,
	}
}

// Run executes one user query against sessionID, iterating until the
// upstream produces a tool-call-free turn or MaxIterations is reached. Tool
// calls within one iteration are executed sequentially in upstream-emitted
// order and their results submitted in the same order on the next
// iteration.
func (l *Loop) Run(ctx context.Context, accessToken, sessionID, userQuery string, chatReq chatapi.ChatRequest) (Result, error) {
	sess, err := l.Sessions.BeginTurn(sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("begin turn: %w", err)
	}
	if err := l.Sessions.AppendMessages(sessionID, AppendUserTurn(sess, userQuery)); err != nil {
		l.Sessions.EndTurn(sessionID)
		return Result{}, fmt.Errorf("append user turn: %w", err)
	}

	maxIterations := l.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	var result Result
	for iteration := 0; iteration < maxIterations; iteration++ {
		sess, err = l.Sessions.Get(sessionID)
		if err != nil {
			return result, fmt.Errorf("reload session: %w", err)
		}

		req := BuildRequest(sess, chatReq, time.Now())
		turn, err := l.Engine.Run(ctx, accessToken, req)
		if err != nil {
			return result, fmt.Errorf("agentic iteration %d: %w", iteration, err)
		}

		result.Text += turn.Text
		if turn.Text != "" {
			if err := l.Sessions.AppendMessages(sessionID, AppendAssistantTurn(sess, turn.Text)); err != nil {
				return result, fmt.Errorf("append assistant turn: %w", err)
			}
		}

		if len(turn.ToolCalls) == 0 {
			return result, nil
		}
		if !l.AutoExecuteTools {
			for _, call := range turn.ToolCalls {
				result.Executed = append(result.Executed, ExecutedTool{Call: call})
			}
			return result, nil
		}

		// Sequential, in emitted order; results go back in the same order.
		for _, call := range turn.ToolCalls {
			// RawInput is the full decoded command line; the executor takes
			// the arguments after the command name.
			args := call.RawInput
			if fields := strings.Fields(args); len(fields) > 0 && fields[0] == call.Name {
				args = strings.Join(fields[1:], " ")
			}
			outcome := l.Executor.Execute(ctx, call.Name, args)
			log.Debug("executed local tool", zap.String("command", call.Name), zap.Bool("error", outcome.Error != ""))
			result.Executed = append(result.Executed, ExecutedTool{Call: call, Outcome: outcome})

			sess, err = l.Sessions.Get(sessionID)
			if err != nil {
				return result, fmt.Errorf("reload session before tool result: %w", err)
			}
			if err := l.Sessions.AppendMessages(sessionID, AppendToolResultTurn(sess, outcome.Render())); err != nil {
				return result, fmt.Errorf("append tool result: %w", err)
			}
		}
	}

	result.MaxIterationsReached = true
	return result, nil
}
