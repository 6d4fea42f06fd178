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
	"time"

	"github.com/stratumgate/gateway/pkg/assembler"
	"github.com/stratumgate/gateway/pkg/chatapi"
	"github.com/stratumgate/gateway/pkg/providers/warp/wire"
)

// Entrypoint identifies this gateway to the upstream in the metadata block.
const Entrypoint = "stratumgate"

// BuildRequest assembles one wire request from the session's accumulated
// messages plus a fresh user query. wire.Request has no field for tool
// specs, so the assembler's normalized tools are not sent; Warp has no
// per-provider tool denylist, so nil is passed.
func BuildRequest(sess Session, chatReq chatapi.ChatRequest, now time.Time) wire.Request {
	assembled := assembler.Assemble(chatReq, nil)

	messages := make([]wire.MessageWire, 0, len(sess.Messages)+len(assembled.History)*2+1)
	messages = append(messages, sess.Messages...)
	for _, turn := range assembled.History {
		messages = append(messages,
			wire.MessageWire{CascadeID: sess.CascadeID, TurnID: sess.TurnID, Role: string(turn.User.Role), Text: turn.User.Content.PlainText()},
			wire.MessageWire{CascadeID: sess.CascadeID, TurnID: sess.TurnID, Role: string(turn.Assistant.Role), Text: turn.Assistant.Content.PlainText()},
		)
	}

	userQuery := assembled.CurrentMessage.Content.PlainText()

	return wire.Request{
		Cascade: wire.CascadeInfo{
			CascadeID: sess.CascadeID,
			Title:     sess.ModelID,
			Messages:  messages,
			ModelID:   sess.ModelID,
		},
		Environment: wire.Environment{
			WorkingDir:   sess.WorkingDir,
			HomeDir:      sess.HomeDir,
			ShellName:    sess.ShellName,
			ShellVersion: sess.ShellVersion,
			Timestamp:    wire.NewTimestamp(now.UnixMilli()),
			Repo:         sess.Repo,
			Branch:       sess.Branch,
		},
		UserQuery: userQuery,
		Metadata: wire.Metadata{
			Entrypoint:   Entrypoint,
			AutoResume:   len(sess.Messages) > 0,
			AutoDetected: sess.Repo != "",
		},
	}
}

// AppendUserTurn returns the wire message representing one new user query
// appended to an existing session (used by the agentic loop once, at the
// start of each Run).
func AppendUserTurn(sess Session, text string) wire.MessageWire {
	return wire.MessageWire{CascadeID: sess.CascadeID, TurnID: sess.TurnID, Role: "user", Text: text}
}

// AppendAssistantTurn returns the wire message for the assistant's
// accumulated text from one iteration.
func AppendAssistantTurn(sess Session, text string) wire.MessageWire {
	return wire.MessageWire{CascadeID: sess.CascadeID, TurnID: sess.TurnID, Role: "assistant", Text: text}
}

// AppendToolResultTurn returns the wire message carrying one tool's captured
// output back to the model on the next iteration.
func AppendToolResultTurn(sess Session, text string) wire.MessageWire {
	return wire.MessageWire{CascadeID: sess.CascadeID, TurnID: sess.TurnID, Role: "tool", Text: text}
}
