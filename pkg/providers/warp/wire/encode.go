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

package wire

import "google.golang.org/protobuf/encoding/protowire"

// Field numbers for the top-level Request message.
const (
	fieldCascadeInfo        protowire.Number = 1
	fieldEnvironment        protowire.Number = 2
	fieldUserQuery          protowire.Number = 3
	fieldModelConfiguration protowire.Number = 4
	fieldMetadata           protowire.Number = 5
)

// Field numbers within CascadeInfo.
const (
	fieldCascadeID protowire.Number = 1
	fieldTitle     protowire.Number = 2
	fieldMessages  protowire.Number = 3
	fieldModelID   protowire.Number = 4
)

// Field numbers within a single Message.
const (
	fieldMsgCascadeID protowire.Number = 1
	fieldMsgTurnID    protowire.Number = 2
	fieldMsgRole      protowire.Number = 3
	fieldMsgText      protowire.Number = 4
)

// Field numbers within Environment. Repo and Branch sit at 8 and 11 because
// the upstream server keys off them positionally.
const (
	fieldWorkingDir   protowire.Number = 1
	fieldHomeDir      protowire.Number = 2
	fieldShellName    protowire.Number = 3
	fieldShellVersion protowire.Number = 4
	fieldTimestamp    protowire.Number = 5
	fieldRepo         protowire.Number = 8
	fieldBranch       protowire.Number = 11
)

// Field numbers within Timestamp.
const (
	fieldSeconds protowire.Number = 1
	fieldNanos   protowire.Number = 2
)

// Field numbers within Metadata.
const (
	fieldEntrypoint   protowire.Number = 1
	fieldAutoResume   protowire.Number = 2
	fieldAutoDetected protowire.Number = 3
)

// Field number for the UserQuery sub-message's sole text field.
const fieldUserQueryText protowire.Number = 1

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendSubmessage(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	var n uint64
	if v {
		n = 1
	}
	return appendVarint(b, num, n)
}

func encodeTimestamp(ts Timestamp) []byte {
	var b []byte
	b = appendVarint(b, fieldSeconds, uint64(ts.Seconds))
	b = appendVarint(b, fieldNanos, uint64(ts.Nanos))
	return b
}

func encodeMessage(m MessageWire) []byte {
	var b []byte
	b = appendString(b, fieldMsgCascadeID, m.CascadeID)
	b = appendString(b, fieldMsgTurnID, m.TurnID)
	b = appendString(b, fieldMsgRole, m.Role)
	b = appendString(b, fieldMsgText, m.Text)
	return b
}

func encodeCascade(c CascadeInfo) []byte {
	var b []byte
	b = appendString(b, fieldCascadeID, c.CascadeID)
	b = appendString(b, fieldTitle, c.Title)
	for _, m := range c.Messages {
		b = appendSubmessage(b, fieldMessages, encodeMessage(m))
	}
	b = appendString(b, fieldModelID, c.ModelID)
	return b
}

func encodeEnvironment(e Environment) []byte {
	var b []byte
	b = appendString(b, fieldWorkingDir, e.WorkingDir)
	b = appendString(b, fieldHomeDir, e.HomeDir)
	b = appendString(b, fieldShellName, e.ShellName)
	b = appendString(b, fieldShellVersion, e.ShellVersion)
	b = appendSubmessage(b, fieldTimestamp, encodeTimestamp(e.Timestamp))
	if e.Repo != "" {
		b = appendString(b, fieldRepo, e.Repo)
	}
	if e.Branch != "" {
		b = appendString(b, fieldBranch, e.Branch)
	}
	return b
}

func encodeMetadata(m Metadata) []byte {
	var b []byte
	b = appendString(b, fieldEntrypoint, m.Entrypoint)
	b = appendBool(b, fieldAutoResume, m.AutoResume)
	b = appendBool(b, fieldAutoDetected, m.AutoDetected)
	return b
}

// Encode serializes req in the field order the upstream was observed to
// accept: cascade info, environment (with its optional fresh user-query
// sibling), the fixed model-configuration blob, then metadata.
func Encode(req Request) []byte {
	var b []byte
	b = appendSubmessage(b, fieldCascadeInfo, encodeCascade(req.Cascade))
	b = appendSubmessage(b, fieldEnvironment, encodeEnvironment(req.Environment))
	if req.UserQuery != "" {
		var uq []byte
		uq = appendString(uq, fieldUserQueryText, req.UserQuery)
		b = appendSubmessage(b, fieldUserQuery, uq)
	}
	b = appendSubmessage(b, fieldModelConfiguration, ModelConfigurationBlob)
	b = appendSubmessage(b, fieldMetadata, encodeMetadata(req.Metadata))
	return b
}
