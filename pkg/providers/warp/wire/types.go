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

// Package wire is the Warp wire codec: a hand-rolled protobuf encoder for
// the request message graph and a structural, non-reflective decoder for the
// SSE+base64+protobuf response stream.
package wire

// Timestamp splits a millisecond-resolution clock reading into the
// (seconds, nanos) pair the wire format uses.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

// NewTimestamp derives a Timestamp from a millisecond Unix clock reading.
func NewTimestamp(unixMilli int64) Timestamp {
	return Timestamp{
		Seconds: unixMilli / 1000,
		Nanos:   int32((unixMilli % 1000) * 1_000_000),
	}
}

// MessageWire is one turn in a CascadeInfo's message list.
type MessageWire struct {
	CascadeID string
	TurnID    string
	Role      string
	Text      string
}

// CascadeInfo is the session-identifying submessage.
type CascadeInfo struct {
	CascadeID string
	Title     string
	Messages  []MessageWire
	ModelID   string
}

// Environment carries the client machine context the upstream expects on
// every request. Repo and Branch are only emitted when non-empty.
type Environment struct {
	WorkingDir   string
	HomeDir      string
	ShellName    string
	ShellVersion string
	Timestamp    Timestamp
	Repo         string
	Branch       string
}

// Metadata is the small bag of per-request flags the upstream expects.
type Metadata struct {
	Entrypoint   string
	AutoResume   bool
	AutoDetected bool
}

// Request is the full message graph encoded onto the wire.
type Request struct {
	Cascade     CascadeInfo
	Environment Environment
	// UserQuery is the optional fresh user-query sub-message; empty means
	// omit it entirely.
	UserQuery string
	Metadata  Metadata
}

// ModelConfigurationBlob is the fixed model-family enum set the upstream
// validates byte-for-byte. Do not normalize or regenerate it; the server
// rejects any other byte sequence.
var ModelConfigurationBlob = []byte{0x08, 0x01, 0x10, 0x01, 0x18, 0x01}
