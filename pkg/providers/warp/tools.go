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
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ToolTimeout bounds local tool execution.
const ToolTimeout = 30 * time.Second

// AllowedCommands is the local-execution allowlist, matching the command
// names the tool-call decoder can extract.
var AllowedCommands = map[string]bool{
	"ls": true, "cat": true, "grep": true, "find": true, "shell": true,
}

// shellMetacharacters are rejected in args unless the command is explicitly
// "shell".
const shellMetacharacters = "|&;$`<>(){}\n"

// vetToolCommand checks a decoded tool call against the allowlist and
// metacharacter policy, returning a non-empty rejection message when the
// command must not run. Both the host and sandbox executors gate on it
// before anything executes.
func vetToolCommand(command, args string) string {
	if !AllowedCommands[command] {
		return fmt.Sprintf("command %q is not on the local execution allowlist", command)
	}
	if command != "shell" && strings.ContainsAny(args, shellMetacharacters) {
		return fmt.Sprintf("command %q rejected: args contain shell metacharacters", command)
	}
	return ""
}

// toolCommandArgv translates a vetted tool call into the argv to run.
// "shell" hands the whole args string to sh; everything else is a plain
// argument list the shell never re-interprets.
func toolCommandArgv(command, args string) []string {
	if command == "shell" {
		return []string{"sh", "-c", args}
	}
	return append([]string{command}, strings.Fields(args)...)
}

// ToolExecutor runs one of the commands the agentic loop decodes from the
// upstream directly on the host and captures its outcome. It is the
// fallback when no Docker daemon is available; SandboxExecutor is the
// default execution path.
type ToolExecutor struct {
	WorkingDir string
}

// ToolOutcome is what the agentic loop feeds back as a tool-result message.
// Errors never abort the loop; they are captured in Error and rendered into
// the result text instead.
type ToolOutcome struct {
	Stdout string
	Stderr string
	Error  string
}

// Execute runs command (one of AllowedCommands) with args, honoring
// ToolTimeout and the parent process environment. Commands other than
// "shell" are rejected if args contain shell metacharacters, since they are
// expected to be plain argument lists, not a string the local shell
// re-interprets.
func (e *ToolExecutor) Execute(ctx context.Context, command, args string) ToolOutcome {
	return e.executeWithTimeout(ctx, command, args, ToolTimeout)
}

// executeWithTimeout is Execute with an injectable timeout, split out so
// tests can exercise the timeout path without waiting out ToolTimeout.
func (e *ToolExecutor) executeWithTimeout(ctx context.Context, command, args string, timeout time.Duration) ToolOutcome {
	if msg := vetToolCommand(command, args); msg != "" {
		return ToolOutcome{Error: msg}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := toolCommandArgv(command, args)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if e.WorkingDir != "" {
		cmd.Dir = e.WorkingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	outcome := ToolOutcome{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			outcome.Error = fmt.Sprintf("command timed out after %s", timeout)
		} else {
			outcome.Error = err.Error()
		}
	}
	return outcome
}

// Render formats an outcome as the tool-result text fed back to the model
// on the next iteration.
func (o ToolOutcome) Render() string {
	if o.Error != "" {
		return "error: " + o.Error
	}
	if o.Stderr != "" {
		return o.Stdout + "\n" + o.Stderr
	}
	return o.Stdout
}
