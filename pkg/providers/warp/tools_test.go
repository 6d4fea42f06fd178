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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolExecutor_RunsAllowedCommand(t *testing.T) {
	exec := &ToolExecutor{}
	outcome := exec.Execute(context.Background(), "ls", "/tmp")
	assert.Equal(t, "", outcome.Error)
}

func TestToolExecutor_RejectsDisallowedCommand(t *testing.T) {
	exec := &ToolExecutor{}
	outcome := exec.Execute(context.Background(), "rm", "-rf /")
	require.NotEmpty(t, outcome.Error)
	assert.Contains(t, outcome.Error, "not on the local execution allowlist")
}

func TestToolExecutor_RejectsShellMetacharactersForNonShellCommand(t *testing.T) {
	exec := &ToolExecutor{}
	outcome := exec.Execute(context.Background(), "cat", "file.txt; rm -rf /")
	require.NotEmpty(t, outcome.Error)
	assert.Contains(t, outcome.Error, "shell metacharacters")
}

func TestToolExecutor_AllowsMetacharactersForShellCommand(t *testing.T) {
	exec := &ToolExecutor{}
	outcome := exec.Execute(context.Background(), "shell", "echo one && echo two")
	assert.Equal(t, "", outcome.Error)
	assert.Contains(t, outcome.Stdout, "one")
	assert.Contains(t, outcome.Stdout, "two")
}

func TestToolExecutor_TimesOutLongRunningCommand(t *testing.T) {
	exec := &ToolExecutor{}
	outcome := exec.executeWithTimeout(context.Background(), "shell", "sleep 2", 10*time.Millisecond)
	require.NotEmpty(t, outcome.Error)
	assert.Contains(t, outcome.Error, "timed out")
}

func TestToolOutcome_RenderPrefersErrorThenStderr(t *testing.T) {
	assert.Equal(t, "error: boom", ToolOutcome{Error: "boom", Stdout: "ignored"}.Render())
	assert.Equal(t, "out\nerr", ToolOutcome{Stdout: "out", Stderr: "err"}.Render())
	assert.Equal(t, "out", ToolOutcome{Stdout: "out"}.Render())
}

func TestToolExecutor_RunsInWorkingDir(t *testing.T) {
	exec := &ToolExecutor{WorkingDir: "/tmp"}
	outcome := exec.Execute(context.Background(), "shell", "pwd")
	assert.True(t, strings.TrimSpace(outcome.Stdout) == "/tmp" || strings.Contains(outcome.Stdout, "/tmp"))
}

func TestSandboxExecutor_VetsBeforeTouchingDocker(t *testing.T) {
	// A zero-value executor has no Docker client; vetting must reject the
	// command before anything would reach the daemon.
	sandbox := &SandboxExecutor{}

	outcome := sandbox.Execute(context.Background(), "rm", "-rf /")
	require.NotEmpty(t, outcome.Error)
	assert.Contains(t, outcome.Error, "not on the local execution allowlist")

	outcome = sandbox.Execute(context.Background(), "cat", "f; rm -rf /")
	require.NotEmpty(t, outcome.Error)
	assert.Contains(t, outcome.Error, "shell metacharacters")
}

func TestToolCommandArgv_ShellVsArgumentList(t *testing.T) {
	assert.Equal(t, []string{"sh", "-c", "echo hi && echo bye"}, toolCommandArgv("shell", "echo hi && echo bye"))
	assert.Equal(t, []string{"grep", "-n", "foo", "main.go"}, toolCommandArgv("grep", "-n foo main.go"))
}
