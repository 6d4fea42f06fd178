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
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"

	"github.com/stratumgate/gateway/internal/log"
)

// DefaultSandboxImage is the container image tool commands run in when no
// image is configured.
const DefaultSandboxImage = "alpine:3.20"

// sandboxMaxExecutions bounds how many commands run in one container before
// it is rotated for a fresh one.
const sandboxMaxExecutions = 1000

// Resource ceilings for the sandbox container. Tool calls are small
// file/search commands; anything that needs more than this is not something
// an upstream directive should be running.
const (
	sandboxMemoryBytes = 256 << 20
	sandboxNanoCPUs    = 1_000_000_000
	sandboxPidsLimit   = 128
)

// SandboxExecutor runs tool commands inside a dedicated Docker container
// instead of the gateway's own process environment. The container has no
// network, capped memory/CPU/pids, and is rotated after
// sandboxMaxExecutions commands. The same allowlist and metacharacter
// policy as ToolExecutor applies before anything reaches the container.
//
// Thread safety: Execute serializes on an internal mutex, matching the
// agentic loop's sequential execution order.
type SandboxExecutor struct {
	mu     sync.Mutex
	docker *client.Client
	image  string

	containerID string
	executions  int
}

// NewSandboxExecutor connects to the Docker daemon at dockerHost (empty
// means DOCKER_HOST, then the default unix socket) and verifies it is
// reachable. The container itself is created lazily on first Execute.
func NewSandboxExecutor(ctx context.Context, dockerHost, img string) (*SandboxExecutor, error) {
	if dockerHost == "" {
		dockerHost = detectDockerHost()
	}
	if img == "" {
		img = DefaultSandboxImage
	}

	docker, err := client.NewClientWithOpts(
		client.WithHost(dockerHost),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	if _, err := docker.Ping(ctx); err != nil {
		docker.Close()
		return nil, fmt.Errorf("ping docker daemon: %w", err)
	}

	log.Info("docker sandbox ready", zap.String("docker_host", dockerHost), zap.String("image", img))
	return &SandboxExecutor{docker: docker, image: img}, nil
}

// detectDockerHost finds the Docker daemon endpoint: DOCKER_HOST if set,
// else the default unix socket.
func detectDockerHost() string {
	if host := os.Getenv("DOCKER_HOST"); host != "" {
		return host
	}
	return "unix:///var/run/docker.sock"
}

// Execute runs command inside the sandbox container, honoring ToolTimeout.
// Vetting failures and execution errors are captured in the outcome; they
// never abort the agentic loop.
func (s *SandboxExecutor) Execute(ctx context.Context, command, args string) ToolOutcome {
	if msg := vetToolCommand(command, args); msg != "" {
		return ToolOutcome{Error: msg}
	}

	ctx, cancel := context.WithTimeout(ctx, ToolTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureContainer(ctx); err != nil {
		return ToolOutcome{Error: fmt.Sprintf("sandbox unavailable: %v", err)}
	}

	stdout, stderr, exitCode, err := s.execInContainer(ctx, toolCommandArgv(command, args))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			// The exec may still be running inside the container; rotate so
			// a hung command can't poison later executions.
			s.removeContainerLocked()
			return ToolOutcome{Stdout: stdout, Stderr: stderr, Error: fmt.Sprintf("command timed out after %s", ToolTimeout)}
		}
		return ToolOutcome{Stdout: stdout, Stderr: stderr, Error: err.Error()}
	}

	s.executions++
	if s.executions >= sandboxMaxExecutions {
		log.Info("rotating sandbox container",
			zap.String("container_id", s.containerID),
			zap.Int("executions", s.executions),
		)
		s.removeContainerLocked()
	}

	outcome := ToolOutcome{Stdout: stdout, Stderr: stderr}
	if exitCode != 0 {
		outcome.Error = fmt.Sprintf("exit status %d", exitCode)
	}
	return outcome
}

// ensureContainer creates and starts the sandbox container if none is live.
// Callers must hold s.mu.
func (s *SandboxExecutor) ensureContainer(ctx context.Context) error {
	if s.containerID != "" {
		return nil
	}

	reader, err := s.docker.ImagePull(ctx, s.image, image.PullOptions{})
	if err != nil {
		// The image may already be present locally; container creation
		// below is the authoritative failure point.
		log.Debug("sandbox image pull failed, relying on local image", zap.String("image", s.image), zap.Error(err))
	} else {
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
	}

	pidsLimit := int64(sandboxPidsLimit)
	resp, err := s.docker.ContainerCreate(ctx,
		&container.Config{
			Image:      s.image,
			Cmd:        []string{"sleep", "infinity"},
			WorkingDir: "/workspace",
		},
		&container.HostConfig{
			NetworkMode: "none",
			Resources: container.Resources{
				Memory:    sandboxMemoryBytes,
				NanoCPUs:  sandboxNanoCPUs,
				PidsLimit: &pidsLimit,
			},
		},
		nil, nil, "")
	if err != nil {
		return fmt.Errorf("create sandbox container: %w", err)
	}
	if err := s.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = s.docker.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("start sandbox container: %w", err)
	}

	log.Info("sandbox container started", zap.String("container_id", resp.ID), zap.String("image", s.image))
	s.containerID = resp.ID
	s.executions = 0
	return nil
}

// execInContainer runs argv via the Docker exec API and captures the
// demultiplexed stdout/stderr plus the exit code.
func (s *SandboxExecutor) execInContainer(ctx context.Context, argv []string) (string, string, int, error) {
	execID, err := s.docker.ContainerExecCreate(ctx, s.containerID, container.ExecOptions{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("create exec: %w", err)
	}

	attach, err := s.docker.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", "", 0, fmt.Errorf("attach exec: %w", err)
	}
	defer attach.Close()

	var stdoutBuf, stderrBuf strings.Builder
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, attach.Reader); err != nil && err != io.EOF {
		return stdoutBuf.String(), stderrBuf.String(), 0, fmt.Errorf("read exec output: %w", err)
	}

	inspect, err := s.docker.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return stdoutBuf.String(), stderrBuf.String(), 0, fmt.Errorf("inspect exec: %w", err)
	}
	return stdoutBuf.String(), stderrBuf.String(), inspect.ExitCode, nil
}

// removeContainerLocked force-removes the current container; the next
// Execute creates a fresh one. Callers must hold s.mu.
func (s *SandboxExecutor) removeContainerLocked() {
	if s.containerID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.docker.ContainerRemove(ctx, s.containerID, container.RemoveOptions{Force: true}); err != nil {
		log.Warn("failed to remove sandbox container", zap.String("container_id", s.containerID), zap.Error(err))
	}
	s.containerID = ""
	s.executions = 0
}

// Close removes the sandbox container and releases the Docker client.
func (s *SandboxExecutor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeContainerLocked()
	return s.docker.Close()
}
