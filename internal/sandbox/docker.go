package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

// DockerBackend shells out to the docker CLI directly, using the same flag
// conventions as a one-shot sandboxed executor (--network, --memory,
// --memory-swap, --pids-limit, --cpus) but calling `create`+`start` once
// per session instead of `run --rm` per call, so the container survives
// across many exec calls.
type DockerBackend struct {
	networkEnabled bool
}

// NewDockerBackend constructs a Docker-CLI backend. networkEnabled alone
// selects bridge networking; when it is false containers run with
// --network none. No agent-config field sets it.
func NewDockerBackend(networkEnabled bool) *DockerBackend {
	return &DockerBackend{networkEnabled: networkEnabled}
}

func (b *DockerBackend) IsAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "info")
	return cmd.Run() == nil
}

func (b *DockerBackend) EnsureImage(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "image", "inspect", Image)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("image %s not present locally: %s", Image, stderr.String())
	}
	return nil
}

func (b *DockerBackend) baseArgs(name string, mounts []agentspec.BindMount) []string {
	args := []string{
		"create",
		"--name", name,
		"--workdir", "/scratch",
		"--tty",
		"--memory", strconv.Itoa(defaultMemoryBytes),
		"--memory-swap", strconv.Itoa(defaultMemoryBytes + defaultMemorySwapBytes),
		"--cpus", strconv.Itoa(defaultCPUCount),
		"--pids-limit", "512",
		"--ulimit", "nofile=1024:1024",
	}
	if b.networkEnabled {
		args = append(args, "--network", "bridge")
	} else {
		args = append(args, "--network", "none")
	}
	for _, m := range mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		args = append(args, "-v", fmt.Sprintf("%s:%s:%s", m.HostPath, m.ContainerPath, mode))
	}
	args = append(args, Image, "/bin/sh", "-c", "while true; do sleep 3600; done")
	return args
}

func (b *DockerBackend) CreateContainer(ctx context.Context, name string, mounts []agentspec.BindMount) (string, error) {
	createCmd := exec.CommandContext(ctx, "docker", b.baseArgs(name, mounts)...)
	var stdout, stderr bytes.Buffer
	createCmd.Stdout = &stdout
	createCmd.Stderr = &stderr
	if err := createCmd.Run(); err != nil {
		return "", fmt.Errorf("docker create: %w: %s", err, stderr.String())
	}
	id := strings.TrimSpace(stdout.String())

	startCmd := exec.CommandContext(ctx, "docker", "start", id)
	if err := startCmd.Run(); err != nil {
		return "", fmt.Errorf("docker start: %w", err)
	}
	return id, nil
}

func (b *DockerBackend) IsRunning(ctx context.Context, containerID string) (bool, error) {
	cmd := exec.CommandContext(ctx, "docker", "inspect", "-f", "{{.State.Running}}", containerID)
	out, err := cmd.Output()
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(out)) == "true", nil
}

func (b *DockerBackend) FindByName(ctx context.Context, name string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", "ps", "-aq", "--filter", "name=^"+name+"$")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (b *DockerBackend) Exec(ctx context.Context, containerID, command, cwd string, timeout time.Duration) (ExecResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{"exec", "-w", cwd, containerID, "bash", "-c", command}
	cmd := exec.CommandContext(execCtx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if execCtx.Err() == context.DeadlineExceeded {
		return ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: 124, ExecutionTime: elapsed}, nil
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return ExecResult{}, fmt.Errorf("docker exec: %w", err)
		}
	}
	return ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode, ExecutionTime: elapsed}, nil
}

func (b *DockerBackend) Stats(ctx context.Context, containerID string) (Status, error) {
	running, err := b.IsRunning(ctx, containerID)
	if err != nil {
		return Status{}, err
	}
	cmd := exec.CommandContext(ctx, "docker", "stats", "--no-stream", "--format",
		"{{.CPUPerc}}|{{.MemUsage}}", containerID)
	out, err := cmd.Output()
	if err != nil {
		return Status{Running: running}, nil
	}
	parts := strings.SplitN(strings.TrimSpace(string(out)), "|", 2)
	var cpuPct float64
	var memBytes int64
	if len(parts) == 2 {
		cpuPct, _ = strconv.ParseFloat(strings.TrimSuffix(parts[0], "%"), 64)
		memBytes = parseMemUsage(parts[1])
	}
	return Status{Running: running, CPUPercent: cpuPct, MemoryRSS: memBytes}, nil
}

func parseMemUsage(s string) int64 {
	field := strings.TrimSpace(strings.SplitN(s, "/", 2)[0])
	field = strings.ToLower(field)
	mult := int64(1)
	switch {
	case strings.HasSuffix(field, "gib"):
		mult = 1 << 30
		field = strings.TrimSuffix(field, "gib")
	case strings.HasSuffix(field, "mib"):
		mult = 1 << 20
		field = strings.TrimSuffix(field, "mib")
	case strings.HasSuffix(field, "kib"):
		mult = 1 << 10
		field = strings.TrimSuffix(field, "kib")
	}
	val, _ := strconv.ParseFloat(strings.TrimSpace(field), 64)
	return int64(val * float64(mult))
}

func (b *DockerBackend) Stop(ctx context.Context, containerID string) error {
	return exec.CommandContext(ctx, "docker", "stop", "-t", "5", containerID).Run()
}

func (b *DockerBackend) Remove(ctx context.Context, containerID string) error {
	return exec.CommandContext(ctx, "docker", "rm", "-f", containerID).Run()
}
