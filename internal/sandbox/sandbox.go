// Package sandbox manages per-session container lifecycle: create, reuse,
// inspect, exec, read/write files, destroy. Each container is a persistent,
// per-session shell addressed by session id: the engine execs into it
// repeatedly rather than spinning up a one-shot "run and exit" process per
// tool call.
package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

// Image is the fixed sandbox image tag. The runtime never pulls it; its
// absence is a fatal, remediated error.
const Image = "claudesmith:latest"

const (
	defaultMemoryBytes     = 4 << 30 // 4 GiB
	defaultMemorySwapBytes = 4 << 30
	defaultCPUCount        = 2
	createTimeout          = 120 * time.Second
	imagePullTimeout       = 300 * time.Second
)

// ContainerName returns the canonical name for a session's container.
func ContainerName(sessionID string) string {
	return "claude-agent-" + sessionID
}

// Status reports a live container's resource usage.
type Status struct {
	Running    bool
	CPUPercent float64
	MemoryRSS  int64
}

// FileInfo is one entry from listFiles.
type FileInfo struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	IsDir   bool   `json:"is_dir"`
	ModTime string `json:"mod_time"`
}

// ExecResult is the outcome of exec.
type ExecResult struct {
	Stdout        string
	Stderr        string
	ExitCode      int
	ExecutionTime time.Duration
}

// Backend is the pluggable container runtime, implemented today by the
// CLI-shelled Docker backend; the interface leaves room for a stronger-
// isolation backend (a microVM runtime, say) without touching the
// Controller.
type Backend interface {
	IsAvailable(ctx context.Context) bool
	EnsureImage(ctx context.Context) error
	CreateContainer(ctx context.Context, name string, mounts []agentspec.BindMount) (string, error)
	IsRunning(ctx context.Context, containerID string) (bool, error)
	Exec(ctx context.Context, containerID, command, cwd string, timeout time.Duration) (ExecResult, error)
	Stats(ctx context.Context, containerID string) (Status, error)
	Stop(ctx context.Context, containerID string) error
	Remove(ctx context.Context, containerID string) error
	FindByName(ctx context.Context, name string) (string, error)
}

// ErrSandboxUnavailable is returned when the container engine is not
// running or the fixed image is missing. Callers should treat it as fatal
// for the session and surface the remediation message.
type ErrSandboxUnavailable struct {
	Remediation string
}

func (e *ErrSandboxUnavailable) Error() string {
	return "sandbox unavailable: " + e.Remediation
}

// Controller owns the process-wide session→container map and mediates every
// container operation. There is exactly one Controller per process; it is
// constructed once at startup and injected into every subsystem that needs
// it (the Execution Engine, Tool Server), rather than relying on package-
// level global state surviving module reloads.
type Controller struct {
	backend Backend

	mu      sync.RWMutex
	byID    map[string]*agentspec.ContainerHandle // sessionID -> handle
}

// New constructs a Controller backed by the given container runtime.
func New(backend Backend) *Controller {
	return &Controller{backend: backend, byID: make(map[string]*agentspec.ContainerHandle)}
}

// EnsureImage verifies the fixed image exists locally; it never pulls.
func (c *Controller) EnsureImage(ctx context.Context) error {
	pullCtx, cancel := context.WithTimeout(ctx, imagePullTimeout)
	defer cancel()
	if err := c.backend.EnsureImage(pullCtx); err != nil {
		return &ErrSandboxUnavailable{Remediation: fmt.Sprintf("image %s not found locally; build it before starting a session: %v", Image, err)}
	}
	return nil
}

// IsAvailable pings the container engine.
func (c *Controller) IsAvailable(ctx context.Context) bool {
	return c.backend.IsAvailable(ctx)
}

// Create ensures a single live container exists for sessionID and returns
// its handle. If a container is already mapped and running, it is reused.
// If mapped but not running, it is destroyed and recreated. Any orphan
// container bearing the canonical name is removed first.
func (c *Controller) Create(ctx context.Context, sessionID string, mounts []agentspec.BindMount) (*agentspec.ContainerHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byID[sessionID]; ok {
		running, err := c.backend.IsRunning(ctx, existing.ID)
		if err == nil && running {
			return existing, nil
		}
		_ = c.backend.Remove(ctx, existing.ID)
		delete(c.byID, sessionID)
	}

	name := ContainerName(sessionID)
	if orphanID, err := c.backend.FindByName(ctx, name); err == nil && orphanID != "" {
		_ = c.backend.Stop(ctx, orphanID)
		_ = c.backend.Remove(ctx, orphanID)
	}

	createCtx, cancel := context.WithTimeout(ctx, createTimeout)
	defer cancel()

	id, err := c.backend.CreateContainer(createCtx, name, mounts)
	if err != nil {
		return nil, &ErrSandboxUnavailable{Remediation: fmt.Sprintf("failed to create container %s: %v", name, err)}
	}

	handle := &agentspec.ContainerHandle{ID: id, SessionID: sessionID, Mounts: mounts, CreatedAt: time.Now()}
	c.byID[sessionID] = handle
	return handle, nil
}

func (c *Controller) handleFor(sessionID string) (*agentspec.ContainerHandle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.byID[sessionID]
	return h, ok
}

// Exec runs command in the container via `bash -c`, returning exit 124 on
// timeout rather than an error.
func (c *Controller) Exec(ctx context.Context, sessionID, command, cwd string, timeout time.Duration) (ExecResult, error) {
	handle, ok := c.handleFor(sessionID)
	if !ok {
		return ExecResult{}, fmt.Errorf("sandbox: no container for session %s", sessionID)
	}
	return c.backend.Exec(ctx, handle.ID, command, cwd, timeout)
}

// ReadFile runs `cat` against path and returns its stdout; a non-zero exit
// is surfaced as an error (the caller, typically the Tool Server, decides
// whether to report it to the model).
func (c *Controller) ReadFile(ctx context.Context, sessionID, path string) (string, error) {
	res, err := c.Exec(ctx, sessionID, "cat "+shellQuote(path), "/scratch", 30*time.Second)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("sandbox: read %s failed (exit %d): %s", path, res.ExitCode, res.Stderr)
	}
	return res.Stdout, nil
}

// WriteFile creates the parent directory then writes content via a heredoc
// whose delimiter is a freshly generated random token, so no content value
// can prematurely close the heredoc and inject a command.
func (c *Controller) WriteFile(ctx context.Context, sessionID, path, content string) error {
	delim, err := randomDelimiter()
	if err != nil {
		return fmt.Errorf("sandbox: generating heredoc delimiter: %w", err)
	}
	dir := parentDir(path)
	script := fmt.Sprintf("mkdir -p %s && cat > %s <<'%s'\n%s\n%s\n",
		shellQuote(dir), shellQuote(path), delim, content, delim)
	res, err := c.Exec(ctx, sessionID, script, "/scratch", 30*time.Second)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("sandbox: write %s failed (exit %d): %s", path, res.ExitCode, res.Stderr)
	}
	return nil
}

// ListFiles runs `find -maxdepth 1` with a stat format string and parses one
// entry per line.
func (c *Controller) ListFiles(ctx context.Context, sessionID, dir string) ([]FileInfo, error) {
	cmd := fmt.Sprintf(`find %s -maxdepth 1 -printf '{"name":"%%f","size":%%s,"is_dir":"%%y","mod_time":"%%T@"}\n'`, shellQuote(dir))
	res, err := c.Exec(ctx, sessionID, cmd, dir, 15*time.Second)
	if err != nil {
		return nil, err
	}
	return parseFileInfoLines(res.Stdout), nil
}

// GetStatus reports the container's derived CPU percent and memory usage.
func (c *Controller) GetStatus(ctx context.Context, sessionID string) (Status, error) {
	handle, ok := c.handleFor(sessionID)
	if !ok {
		return Status{}, fmt.Errorf("sandbox: no container for session %s", sessionID)
	}
	return c.backend.Stats(ctx, handle.ID)
}

// Destroy stops and removes sessionID's container and unmaps it.
func (c *Controller) Destroy(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	handle, ok := c.byID[sessionID]
	if ok {
		delete(c.byID, sessionID)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	_ = c.backend.Stop(ctx, handle.ID)
	return c.backend.Remove(ctx, handle.ID)
}

// CleanupAll stops and removes every container in this controller's
// session map and clears the map. Containers not in the map (for example
// ones left by another process) are not removed.
func (c *Controller) CleanupAll(ctx context.Context) {
	c.mu.Lock()
	handles := make([]*agentspec.ContainerHandle, 0, len(c.byID))
	for _, h := range c.byID {
		handles = append(handles, h)
	}
	c.byID = make(map[string]*agentspec.ContainerHandle)
	c.mu.Unlock()

	for _, h := range handles {
		_ = c.backend.Stop(ctx, h.ID)
		_ = c.backend.Remove(ctx, h.ID)
	}
}

func randomDelimiter() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "EOF_" + hex.EncodeToString(buf), nil
}
