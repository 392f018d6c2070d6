package progress

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-agentd/agentcore/internal/sandbox"
	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

type memBackend struct {
	files map[string]string
}

func newMemBackend() *memBackend { return &memBackend{files: map[string]string{}} }

func (m *memBackend) IsAvailable(ctx context.Context) bool  { return true }
func (m *memBackend) EnsureImage(ctx context.Context) error { return nil }
func (m *memBackend) CreateContainer(ctx context.Context, name string, mounts []agentspec.BindMount) (string, error) {
	return "c1", nil
}
func (m *memBackend) IsRunning(ctx context.Context, containerID string) (bool, error) { return true, nil }
func (m *memBackend) Exec(ctx context.Context, containerID, command, cwd string, timeout time.Duration) (sandbox.ExecResult, error) {
	// No journal file has been written in this fake, so every read looks
	// like "file not found" (non-zero exit), matching a fresh session.
	return sandbox.ExecResult{ExitCode: 1, Stderr: "no such file"}, nil
}
func (m *memBackend) Stats(ctx context.Context, containerID string) (sandbox.Status, error) {
	return sandbox.Status{Running: true}, nil
}
func (m *memBackend) Stop(ctx context.Context, containerID string) error   { return nil }
func (m *memBackend) Remove(ctx context.Context, containerID string) error { return nil }
func (m *memBackend) FindByName(ctx context.Context, name string) (string, error) { return "", nil }

func TestLoadMissingReturnsNil(t *testing.T) {
	ctrl := sandbox.New(newMemBackend())
	ctrl.Create(context.Background(), "s1", nil)
	store := New(ctrl)
	state, err := store.Load(context.Background(), "s1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != nil {
		t.Fatal("expected nil state for missing journal")
	}
}
