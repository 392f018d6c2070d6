package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

// fakeBackend is an in-memory Backend used to test Controller's bookkeeping
// without shelling out to docker.
type fakeBackend struct {
	nextID    int
	running   map[string]bool
	available bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{running: map[string]bool{}, available: true}
}

func (f *fakeBackend) IsAvailable(ctx context.Context) bool { return f.available }
func (f *fakeBackend) EnsureImage(ctx context.Context) error { return nil }

func (f *fakeBackend) CreateContainer(ctx context.Context, name string, mounts []agentspec.BindMount) (string, error) {
	f.nextID++
	id := name + "-id"
	f.running[id] = true
	return id, nil
}

func (f *fakeBackend) IsRunning(ctx context.Context, containerID string) (bool, error) {
	return f.running[containerID], nil
}

func (f *fakeBackend) Exec(ctx context.Context, containerID, command, cwd string, timeout time.Duration) (ExecResult, error) {
	return ExecResult{Stdout: "ok", ExitCode: 0}, nil
}

func (f *fakeBackend) Stats(ctx context.Context, containerID string) (Status, error) {
	return Status{Running: f.running[containerID]}, nil
}

func (f *fakeBackend) Stop(ctx context.Context, containerID string) error {
	f.running[containerID] = false
	return nil
}

func (f *fakeBackend) Remove(ctx context.Context, containerID string) error {
	delete(f.running, containerID)
	return nil
}

func (f *fakeBackend) FindByName(ctx context.Context, name string) (string, error) {
	return "", nil
}

func TestCreateReusesRunningContainer(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend)
	ctx := context.Background()

	h1, err := c.Create(ctx, "sess1", nil)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	h2, err := c.Create(ctx, "sess1", nil)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if h1.ID != h2.ID {
		t.Fatalf("expected same container id on reuse, got %s vs %s", h1.ID, h2.ID)
	}
}

func TestDestroyUnmapsSession(t *testing.T) {
	backend := newFakeBackend()
	c := New(backend)
	ctx := context.Background()

	if _, err := c.Create(ctx, "sess1", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.Destroy(ctx, "sess1"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, ok := c.handleFor("sess1"); ok {
		t.Fatal("expected session to be unmapped after destroy")
	}
}

func TestContainerNameConvention(t *testing.T) {
	if ContainerName("abc123") != "claude-agent-abc123" {
		t.Fatalf("unexpected container name: %s", ContainerName("abc123"))
	}
}
