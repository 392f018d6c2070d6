package toolserver

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-agentd/agentcore/internal/sandbox"
	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

type stubBackend struct{}

func (stubBackend) IsAvailable(ctx context.Context) bool  { return true }
func (stubBackend) EnsureImage(ctx context.Context) error { return nil }
func (stubBackend) CreateContainer(ctx context.Context, name string, mounts []agentspec.BindMount) (string, error) {
	return "c1", nil
}
func (stubBackend) IsRunning(ctx context.Context, containerID string) (bool, error) { return true, nil }
func (stubBackend) Exec(ctx context.Context, containerID, command, cwd string, timeout time.Duration) (sandbox.ExecResult, error) {
	return sandbox.ExecResult{Stdout: "file contents", ExitCode: 0}, nil
}
func (stubBackend) Stats(ctx context.Context, containerID string) (sandbox.Status, error) {
	return sandbox.Status{Running: true}, nil
}
func (stubBackend) Stop(ctx context.Context, containerID string) error   { return nil }
func (stubBackend) Remove(ctx context.Context, containerID string) error { return nil }
func (stubBackend) FindByName(ctx context.Context, name string) (string, error) { return "", nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctrl := sandbox.New(stubBackend{})
	if _, err := ctrl.Create(context.Background(), "sess1", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	return New("sess1", ctrl, agentspec.DefaultResourceLimits())
}

func TestReadRejectsHostPath(t *testing.T) {
	s := newTestServer(t)
	res := s.Read(context.Background(), "/Users/alice/project/src/a.go")
	if !res.IsError {
		t.Fatal("expected host path read to be rejected")
	}
}

func TestWriteRejectsOutsideScratch(t *testing.T) {
	s := newTestServer(t)
	res := s.Write(context.Background(), "/project/out.txt", "hi")
	if !res.IsError {
		t.Fatal("expected write outside /scratch to be rejected")
	}
}

func TestReadAllowsScratch(t *testing.T) {
	s := newTestServer(t)
	res := s.Read(context.Background(), "/scratch/notes.txt")
	if res.IsError {
		t.Fatalf("expected read to succeed, got error: %s", res.Text)
	}
	if res.Text != "file contents" {
		t.Fatalf("unexpected content: %q", res.Text)
	}
}

func TestBashRejectsDeniedCommand(t *testing.T) {
	s := newTestServer(t)
	res := s.Bash(context.Background(), "sudo rm -rf /", 0)
	if !res.IsError {
		t.Fatal("expected sudo to be rejected")
	}
}
