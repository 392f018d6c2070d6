package sessionstore

import (
	"testing"

	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

func TestSanitizeBlocksTraversal(t *testing.T) {
	got := Sanitize("../../etc/passwd")
	if got != unsafeChars.ReplaceAllString(got, "_") {
		t.Fatalf("sanitize output should already be stable under re-sanitization: %q", got)
	}
	for _, c := range got {
		if c == '/' {
			t.Fatalf("sanitized id still contains a path separator: %q", got)
		}
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	cfg := agentspec.AgentConfig{ID: "a1", Name: "Agent", SystemPrompt: "hi"}
	if err := s.Put("sess-1", cfg, "do the thing"); err != nil {
		t.Fatalf("put: %v", err)
	}
	entry, err := s.Get("sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Prompt != "do the thing" || entry.AgentConfig.ID != "a1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestDeleteMissingIsNotError(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Delete("nope"); err != nil {
		t.Fatalf("expected no error deleting missing entry, got %v", err)
	}
}
