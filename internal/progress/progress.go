// Package progress persists the resumable progress journal inside a
// session's sandbox container: a small JSON document read at session start
// and written after transitions that change phase, steps, or notes. Writes
// are best-effort: Save runs synchronously and returns any failure, which
// the engine logs before continuing. The journal lives in
// the container rather than a database so resume works from any process
// with access to the Sandbox Controller, not just the one that wrote it.
package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexus-agentd/agentcore/internal/sandbox"
	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

// Path is the fixed in-container location of the progress journal.
const Path = "/scratch/claude-progress.json"

// Store reads and writes the Progress Journal for one session via the
// Sandbox Controller.
type Store struct {
	ctrl *sandbox.Controller
}

// New constructs a Store.
func New(ctrl *sandbox.Controller) *Store {
	return &Store{ctrl: ctrl}
}

// Load reads the journal, returning (nil, nil) if it does not yet exist so
// the caller can initialize a fresh state.
func (s *Store) Load(ctx context.Context, sessionID string) (*agentspec.ProgressState, error) {
	raw, err := s.ctrl.ReadFile(ctx, sessionID, Path)
	if err != nil {
		// Absence is the common case for a new session, not a fatal error;
		// the engine falls back to a fresh state.
		return nil, nil
	}
	var state agentspec.ProgressState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("progress: corrupt journal for session %s: %w", sessionID, err)
	}
	return &state, nil
}

// Save writes the journal. Failures are returned but must never be treated
// as fatal by the caller — the engine logs and continues.
func (s *Store) Save(ctx context.Context, sessionID string, state *agentspec.ProgressState) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("progress: marshal: %w", err)
	}
	return s.ctrl.WriteFile(ctx, sessionID, Path, string(raw))
}
