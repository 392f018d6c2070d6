// Package sessionstore is the file-backed Session Config Store: a key to
// (AgentConfig, prompt) map keyed by session id, so short-lived handler
// invocations can reconstitute an execution without stuffing configuration
// into URLs. Each entry lives in its own file under a sanitized session id,
// so concurrent sessions never contend on a shared file.
package sessionstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Sanitize replaces any character outside [A-Za-z0-9_-] with "_" to prevent
// path traversal through a caller-supplied session id.
func Sanitize(sessionID string) string {
	return unsafeChars.ReplaceAllString(sessionID, "_")
}

// Entry is the persisted record for one session.
type Entry struct {
	AgentConfig agentspec.AgentConfig `json:"agentConfig"`
	Prompt      string                `json:"prompt"`
	CreatedAt   time.Time             `json:"createdAt"`
}

// Store persists entries under <cwd>/.scratch/_session_configs/<sanitized>.json.
type Store struct {
	dir string
}

// New constructs a Store rooted at cwd.
func New(cwd string) *Store {
	return &Store{dir: filepath.Join(cwd, ".scratch", "_session_configs")}
}

func (s *Store) pathFor(sessionID string) string {
	return filepath.Join(s.dir, Sanitize(sessionID)+".json")
}

// Put persists cfg and prompt for sessionID.
func (s *Store) Put(sessionID string, cfg agentspec.AgentConfig, prompt string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("sessionstore: mkdir: %w", err)
	}
	entry := Entry{AgentConfig: cfg, Prompt: prompt, CreatedAt: time.Now()}
	raw, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("sessionstore: marshal: %w", err)
	}
	return os.WriteFile(s.pathFor(sessionID), raw, 0o600)
}

// Get retrieves a previously stored entry.
func (s *Store) Get(sessionID string) (*Entry, error) {
	raw, err := os.ReadFile(s.pathFor(sessionID))
	if err != nil {
		return nil, fmt.Errorf("sessionstore: no config for session %s: %w", sessionID, err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("sessionstore: corrupt entry for session %s: %w", sessionID, err)
	}
	return &entry, nil
}

// Delete removes a stored entry. Missing entries are not an error.
func (s *Store) Delete(sessionID string) error {
	err := os.Remove(s.pathFor(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
