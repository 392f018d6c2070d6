package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

// CacheName derives the claude-cache project directory name from cwd: cwd
// with every "/" replaced by "-".
func CacheName(cwd string) string {
	return strings.ReplaceAll(cwd, "/", "-")
}

// BuildMounts computes the bind mounts for a session per the external
// interface table: /scratch is always rw; /claude-cache and /skills are
// mounted read-only if and only if their host sources exist. No other host
// directory is ever exposed.
func BuildMounts(cwd, sessionID, home string) []agentspec.BindMount {
	mounts := []agentspec.BindMount{
		{
			HostPath:      filepath.Join(cwd, ".scratch", sessionID),
			ContainerPath: "/scratch",
			ReadOnly:      false,
		},
	}

	cacheHost := filepath.Join(home, ".claude", "projects", CacheName(cwd))
	if dirExists(cacheHost) {
		mounts = append(mounts, agentspec.BindMount{
			HostPath:      cacheHost,
			ContainerPath: "/claude-cache/projects/" + CacheName(cwd),
			ReadOnly:      true,
		})
	}

	skillsHost := filepath.Join(cwd, ".claude", "skills")
	if dirExists(skillsHost) {
		mounts = append(mounts, agentspec.BindMount{
			HostPath:      skillsHost,
			ContainerPath: "/skills",
			ReadOnly:      true,
		})
	}

	return mounts
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// EnsureScratchDir creates the host-side scratch directory for a session
// before the container is created, so the bind mount source always exists.
func EnsureScratchDir(cwd, sessionID string) error {
	return os.MkdirAll(filepath.Join(cwd, ".scratch", sessionID), 0o700)
}
