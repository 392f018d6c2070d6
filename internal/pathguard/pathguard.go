// Package pathguard classifies sandbox paths as read-permitted,
// write-permitted, or blocked. It never trusts a pre-resolution path: every
// input is normalized (. and .. resolved, repeated separators collapsed)
// before any rule is applied.
package pathguard

import (
	"path"
	"regexp"
	"strings"
)

// Mode is the operation a path is being validated for.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

var blockedDirs = []string{
	"/etc", "/var", "/sys", "/proc", "/dev", "/boot", "/root",
	"/usr", "/bin", "/sbin", "/lib", "/lib64", "/tmp", "/run",
}

var readAllowedDirs = []string{"/scratch", "/skills", "/claude-cache"}
var writeAllowedDirs = []string{"/scratch"}

// sensitivePatterns match files that are never readable or writable
// regardless of directory: dotenv files, keys and credential files.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(^|/)\.env(\..+)?$`),
	regexp.MustCompile(`\.pem$`),
	regexp.MustCompile(`\.key$`),
	regexp.MustCompile(`(^|/)id_(rsa|dsa|ecdsa|ed25519)(\.pub)?$`),
	regexp.MustCompile(`(^|/)\.ssh/`),
	regexp.MustCompile(`(^|/)\.aws/credentials$`),
	regexp.MustCompile(`(^|/)\.gcp/.*\.json$`),
	regexp.MustCompile(`(^|/)\.npmrc$`),
	regexp.MustCompile(`(^|/)\.pypirc$`),
	regexp.MustCompile(`(^|/)\.netrc$`),
	regexp.MustCompile(`(^|/)\.docker/config\.json$`),
	regexp.MustCompile(`(^|/)(credentials|secrets?)\.(ya?ml|json|toml)$`),
}

// RejectReason names why a path was rejected.
type RejectReason string

const (
	ReasonNotAbsolute  RejectReason = "not_absolute"
	ReasonBlockedDir   RejectReason = "blocked_directory"
	ReasonNotAllowed   RejectReason = "not_in_allowed_set"
	ReasonSensitive    RejectReason = "sensitive_file_pattern"
)

// PathRejected is returned (never thrown) when a path fails validation.
type PathRejected struct {
	Reason RejectReason
	Path   string
}

func (e *PathRejected) Error() string {
	switch e.Reason {
	case ReasonNotAbsolute:
		return "path must be absolute: " + e.Path
	case ReasonBlockedDir:
		return "path resolves into a blocked system directory: " + e.Path
	case ReasonNotAllowed:
		return "path is outside the allowed workspace directories: " + e.Path
	case ReasonSensitive:
		return "path matches a sensitive-file pattern and cannot be accessed: " + e.Path
	default:
		return "path rejected: " + e.Path
	}
}

// Result is the outcome of a validation call.
type Result struct {
	Valid     bool
	Sanitized string
	Err       *PathRejected
}

// Normalize resolves "." and ".." segments and collapses repeated
// separators. It operates purely lexically (no filesystem access) since the
// sandbox filesystem is not reachable from the host process.
func Normalize(p string) string {
	if p == "" {
		return p
	}
	cleaned := path.Clean(p)
	return cleaned
}

// Idempotent by construction: path.Clean(path.Clean(x)) == path.Clean(x).

func isAbsolute(p string) bool {
	return strings.HasPrefix(p, "/")
}

func withinAny(p string, dirs []string) bool {
	for _, d := range dirs {
		if p == d || strings.HasPrefix(p, d+"/") {
			return true
		}
	}
	return false
}

func matchesSensitive(p string) bool {
	for _, re := range sensitivePatterns {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

func validate(p string, allowed []string) Result {
	if !isAbsolute(p) {
		return Result{Err: &PathRejected{Reason: ReasonNotAbsolute, Path: p}}
	}
	norm := Normalize(p)
	if withinAny(norm, blockedDirs) {
		return Result{Err: &PathRejected{Reason: ReasonBlockedDir, Path: p}}
	}
	if !withinAny(norm, allowed) {
		return Result{Err: &PathRejected{Reason: ReasonNotAllowed, Path: p}}
	}
	if matchesSensitive(norm) {
		return Result{Err: &PathRejected{Reason: ReasonSensitive, Path: p}}
	}
	return Result{Valid: true, Sanitized: norm}
}

// ValidateRead validates a path for a read operation: it must normalize into
// /scratch, /skills, or /claude-cache and must not match a sensitive pattern.
func ValidateRead(p string) Result {
	return validate(p, readAllowedDirs)
}

// ValidateWrite validates a path for a write operation: it must normalize
// into /scratch.
func ValidateWrite(p string) Result {
	return validate(p, writeAllowedDirs)
}

// Validate dispatches to ValidateRead or ValidateWrite by mode.
func Validate(p string, mode Mode) Result {
	if mode == ModeWrite {
		return ValidateWrite(p)
	}
	return ValidateRead(p)
}

// Join mirrors path.Join for callers that want to build sandbox paths
// without reaching into the stdlib directly (keeps path construction
// consistent with Normalize's lexical semantics).
func Join(elem ...string) string {
	return path.Join(elem...)
}

// Dir returns the directory portion of a sandbox path.
func Dir(p string) string { return path.Dir(p) }

// Base returns the filename portion of a sandbox path.
func Base(p string) string { return path.Base(p) }

var hostPathPattern = regexp.MustCompile(`^(/Users/[^/]+|/home/[^/]+|[A-Za-z]:\\)`)

// LooksLikeHostPath reports whether a path looks like it names a location
// on the operator's host machine rather than inside the sandbox. The Tool
// Server uses this to produce a diagnostic instead of a generic rejection.
func LooksLikeHostPath(p string) bool {
	return hostPathPattern.MatchString(p)
}
