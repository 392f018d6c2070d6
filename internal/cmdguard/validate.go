package cmdguard

import (
	"regexp"
	"strings"

	"github.com/nexus-agentd/agentcore/internal/pathguard"
)

// allowedCommands covers read-only filesystem inspection, search/filter
// tools, text processing, and safe scripting languages. Unknown command
// names are rejected by default.
var allowedCommands = map[string]bool{
	"ls": true, "cat": true, "head": true, "tail": true, "wc": true,
	"find": true, "grep": true, "egrep": true, "fgrep": true, "rg": true,
	"sort": true, "uniq": true, "cut": true, "awk": true, "sed": true,
	"tr": true, "diff": true, "file": true, "stat": true, "pwd": true,
	"echo": true, "printf": true, "jq": true, "basename": true, "dirname": true,
	"git": true, "python3": true, "node": true, "xargs": true, "tee": true,
	"which": true, "env": true, "date": true, "true": true, "false": true,
	"test": true, "[": true, "expr": true, "seq": true, "curl": true,
	// path-restricted write commands, see cpRule/mkdirRule below.
	"cp": true, "mkdir": true,
}

// deniedCommands covers file modification outside /scratch, network
// egress beyond curl, privilege escalation, package management, editors,
// and background schedulers. Checked first so it always wins over an
// accidental allow-list overlap.
var deniedCommands = map[string]bool{
	"rm": true, "mv": true, "chmod": true, "chown": true, "dd": true,
	"sudo": true, "su": true, "doas": true,
	"apt": true, "apt-get": true, "yum": true, "dnf": true, "brew": true,
	"npm": true, "pip": true, "pip3": true, "gem": true, "go": true,
	"vi": true, "vim": true, "nano": true, "emacs": true,
	"cron": true, "crontab": true, "at": true, "systemctl": true, "service": true,
	"nc": true, "netcat": true, "ssh": true, "scp": true, "rsync": true,
	"wget": true,
	"kill": true, "killall": true, "pkill": true, "reboot": true, "shutdown": true,
}

// forbiddenSubstrings are rejected regardless of token position.
var forbiddenSubstrings = []string{"$(", "`"}

var scratchPrefix = "/scratch"

// Reason names why a command was rejected.
type Reason string

const (
	ReasonSubstitution   Reason = "command_substitution"
	ReasonDeniedCommand  Reason = "denied_command"
	ReasonUnknownCommand Reason = "unknown_command"
	ReasonRedirectTarget Reason = "redirect_outside_scratch"
	ReasonPathRestricted Reason = "path_restricted_command"
	ReasonUnterminatedHeredoc Reason = "unterminated_heredoc"
)

// CommandRejected is returned (never thrown) when a command fails validation.
type CommandRejected struct {
	Reason  Reason
	Detail  string
}

func (e *CommandRejected) Error() string {
	if e.Detail != "" {
		return string(e.Reason) + ": " + e.Detail
	}
	return string(e.Reason)
}

// Result is the outcome of a Validate call.
type Result struct {
	Valid     bool
	Sanitized string
	Err       *CommandRejected
}

// Sanitize strips null bytes and carriage returns, collapses runs of
// non-newline whitespace, and collapses consecutive newlines.
func Sanitize(command string) string {
	command = strings.ReplaceAll(command, "\x00", "")
	command = strings.ReplaceAll(command, "\r", "")
	command = regexp.MustCompile(`[ \t]+`).ReplaceAllString(command, " ")
	command = regexp.MustCompile(`\n{3,}`).ReplaceAllString(command, "\n\n")
	return strings.TrimSpace(command)
}

// Validate tokenizes and checks command per the rules: no substitution, no
// redirection outside /scratch or /dev/null, every command-position token
// allowed (with path restrictions for cp/mkdir), heredoc bodies skipped.
func Validate(command string) Result {
	for _, bad := range forbiddenSubstrings {
		if strings.Contains(command, bad) {
			return Result{Err: &CommandRejected{Reason: ReasonSubstitution, Detail: bad}}
		}
	}

	tokens := tokenize(command)

	atCommandPosition := true
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		switch t.kind {
		case tokChain, tokPipe:
			atCommandPosition = true
			continue
		case tokBackground:
			atCommandPosition = true
			continue
		case tokBacktick:
			return Result{Err: &CommandRejected{Reason: ReasonSubstitution, Detail: "`"}}
		case tokSubshellOpen:
			return Result{Err: &CommandRejected{Reason: ReasonSubstitution, Detail: "$("}}
		case tokRedirect:
			if i+1 >= len(tokens) || tokens[i+1].kind != tokWord {
				return Result{Err: &CommandRejected{Reason: ReasonRedirectTarget, Detail: t.text}}
			}
			target := tokens[i+1].text
			if target != "/dev/null" && !strings.HasPrefix(target, scratchPrefix+"/") && target != scratchPrefix {
				return Result{Err: &CommandRejected{Reason: ReasonRedirectTarget, Detail: target}}
			}
			i++
			atCommandPosition = false
			continue
		case tokHeredoc:
			// Skip past the delimiter token; the body itself is not
			// re-tokenized as commands (the tokenizer already only sees the
			// flat command string, so the caller is responsible for not
			// feeding heredoc body text through a second Validate call).
			atCommandPosition = false
			continue
		case tokWord:
			if atCommandPosition {
				name := t.text
				if deniedCommands[name] {
					return Result{Err: &CommandRejected{Reason: ReasonDeniedCommand, Detail: name}}
				}
				if name == "cp" {
					if err := validateCopyArgs(tokens[i+1:]); err != nil {
						return Result{Err: err}
					}
				} else if name == "mkdir" {
					if err := validateMkdirArgs(tokens[i+1:]); err != nil {
						return Result{Err: err}
					}
				} else if !allowedCommands[name] {
					return Result{Err: &CommandRejected{Reason: ReasonUnknownCommand, Detail: name}}
				}
				atCommandPosition = false
			}
		}
	}

	return Result{Valid: true, Sanitized: command}
}

// validateCopyArgs enforces: every source lies in a read-allowed directory,
// the destination lies in /scratch. Flags (leading '-') are skipped.
func validateCopyArgs(args []token) *CommandRejected {
	var paths []string
	for _, a := range args {
		if a.kind != tokWord {
			break
		}
		if strings.HasPrefix(a.text, "-") {
			continue
		}
		paths = append(paths, a.text)
	}
	if len(paths) < 2 {
		return &CommandRejected{Reason: ReasonPathRestricted, Detail: "cp requires source and destination"}
	}
	dest := paths[len(paths)-1]
	for _, src := range paths[:len(paths)-1] {
		if pathguard.ValidateRead(src).Err != nil {
			return &CommandRejected{Reason: ReasonPathRestricted, Detail: "cp source not readable: " + src}
		}
	}
	if pathguard.ValidateWrite(dest).Err != nil {
		return &CommandRejected{Reason: ReasonPathRestricted, Detail: "cp destination must be under /scratch: " + dest}
	}
	return nil
}

// validateMkdirArgs enforces every path argument lies in /scratch.
func validateMkdirArgs(args []token) *CommandRejected {
	found := false
	for _, a := range args {
		if a.kind != tokWord {
			break
		}
		if strings.HasPrefix(a.text, "-") {
			continue
		}
		found = true
		if pathguard.ValidateWrite(a.text).Err != nil {
			return &CommandRejected{Reason: ReasonPathRestricted, Detail: "mkdir path must be under /scratch: " + a.text}
		}
	}
	if !found {
		return &CommandRejected{Reason: ReasonPathRestricted, Detail: "mkdir requires a path"}
	}
	return nil
}
