// Package codeeval runs small, user-supplied code snippets (hooks, dynamic
// context loaders, custom tool handlers, permission callbacks) in a
// restricted interpreter. It is the only legitimate way to turn declarative
// agent-config snippets into executable callbacks.
//
// The interpreter is go.starlark.net: a deterministic, hermetic, Python-like
// dialect with no ambient filesystem, network, or process builtins by
// construction. That absence is what lets prevalidation here focus on the
// pattern/identifier rules below instead of reimplementing a sandboxed
// runtime from scratch.
package codeeval

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.starlark.net/starlark"
)

// Site names the call site a snippet is evaluated for, which determines its
// timeout budget.
type Site int

const (
	SiteHook Site = iota
	SiteToolHandler
	SiteContextLoader
	SitePermissionCallback
)

func (s Site) timeout() time.Duration {
	switch s {
	case SiteToolHandler:
		return 10 * time.Second
	default:
		return 5 * time.Second
	}
}

// maxExecutionSteps is a secondary circuit breaker for CPU-bound infinite
// loops: Starlark threads only check cancellation at step boundaries, so a
// step cap catches what a wall-clock timeout alone might not interrupt
// promptly.
const maxExecutionSteps = 5_000_000

// dangerousSubstrings mirrors the pattern rejection described for the
// evaluator: process/child-process access, filesystem or network modules,
// code-generation primitives, prototype-pollution keys, unsafe binary
// allocation. Starlark has no such builtins, but agent authors may still
// paste snippets written against a richer dialect; reject them up front
// rather than let them fail with a confusing NameError.
var dangerousSubstrings = []string{
	"child_process", "process.exit", "process.env", "require(",
	"import os", "import subprocess", "import socket",
	"__proto__", "constructor[", "eval(", "exec(", "compile(",
	"Buffer.alloc", "unsafe",
}

// blockedGlobals are identifiers that must never appear outside of quoted
// string literals.
var blockedGlobals = []string{
	"process", "filesystem", "fs", "network", "globalThis", "global",
}

var stringLiteralPattern = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"`)

// blankLiterals replaces the contents of every single- or double-quoted
// string literal with NUL bytes of the same length, so identifier scanning
// never false-positives on a literal like 'process' used as plain text.
func blankLiterals(code string) string {
	return stringLiteralPattern.ReplaceAllStringFunc(code, func(m string) string {
		return m[:1] + string(make([]byte, len(m)-2)) + m[len(m)-1:]
	})
}

// Reason names why a snippet was rejected before it ran.
type Reason string

const (
	ReasonDangerousPattern Reason = "dangerous_pattern"
	ReasonBlockedGlobal    Reason = "blocked_global"
)

// CodeRejected is returned when prevalidation fails.
type CodeRejected struct {
	Reason Reason
	Detail string
}

func (e *CodeRejected) Error() string {
	return fmt.Sprintf("code rejected (%s): %s", e.Reason, e.Detail)
}

// CodeTimeout is returned when a snippet exceeds its site's timeout budget.
type CodeTimeout struct {
	Site Site
}

func (e *CodeTimeout) Error() string {
	return fmt.Sprintf("code evaluation exceeded its %s timeout", e.Site.timeout())
}

// Prevalidate rejects code that matches a dangerous substring or references
// a blocked global outside of a quoted string literal.
func Prevalidate(code string) error {
	for _, bad := range dangerousSubstrings {
		if containsLiteralAware(code, bad) {
			return &CodeRejected{Reason: ReasonDangerousPattern, Detail: bad}
		}
	}
	blanked := blankLiterals(code)
	for _, g := range blockedGlobals {
		if wordPresent(blanked, g) {
			return &CodeRejected{Reason: ReasonBlockedGlobal, Detail: g}
		}
	}
	return nil
}

func containsLiteralAware(code, substr string) bool {
	return wordPresentSubstr(blankLiterals(code), substr)
}

func wordPresentSubstr(haystack, substr string) bool {
	return regexp.MustCompile(regexp.QuoteMeta(substr)).MatchString(haystack)
}

func wordPresent(haystack, word string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(haystack)
}

// Evaluator compiles and runs snippets for one Agent Configuration.
type Evaluator struct{}

// New constructs an Evaluator.
func New() *Evaluator { return &Evaluator{} }

// Run prevalidates and executes code at the given site with the given input
// bindings, returning the value of the snippet's top-level `result`
// variable converted to a Go value, or nil if the snippet sets no `result`.
func (e *Evaluator) Run(ctx context.Context, site Site, code string, input map[string]any) (any, error) {
	if err := Prevalidate(code); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, site.timeout())
	defer cancel()

	resultCh := make(chan any, 1)
	errCh := make(chan error, 1)

	thread := &starlark.Thread{
		Name: "codeeval",
		Print: func(_ *starlark.Thread, msg string) {},
	}
	thread.SetMaxExecutionSteps(maxExecutionSteps)

	go func() {
		predeclared := starlark.StringDict{}
		for k, v := range input {
			sv, convErr := toStarlark(v)
			if convErr != nil {
				errCh <- convErr
				return
			}
			predeclared[k] = sv
		}

		globals, err := starlark.ExecFile(thread, "snippet.star", code, predeclared)
		if err != nil {
			errCh <- err
			return
		}
		if result, ok := globals["result"]; ok {
			resultCh <- fromStarlark(result)
			return
		}
		resultCh <- nil
	}()

	select {
	case <-runCtx.Done():
		thread.Cancel("timeout")
		return nil, &CodeTimeout{Site: site}
	case err := <-errCh:
		return nil, fmt.Errorf("code evaluation failed: %w", err)
	case v := <-resultCh:
		return v, nil
	}
}

func toStarlark(v any) (starlark.Value, error) {
	switch t := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(t), nil
	case string:
		return starlark.String(t), nil
	case int:
		return starlark.MakeInt(t), nil
	case float64:
		return starlark.Float(t), nil
	case map[string]any:
		d := starlark.NewDict(len(t))
		for k, vv := range t {
			sv, err := toStarlark(vv)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	case []any:
		var elems []starlark.Value
		for _, vv := range t {
			sv, err := toStarlark(vv)
			if err != nil {
				return nil, err
			}
			elems = append(elems, sv)
		}
		return starlark.NewList(elems), nil
	default:
		return nil, fmt.Errorf("codeeval: unsupported input type %T", v)
	}
}

func fromStarlark(v starlark.Value) any {
	switch t := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(t)
	case starlark.String:
		return string(t)
	case starlark.Int:
		i, _ := t.Int64()
		return i
	case starlark.Float:
		return float64(t)
	case *starlark.List:
		out := make([]any, 0, t.Len())
		for i := 0; i < t.Len(); i++ {
			out = append(out, fromStarlark(t.Index(i)))
		}
		return out
	case *starlark.Dict:
		out := map[string]any{}
		for _, item := range t.Items() {
			k, _ := starlark.AsString(item[0])
			out[k] = fromStarlark(item[1])
		}
		return out
	default:
		return v.String()
	}
}
