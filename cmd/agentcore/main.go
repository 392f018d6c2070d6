// Command agentcore runs one Agent Configuration to completion against a
// single prompt, streaming its Execution Engine events to stdout as
// newline-delimited JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/nexus-agentd/agentcore/internal/engine"
	"github.com/nexus-agentd/agentcore/internal/sandbox"
	"github.com/nexus-agentd/agentcore/internal/sessionstore"
	"github.com/nexus-agentd/agentcore/internal/tracker"
	"github.com/nexus-agentd/agentcore/pkg/agentspec"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// envTokenSource resolves a connector connection id's bearer token from the
// environment (CONNECTOR_TOKEN_<connectionID>, uppercased). It stands in for
// the credential store a real deployment would plug in via the same
// connectors.TokenSource seam.
func envTokenSource(_ context.Context, connectionID string) (string, error) {
	key := "CONNECTOR_TOKEN_" + strings.ToUpper(strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, connectionID))
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no token for connection %q (set %s)", connectionID, key)
}

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentcore",
		Short:        "Run agent configurations inside sandboxed sessions",
		Version:      fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(buildRunCmd(), buildStatusCmd())
	return root
}

func buildRunCmd() *cobra.Command {
	var configPath, prompt, sessionID, cwd, apiKey string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute an agent configuration against a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadAgentConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			if cwd == "" {
				cwd, _ = os.Getwd()
			}
			if apiKey == "" {
				apiKey = os.Getenv("ANTHROPIC_API_KEY")
			}
			if apiKey == "" {
				return fmt.Errorf("ANTHROPIC_API_KEY is required (flag --api-key or env)")
			}

			store := sessionstore.New(cwd)
			if err := store.Put(sessionID, cfg, prompt); err != nil {
				slog.Warn("session config persistence failed", "error", err)
			}

			ctrl := sandbox.New(sandbox.NewDockerBackend(false))
			registry := tracker.NewRegistry()
			client := engine.NewAnthropicClient(apiKey)
			eng := engine.New(sessionID, cfg, cwd, ctrl, client, envTokenSource)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			registry.Register(sessionID, eng)
			defer registry.Unregister(sessionID)

			enc := json.NewEncoder(os.Stdout)
			for ev := range eng.Execute(ctx, prompt) {
				if err := enc.Encode(eventView(ev)); err != nil {
					slog.Warn("encode event failed", "error", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to an agent configuration YAML file (required)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "initial prompt (required)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id; a new one is generated if empty")
	cmd.Flags().StringVar(&cwd, "cwd", "", "workspace root for bind mounts; defaults to the current directory")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Anthropic API key; defaults to ANTHROPIC_API_KEY")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the sandbox backend is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := sandbox.New(sandbox.NewDockerBackend(false))
			if ctrl.IsAvailable(cmd.Context()) {
				fmt.Println("sandbox backend: available")
				return nil
			}
			fmt.Println("sandbox backend: unavailable")
			return nil
		},
	}
}

// eventView flattens an engine.Event into a JSON-friendly shape (errors
// don't marshal to useful JSON on their own).
func eventView(ev engine.Event) map[string]any {
	out := map[string]any{"type": ev.Type}
	if ev.Message != nil {
		out["message"] = ev.Message
	}
	if ev.ToolCall != nil {
		out["toolCall"] = ev.ToolCall
	}
	if ev.Status != "" {
		out["status"] = ev.Status
	}
	if ev.Question != nil {
		out["question"] = map[string]any{"requestId": ev.Question.RequestID, "prompt": ev.Question.Prompt}
	}
	if ev.Err != nil {
		out["error"] = ev.Err.Error()
	}
	return out
}

func loadAgentConfig(path string) (agentspec.AgentConfig, error) {
	var cfg agentspec.AgentConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		return cfg, fmt.Errorf("%s: systemPrompt is required", path)
	}
	return cfg, nil
}
