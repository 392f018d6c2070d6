// Command agentcore-bridge demonstrates driving the Execution Engine from
// an external caller: it listens for Slack app mentions over Socket Mode,
// runs each mention's text as a prompt against a fixed agent configuration,
// and relays the streamed events back into the channel as chat messages.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/nexus-agentd/agentcore/internal/engine"
	"github.com/nexus-agentd/agentcore/internal/sandbox"
	"github.com/nexus-agentd/agentcore/pkg/agentspec"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"gopkg.in/yaml.v3"
)

// envTokenSource resolves a connector connection id's bearer token from the
// environment (CONNECTOR_TOKEN_<connectionID>, uppercased).
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

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	configPath := flag.String("config", "", "path to the agent configuration to run for every mention")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("load agent config", "error", err)
		os.Exit(1)
	}

	botToken := os.Getenv("SLACK_BOT_TOKEN")
	appToken := os.Getenv("SLACK_APP_TOKEN")
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if botToken == "" || appToken == "" || apiKey == "" {
		slog.Error("SLACK_BOT_TOKEN, SLACK_APP_TOKEN, and ANTHROPIC_API_KEY are all required")
		os.Exit(1)
	}

	client := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	socketClient := socketmode.New(client, socketmode.OptionDebug(false))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b := &bridge{slack: client, cfg: cfg, apiKey: apiKey, ctrl: sandbox.New(sandbox.NewDockerBackend(false))}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-socketClient.Events:
				if !ok {
					return
				}
				if event.Type != socketmode.EventTypeEventsAPI {
					continue
				}
				socketClient.Ack(*event.Request)
				apiEvent, ok := event.Data.(slackevents.EventsAPIEvent)
				if !ok || apiEvent.Type != slackevents.CallbackEvent {
					continue
				}
				if mention, ok := apiEvent.InnerEvent.Data.(*slackevents.AppMentionEvent); ok {
					go b.handleMention(ctx, mention)
				}
			}
		}
	}()

	if err := socketClient.Run(); err != nil {
		slog.Error("socket mode run exited", "error", err)
		os.Exit(1)
	}
}

type bridge struct {
	slack  *slack.Client
	cfg    agentspec.AgentConfig
	apiKey string
	ctrl   *sandbox.Controller
}

// handleMention runs the mention's text as one Execution Engine session and
// relays every message and terminal status into the originating channel.
func (b *bridge) handleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	sessionID := uuid.NewString()
	llm := engine.NewAnthropicClient(b.apiKey)
	eng := engine.New(sessionID, b.cfg, os.TempDir(), b.ctrl, llm, envTokenSource)
	defer eng.Destroy(context.Background())

	for e := range eng.Execute(ctx, ev.Text) {
		switch e.Type {
		case "message":
			if e.Message != nil && e.Message.Type == agentspec.MessageAssistant && e.Message.Content != "" {
				b.post(ev.Channel, e.Message.Content)
			}
		case "status":
			if e.Status == agentspec.StatusFailed || e.Status == agentspec.StatusInterrupted {
				b.post(ev.Channel, fmt.Sprintf("session %s ended: %s", sessionID, e.Status))
			}
		case "error":
			b.post(ev.Channel, fmt.Sprintf("session %s failed: %v", sessionID, e.Err))
		}
	}
}

func (b *bridge) post(channel, text string) {
	if _, _, err := b.slack.PostMessage(channel, slack.MsgOptionText(text, false)); err != nil {
		slog.Warn("slack post failed", "error", err)
	}
}

func loadConfig(path string) (agentspec.AgentConfig, error) {
	var cfg agentspec.AgentConfig
	if path == "" {
		return cfg, fmt.Errorf("--config is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
