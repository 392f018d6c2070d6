package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

// AnthropicClient adapts the Anthropic SDK's streaming Messages API onto
// LLMClient. Retries use exponential backoff on retryable API errors (HTTP
// 429, 500, 502, 503, 529); anything else is returned on the first chunk.
type AnthropicClient struct {
	client     anthropic.Client
	maxRetries int
	retryDelay time.Duration
}

// NewAnthropicClient builds a client around apiKey with sensible retry
// defaults (3 retries after the first attempt, 1s base delay).
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		client:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

func (c *AnthropicClient) isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case 429, 500, 502, 503, 529:
		return true
	default:
		return false
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (<-chan Chunk, error) {
	chunks := make(chan Chunk)

	go func() {
		defer close(chunks)

		params := c.buildParams(req)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		for attempt := 0; ; attempt++ {
			stream = c.client.Messages.NewStreaming(ctx, params)
			if err := stream.Err(); err == nil || !c.isRetryable(err) || attempt >= c.maxRetries {
				if err != nil {
					chunks <- Chunk{Error: fmt.Errorf("anthropic: %w", err)}
					return
				}
				break
			}
			backoff := c.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				chunks <- Chunk{Error: ctx.Err()}
				return
			case <-time.After(backoff):
			}
		}

		var inputTokens, outputTokens int
		var pendingID, pendingName, pendingJSON string
		var pendingActive bool
		for stream.Next() {
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if variant.ContentBlock.Type == "tool_use" {
					pendingID, pendingName, pendingJSON, pendingActive = variant.ContentBlock.ID, variant.ContentBlock.Name, "", true
				}
			case anthropic.ContentBlockDeltaEvent:
				if variant.Delta.Text != "" {
					chunks <- Chunk{Text: variant.Delta.Text}
				}
				if variant.Delta.PartialJSON != "" && pendingActive {
					pendingJSON += variant.Delta.PartialJSON
				}
			case anthropic.ContentBlockStopEvent:
				if pendingActive {
					input := map[string]any{}
					_ = json.Unmarshal([]byte(pendingJSON), &input)
					chunks <- Chunk{ToolCall: &agentspec.ToolCall{ID: pendingID, Name: pendingName, Input: input, Timestamp: time.Now()}}
					pendingActive = false
				}
			case anthropic.MessageDeltaEvent:
				outputTokens = int(variant.Usage.OutputTokens)
			case anthropic.MessageStartEvent:
				inputTokens = int(variant.Message.Usage.InputTokens)
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- Chunk{Error: fmt.Errorf("anthropic: stream: %w", err)}
			return
		}
		chunks <- Chunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
	}()

	return chunks, nil
}

func (c *AnthropicClient) buildParams(req CompletionRequest) anthropic.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, m := range req.Messages {
		role := anthropic.MessageParamRoleUser
		if m.Type == agentspec.MessageAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		params.Messages = append(params.Messages, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{{OfText: &anthropic.TextBlockParam{Text: m.Content}}},
		})
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
			},
		})
	}
	return params
}
