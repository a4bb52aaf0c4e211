package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when a MapSpec/call omits Model.
const DefaultModel = "claude-sonnet-4-5"

const defaultMaxTokens = 4096

// ClientConfig configures the Anthropic-backed transport.
type ClientConfig struct {
	APIKey string
	Model  string
}

// NewAnthropicFactory returns a Factory that hands each new Session a
// closure over one anthropic.Client and that session's own running
// message history, so the pool's "conversational session" concept carries
// real state instead of being a bare label.
func NewAnthropicFactory(cfg ClientConfig) Factory {
	return func() (func(ctx context.Context, history []Turn, prompt string, opts InvokeOptions) (string, error), error) {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("llm: ANTHROPIC_API_KEY not set")
		}
		client := anthropic.NewClient(option.WithAPIKey(apiKey))
		model := cfg.Model
		if model == "" {
			model = DefaultModel
		}

		send := func(ctx context.Context, history []Turn, prompt string, opts InvokeOptions) (string, error) {
			callModel := model
			if opts.Model != "" {
				callModel = opts.Model
			}

			messages := make([]anthropic.MessageParam, 0, len(history)*2+1)
			for _, t := range history {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Prompt)))
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Response)))
			}
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

			msg, err := client.Messages.New(ctx, anthropic.MessageNewParams{
				Model:     anthropic.Model(callModel),
				MaxTokens: defaultMaxTokens,
				Messages:  messages,
			})
			if err != nil {
				return "", fmt.Errorf("llm: anthropic call failed: %w", err)
			}

			var sb strings.Builder
			for _, block := range msg.Content {
				if text, ok := block.AsAny().(anthropic.TextBlock); ok {
					sb.WriteString(text.Text)
				}
			}
			return sb.String(), nil
		}
		return send, nil
	}
}

// IsAnthropicConfigured reports whether credentials for the real backend
// are present, without making a network call. Used by isAvailable()-style
// degrade paths (spec §4.1).
func IsAnthropicConfigured() bool {
	return os.Getenv("ANTHROPIC_API_KEY") != ""
}
