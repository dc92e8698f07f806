package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig holds the Anthropic strategy settings.
type AnthropicConfig struct {
	APIKey               string
	BaseURL              string
	Model                string
	MaxTokens            int64
	TemperatureLLM       float64
	TemperatureFunctions float64
}

// AnthropicAdapter extracts parameters with a JSON prompt and replies with
// the candidates in the system prompt. The Messages API requires
// alternating turns.
type AnthropicAdapter struct {
	client anthropic.Client
	cfg    AnthropicConfig
}

// NewAnthropicAdapter creates a new Anthropic adapter.
func NewAnthropicAdapter(cfg AnthropicConfig, opts ...option.RequestOption) (*AnthropicAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic model name is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	clientOpts = append(clientOpts, opts...)

	return &AnthropicAdapter{client: anthropic.NewClient(clientOpts...), cfg: cfg}, nil
}

// Name returns the adapter identifier.
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// Capabilities reports the alternation constraint.
func (a *AnthropicAdapter) Capabilities() Capabilities {
	return Capabilities{StrictAlternation: true}
}

// ExtractParams sends the extraction prompt as a single user turn.
func (a *AnthropicAdapter) ExtractParams(ctx context.Context, req ExtractRequest) (Extraction, error) {
	text, err := a.send(ctx, a.cfg.TemperatureFunctions, "", []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(extractionPrompt(req.Prompt, req.UserMessage))),
	})
	if err != nil {
		return Extraction{}, err
	}
	return ParseExtraction(text)
}

// Generate sends the history and the user message.
func (a *AnthropicAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, m := range req.History {
		if m.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserMessage)))

	text, err := a.send(ctx, a.cfg.TemperatureLLM, groundedContext(req.Behavior, req.Candidates), messages)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", a.Name(), ErrNoText)
	}
	return text, nil
}

func (a *AnthropicAdapter) send(ctx context.Context, temperature float64, system string, messages []anthropic.MessageParam) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.cfg.Model),
		MaxTokens:   a.cfg.MaxTokens,
		Messages:    messages,
		Temperature: anthropic.Float(temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", wrapError(a.Name(), fmt.Errorf("anthropic API error: %w", err))
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	return content, nil
}
