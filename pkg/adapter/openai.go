package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

// OpenAI API types.
const (
	APITypeOpenAI = "open_ai"
	APITypeAzure  = "azure"
)

// OpenAIConfig holds the settings shared by both OpenAI strategies.
type OpenAIConfig struct {
	APIType    string
	APIKey     string
	APIBase    string
	APIVersion string
	// DeploymentID replaces Model as the request target on Azure.
	DeploymentID         string
	Model                string
	TemperatureLLM       float64
	TemperatureFunctions float64
}

func newOpenAIClient(cfg OpenAIConfig, extra ...option.RequestOption) (openai.Client, string, error) {
	if cfg.APIKey == "" {
		return openai.Client{}, "", fmt.Errorf("openai API key is required")
	}

	model := cfg.Model
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	switch cfg.APIType {
	case "", APITypeOpenAI:
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
		if cfg.APIBase != "" {
			opts = append(opts, option.WithBaseURL(cfg.APIBase))
		}
	case APITypeAzure:
		if cfg.APIBase == "" || cfg.APIVersion == "" {
			return openai.Client{}, "", fmt.Errorf("azure openai requires api_base and api_version")
		}
		opts = append(opts, azure.WithEndpoint(cfg.APIBase, cfg.APIVersion), azure.WithAPIKey(cfg.APIKey))
		if cfg.DeploymentID != "" {
			model = cfg.DeploymentID
		}
	default:
		return openai.Client{}, "", fmt.Errorf("unknown openai api type %q", cfg.APIType)
	}
	if model == "" {
		return openai.Client{}, "", fmt.Errorf("openai model name is required")
	}

	opts = append(opts, extra...)
	return openai.NewClient(opts...), model, nil
}

// OpenAIAdapter is the plain OpenAI strategy: parameters come back as JSON
// text and candidates are injected into the user prompt.
type OpenAIAdapter struct {
	client openai.Client
	model  string
	cfg    OpenAIConfig
}

// NewOpenAIAdapter creates a new plain OpenAI adapter.
func NewOpenAIAdapter(cfg OpenAIConfig, opts ...option.RequestOption) (*OpenAIAdapter, error) {
	client, model, err := newOpenAIClient(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &OpenAIAdapter{client: client, model: model, cfg: cfg}, nil
}

// Name returns the adapter identifier.
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Capabilities reports no alternation constraint.
func (a *OpenAIAdapter) Capabilities() Capabilities {
	return Capabilities{}
}

// ExtractParams sends the extraction prompt as a single system message.
func (a *OpenAIAdapter) ExtractParams(ctx context.Context, req ExtractRequest) (Extraction, error) {
	content, err := a.complete(ctx, a.cfg.TemperatureFunctions, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(extractionPrompt(req.Prompt, req.UserMessage)),
	})
	if err != nil {
		return Extraction{}, err
	}
	return ParseExtraction(strings.Join(strings.Fields(content), " "))
}

// Generate sends the history followed by the grounded user prompt.
func (a *OpenAIAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	messages := openAIMessages(req.Behavior, req.History)
	messages = append(messages, openai.UserMessage(groundedUserPrompt(req.UserMessage, req.Candidates)))

	content, err := a.complete(ctx, a.cfg.TemperatureLLM, messages)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%s: %w", a.Name(), ErrNoText)
	}
	return content, nil
}

func (a *OpenAIAdapter) complete(ctx context.Context, temperature float64, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(a.model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", wrapError(a.Name(), fmt.Errorf("openai API error: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: openai returned no choices: %w", a.Name(), ErrNoText)
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIMessages(behavior string, history []Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+3)
	if behavior != "" {
		messages = append(messages, openai.SystemMessage(behavior))
	}
	for _, m := range history {
		if m.Role == RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	return messages
}
