package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIFunctionsAdapter extracts parameters through tool calling and hands
// the candidates back to the model as the tool result.
type OpenAIFunctionsAdapter struct {
	client   openai.Client
	model    string
	cfg      OpenAIConfig
	function FunctionSpec
	tool     openai.ChatCompletionToolParam
}

// NewOpenAIFunctionsAdapter creates a new function calling adapter using
// RecommendationFunction.
func NewOpenAIFunctionsAdapter(cfg OpenAIConfig, opts ...option.RequestOption) (*OpenAIFunctionsAdapter, error) {
	client, model, err := newOpenAIClient(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &OpenAIFunctionsAdapter{
		client:   client,
		model:    model,
		cfg:      cfg,
		function: RecommendationFunction,
		tool:     RecommendationFunction.OpenAITool(),
	}, nil
}

// Name returns the adapter identifier.
func (a *OpenAIFunctionsAdapter) Name() string {
	return "openai-fc"
}

// Capabilities reports tool-call based extraction.
func (a *OpenAIFunctionsAdapter) Capabilities() Capabilities {
	return Capabilities{FunctionCalling: true}
}

// ExtractParams offers the recommendation tool and reports whether the
// model called it.
func (a *OpenAIFunctionsAdapter) ExtractParams(ctx context.Context, req ExtractRequest) (Extraction, error) {
	messages := openAIMessages(req.Behavior, req.History)
	messages = append(messages, openai.UserMessage(req.UserMessage))

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(a.model),
		Messages:    messages,
		Temperature: openai.Float(a.cfg.TemperatureFunctions),
		Tools:       []openai.ChatCompletionToolParam{a.tool},
	})
	if err != nil {
		return Extraction{}, wrapError(a.Name(), fmt.Errorf("openai API error: %w", err))
	}
	if len(resp.Choices) == 0 {
		return Extraction{}, fmt.Errorf("%s: openai returned no choices: %w", a.Name(), ErrNoText)
	}

	msg := resp.Choices[0].Message
	for _, call := range msg.ToolCalls {
		if call.Function.Name != a.function.Name {
			continue
		}
		ext, err := ParseArguments(call.Function.Name, call.Function.Arguments)
		ext.CallID = call.ID
		return ext, err
	}
	return Extraction{Raw: msg.Content}, nil
}

// Generate answers the tool call with the candidates, when there was one,
// and asks for the reply.
func (a *OpenAIFunctionsAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	messages := openAIMessages(req.Behavior, req.History)
	messages = append(messages, openai.UserMessage(req.UserMessage))

	if ext := req.Extraction; ext.CallID != "" {
		payload, err := CandidatesJSON(req.Candidates)
		if err != nil {
			return "", err
		}
		messages = append(messages,
			openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
						ID: ext.CallID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      ext.Function,
							Arguments: ext.Arguments,
						},
					}},
				},
			},
			openai.ToolMessage(payload, ext.CallID),
		)
	}

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(a.model),
		Messages:    messages,
		Temperature: openai.Float(a.cfg.TemperatureLLM),
	})
	if err != nil {
		return "", wrapError(a.Name(), fmt.Errorf("openai API error: %w", err))
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%s: %w", a.Name(), ErrNoText)
	}
	return resp.Choices[0].Message.Content, nil
}
