package adapter

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GoogleConfig holds the Google strategy settings. A project without an
// API key selects the Vertex AI backend.
type GoogleConfig struct {
	APIKey               string
	Project              string
	Location             string
	BaseURL              string
	TextModel            string
	ChatModel            string
	TemperatureLLM       float64
	TemperatureFunctions float64
}

// GoogleAdapter is the PaLM-style strategy: a text model extracts the
// parameters and a chat session, whose context carries the candidates,
// produces the reply. Chat history must alternate strictly.
type GoogleAdapter struct {
	client *genai.Client
	cfg    GoogleConfig
	schema *genai.Schema
}

// NewGoogleAdapter creates a new Google adapter.
func NewGoogleAdapter(ctx context.Context, cfg GoogleConfig) (*GoogleAdapter, error) {
	cc := &genai.ClientConfig{HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL}}
	switch {
	case cfg.APIKey != "":
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	case cfg.Project != "":
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	default:
		return nil, fmt.Errorf("google API key or project ID is required")
	}
	if cfg.TextModel == "" || cfg.ChatModel == "" {
		return nil, fmt.Errorf("google text and chat model names are required")
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleAdapter{
		client: client,
		cfg:    cfg,
		schema: RecommendationFunction.GenAISchema(),
	}, nil
}

// Name returns the adapter identifier.
func (a *GoogleAdapter) Name() string {
	return "google"
}

// Capabilities reports the alternation constraint of chat sessions.
func (a *GoogleAdapter) Capabilities() Capabilities {
	return Capabilities{StrictAlternation: true}
}

// ExtractParams asks the text model for a JSON object constrained by the
// recommendation schema.
func (a *GoogleAdapter) ExtractParams(ctx context.Context, req ExtractRequest) (Extraction, error) {
	resp, err := a.client.Models.GenerateContent(ctx, a.cfg.TextModel,
		genai.Text(extractionPrompt(req.Prompt, req.UserMessage)),
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr(float32(a.cfg.TemperatureFunctions)),
			ResponseMIMEType: "application/json",
			ResponseSchema:   a.schema,
		})
	if err != nil {
		return Extraction{}, wrapError(a.Name(), fmt.Errorf("google API error: %w", err))
	}
	return ParseExtraction(responseText(resp))
}

// Generate starts a chat session over the history and sends the user
// message.
func (a *GoogleAdapter) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	history := make([]*genai.Content, 0, len(req.History))
	for _, m := range req.History {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		history = append(history, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(a.cfg.TemperatureLLM)),
	}
	if sys := groundedContext(req.Behavior, req.Candidates); sys != "" {
		cfg.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}

	chat, err := a.client.Chats.Create(ctx, a.cfg.ChatModel, cfg, history)
	if err != nil {
		return "", wrapError(a.Name(), fmt.Errorf("google chat error: %w", err))
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: req.UserMessage})
	if err != nil {
		return "", wrapError(a.Name(), fmt.Errorf("google API error: %w", err))
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", a.Name(), ErrNoText)
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var content string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			content += part.Text
		}
	}
	return content
}
