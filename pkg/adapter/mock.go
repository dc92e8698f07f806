package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/zen-systems/groundchat/pkg/catalog"
)

// MockAdapter returns deterministic responses for local runs and tests.
// Without a scripted reply it recommends the first candidate by title.
type MockAdapter struct {
	responses   map[string]string
	params      map[string]catalog.SearchParams
	citeField   string
	strict      bool
	extractErr  error
	generateErr error

	mu        sync.Mutex
	extracts  []ExtractRequest
	generates []GenerateRequest
}

// MockOption configures a MockAdapter.
type MockOption func(*MockAdapter)

// WithMockParams scripts the parameters extracted for a user message.
func WithMockParams(userMessage string, params catalog.SearchParams) MockOption {
	return func(a *MockAdapter) {
		a.params[userMessage] = params
	}
}

// WithMockErrors makes every extraction and generation fail.
func WithMockErrors(extractErr, generateErr error) MockOption {
	return func(a *MockAdapter) {
		a.extractErr = extractErr
		a.generateErr = generateErr
	}
}

// WithStrictAlternation makes the mock report the alternation constraint.
func WithStrictAlternation() MockOption {
	return func(a *MockAdapter) {
		a.strict = true
	}
}

// NewMockAdapter creates a mock adapter.
func NewMockAdapter(opts ...MockOption) *MockAdapter {
	a := &MockAdapter{
		responses: make(map[string]string),
		params:    make(map[string]catalog.SearchParams),
		citeField: "title",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewMockAdapterWithResponses creates a mock adapter with replies keyed by
// user message.
func NewMockAdapterWithResponses(responses map[string]string, opts ...MockOption) *MockAdapter {
	a := NewMockAdapter(opts...)
	for k, v := range responses {
		a.responses[k] = v
	}
	return a
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Capabilities reports the configured constraints.
func (a *MockAdapter) Capabilities() Capabilities {
	return Capabilities{StrictAlternation: a.strict}
}

// ExtractParams returns the scripted parameters for the message. Unscripted
// messages extract nothing.
func (a *MockAdapter) ExtractParams(_ context.Context, req ExtractRequest) (Extraction, error) {
	a.mu.Lock()
	a.extracts = append(a.extracts, req)
	a.mu.Unlock()

	if a.extractErr != nil {
		return Extraction{}, a.extractErr
	}
	params, ok := a.params[req.UserMessage]
	if !ok {
		return Extraction{}, nil
	}
	return Extraction{Params: params, Found: true}, nil
}

// Generate returns the scripted reply for the message.
func (a *MockAdapter) Generate(_ context.Context, req GenerateRequest) (string, error) {
	a.mu.Lock()
	a.generates = append(a.generates, req)
	a.mu.Unlock()

	if a.generateErr != nil {
		return "", a.generateErr
	}
	if reply, ok := a.responses[req.UserMessage]; ok {
		return reply, nil
	}
	if len(req.Candidates) > 0 {
		return fmt.Sprintf("You might like %q.", req.Candidates[0].Text(a.citeField)), nil
	}
	return "Could you tell me more about the music you like?", nil
}

// GenerateRequests returns the generation requests received so far.
func (a *MockAdapter) GenerateRequests() []GenerateRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]GenerateRequest, len(a.generates))
	copy(out, a.generates)
	return out
}

// ExtractRequests returns the extraction requests received so far.
func (a *MockAdapter) ExtractRequests() []ExtractRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ExtractRequest, len(a.extracts))
	copy(out, a.extracts)
	return out
}
