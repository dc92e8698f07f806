// Package adapter provides the provider strategies a bot uses to extract
// search parameters and generate grounded replies.
package adapter

import (
	"context"

	"github.com/zen-systems/groundchat/pkg/catalog"
)

// Adapter is one LLM provider strategy. Implementations are stateless
// between calls: the conversation history is supplied with every request.
type Adapter interface {
	// Name returns the adapter's identifier.
	Name() string

	// Capabilities describes provider constraints the caller must honour.
	Capabilities() Capabilities

	// ExtractParams asks the model for structured search parameters.
	ExtractParams(ctx context.Context, req ExtractRequest) (Extraction, error)

	// Generate produces the assistant reply for the user message, grounded
	// on the staged candidates.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Capabilities describes provider constraints.
type Capabilities struct {
	// StrictAlternation providers reject history that does not alternate
	// user and assistant turns.
	StrictAlternation bool
	// FunctionCalling providers extract parameters through tool calls.
	FunctionCalling bool
}

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior turn handed to a provider.
type Message struct {
	Role    Role
	Content string
}

// ExtractRequest asks for structured parameters from a user message.
type ExtractRequest struct {
	// Prompt instructs the model to answer with a JSON object. Function
	// calling adapters use Behavior instead.
	Prompt      string
	Behavior    string
	History     []Message
	UserMessage string
}

// Extraction is the outcome of ExtractParams.
type Extraction struct {
	Params catalog.SearchParams
	// Found is false when the model did not identify a recommendation
	// request; Params is then empty.
	Found bool
	// CallID and Arguments echo the tool call for function calling
	// adapters so Generate can answer it.
	CallID    string
	Function  string
	Arguments string
	// Raw is the unparsed model output.
	Raw string
}

// GenerateRequest asks for the assistant reply.
type GenerateRequest struct {
	Behavior    string
	History     []Message
	UserMessage string
	Candidates  []catalog.Record
	Extraction  Extraction
}
