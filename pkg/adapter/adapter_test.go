package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/groundchat/pkg/catalog"
)

// fakeProvider records request bodies and answers with canned JSON bodies
// in order.
type fakeProvider struct {
	t       *testing.T
	path    string
	replies []string
	status  int

	mu       sync.Mutex
	requests []map[string]any
}

func (f *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, f.path, r.URL.Path)

	var body map[string]any
	if !assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body)) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	n := len(f.requests)
	f.requests = append(f.requests, body)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		fmt.Fprint(w, `{"error": {"message": "overloaded", "type": "server_error"}}`)
		return
	}
	if !assert.Less(f.t, n, len(f.replies), "unexpected request %d", n) {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, f.replies[n])
}

func (f *fakeProvider) request(i int) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func chatCompletion(t *testing.T, message map[string]any) string {
	t.Helper()
	message["role"] = "assistant"
	data, err := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-test",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       message,
		}},
	})
	require.NoError(t, err)
	return string(data)
}

func messagesOf(t *testing.T, body map[string]any) []map[string]any {
	t.Helper()
	raw, ok := body["messages"].([]any)
	require.True(t, ok)
	out := make([]map[string]any, len(raw))
	for i, m := range raw {
		out[i] = m.(map[string]any)
	}
	return out
}

func songs() []catalog.Record {
	return []catalog.Record{
		catalog.NewRecord(catalog.Field{Name: "title", Value: "Imagine"}, catalog.Field{Name: "year", Value: int64(1971)}),
		catalog.NewRecord(catalog.Field{Name: "title", Value: "Let It Be"}, catalog.Field{Name: "year", Value: int64(1970)}),
	}
}

func openAIConfig(url string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:               "test-key",
		APIBase:              url + "/v1/",
		Model:                "gpt-test",
		TemperatureLLM:       0.5,
		TemperatureFunctions: 0.2,
	}
}

func TestOpenAIAdapterExtractAndGenerate(t *testing.T) {
	fake := &fakeProvider{t: t, path: "/v1/chat/completions", replies: []string{
		chatCompletion(t, map[string]any{"content": "Sure: {'title': null,\n 'genre': 'rock', 'year': '1971'}"}),
		chatCompletion(t, map[string]any{"content": `I recommend "Imagine".`}),
	}}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	a, err := NewOpenAIAdapter(openAIConfig(ts.URL))
	require.NoError(t, err)
	assert.Equal(t, "openai", a.Name())
	assert.False(t, a.Capabilities().StrictAlternation)

	ext, err := a.ExtractParams(context.Background(), ExtractRequest{Prompt: "Extract.", UserMessage: "some rock from 1971"})
	require.NoError(t, err)
	assert.True(t, ext.Found)
	require.NotNil(t, ext.Params.Genre)
	assert.Equal(t, "rock", *ext.Params.Genre)
	require.NotNil(t, ext.Params.Year)
	assert.Equal(t, 1971, *ext.Params.Year)
	assert.Nil(t, ext.Params.Title)

	extractReq := fake.request(0)
	assert.Equal(t, "gpt-test", extractReq["model"])
	assert.InDelta(t, 0.2, extractReq["temperature"], 1e-9)
	msgs := messagesOf(t, extractReq)
	require.Len(t, msgs, 1)
	assert.Equal(t, "system", msgs[0]["role"])
	assert.Equal(t, "Extract.\n\nUser message: some rock from 1971", msgs[0]["content"])

	reply, err := a.Generate(context.Background(), GenerateRequest{
		Behavior:    "Be helpful.",
		History:     []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}},
		UserMessage: "some rock from 1971",
		Candidates:  songs()[:1],
	})
	require.NoError(t, err)
	assert.Equal(t, `I recommend "Imagine".`, reply)

	genReq := fake.request(1)
	assert.InDelta(t, 0.5, genReq["temperature"], 1e-9)
	msgs = messagesOf(t, genReq)
	require.Len(t, msgs, 4)
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles(msgs))
	assert.Equal(t, "User message:\n'some rock from 1971'\n\nAvailable options:\n{\"title\":\"Imagine\",\"year\":1971}", msgs[3]["content"])
}

func TestOpenAIAdapterProviderError(t *testing.T) {
	fake := &fakeProvider{t: t, path: "/v1/chat/completions", status: http.StatusServiceUnavailable}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	a, err := NewOpenAIAdapter(openAIConfig(ts.URL))
	require.NoError(t, err)

	_, err = a.Generate(context.Background(), GenerateRequest{UserMessage: "hi"})
	require.Error(t, err)

	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, http.StatusServiceUnavailable, adapterErr.Status)
	assert.Equal(t, "openai", adapterErr.Provider)
	assert.True(t, IsTransient(err))
}

func TestOpenAIAdapterEmptyReply(t *testing.T) {
	fake := &fakeProvider{t: t, path: "/v1/chat/completions", replies: []string{
		chatCompletion(t, map[string]any{"content": "   "}),
	}}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	a, err := NewOpenAIAdapter(openAIConfig(ts.URL))
	require.NoError(t, err)

	_, err = a.Generate(context.Background(), GenerateRequest{UserMessage: "hi"})
	require.ErrorIs(t, err, ErrNoText)
}

func TestNewOpenAIAdapterValidation(t *testing.T) {
	_, err := NewOpenAIAdapter(OpenAIConfig{Model: "gpt-test"})
	require.Error(t, err)

	_, err = NewOpenAIAdapter(OpenAIConfig{APIKey: "k", APIType: "bogus", Model: "gpt-test"})
	require.Error(t, err)

	_, err = NewOpenAIAdapter(OpenAIConfig{APIKey: "k", APIType: APITypeAzure, Model: "gpt-test"})
	require.Error(t, err)

	_, err = NewOpenAIAdapter(OpenAIConfig{APIKey: "k"})
	require.Error(t, err)

	a, err := NewOpenAIAdapter(OpenAIConfig{
		APIKey:       "k",
		APIType:      APITypeAzure,
		APIBase:      "https://example.openai.azure.com",
		APIVersion:   "2024-06-01",
		DeploymentID: "my-deployment",
	})
	require.NoError(t, err)
	assert.Equal(t, "my-deployment", a.model)
}

func TestOpenAIFunctionsAdapterToolRoundTrip(t *testing.T) {
	fake := &fakeProvider{t: t, path: "/v1/chat/completions", replies: []string{
		chatCompletion(t, map[string]any{
			"content": "",
			"tool_calls": []any{map[string]any{
				"id":   "call_1",
				"type": "function",
				"function": map[string]any{
					"name":      "get_music_recommendations",
					"arguments": `{"title": null, "authors": "Lennon", "year": 1971}`,
				},
			}},
		}),
		chatCompletion(t, map[string]any{"content": `Try "Imagine".`}),
	}}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	a, err := NewOpenAIFunctionsAdapter(openAIConfig(ts.URL))
	require.NoError(t, err)
	assert.Equal(t, "openai-fc", a.Name())
	assert.True(t, a.Capabilities().FunctionCalling)

	ext, err := a.ExtractParams(context.Background(), ExtractRequest{Behavior: "Be helpful.", UserMessage: "something by Lennon"})
	require.NoError(t, err)
	assert.True(t, ext.Found)
	assert.Equal(t, "call_1", ext.CallID)
	assert.Equal(t, "get_music_recommendations", ext.Function)
	require.NotNil(t, ext.Params.Authors)
	assert.Equal(t, "Lennon", *ext.Params.Authors)
	assert.Equal(t, 1971, *ext.Params.Year)

	tools, ok := fake.request(0)["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "get_music_recommendations", fn["name"])

	reply, err := a.Generate(context.Background(), GenerateRequest{
		Behavior:    "Be helpful.",
		UserMessage: "something by Lennon",
		Candidates:  songs()[:1],
		Extraction:  ext,
	})
	require.NoError(t, err)
	assert.Equal(t, `Try "Imagine".`, reply)

	msgs := messagesOf(t, fake.request(1))
	assert.Equal(t, []string{"system", "user", "assistant", "tool"}, roles(msgs))
	assert.Equal(t, "call_1", msgs[3]["tool_call_id"])
	assert.Equal(t, `[{"title":"Imagine","year":1971}]`, msgs[3]["content"])
	_, hasTools := fake.request(1)["tools"]
	assert.False(t, hasTools)
}

func TestOpenAIFunctionsAdapterNoToolCall(t *testing.T) {
	fake := &fakeProvider{t: t, path: "/v1/chat/completions", replies: []string{
		chatCompletion(t, map[string]any{"content": "Hello! What do you feel like hearing?"}),
		chatCompletion(t, map[string]any{"content": "Hello!"}),
	}}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	a, err := NewOpenAIFunctionsAdapter(openAIConfig(ts.URL))
	require.NoError(t, err)

	ext, err := a.ExtractParams(context.Background(), ExtractRequest{UserMessage: "hi"})
	require.NoError(t, err)
	assert.False(t, ext.Found)

	_, err = a.Generate(context.Background(), GenerateRequest{UserMessage: "hi", Extraction: ext})
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, roles(messagesOf(t, fake.request(1))))
}

func TestAnthropicAdapter(t *testing.T) {
	message := func(text string) string {
		return fmt.Sprintf(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":%q}],"stop_reason":"end_turn",
			"usage":{"input_tokens":1,"output_tokens":1}}`, text)
	}
	fake := &fakeProvider{t: t, path: "/v1/messages", replies: []string{
		message(`{"title": "Let It Be", "genre": null}`),
		message(`How about "Let It Be"?`),
	}}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	a, err := NewAnthropicAdapter(AnthropicConfig{APIKey: "k", BaseURL: ts.URL + "/", Model: "claude-test"})
	require.NoError(t, err)
	assert.True(t, a.Capabilities().StrictAlternation)

	ext, err := a.ExtractParams(context.Background(), ExtractRequest{UserMessage: "play let it be"})
	require.NoError(t, err)
	require.NotNil(t, ext.Params.Title)
	assert.Equal(t, "Let It Be", *ext.Params.Title)

	req0 := fake.request(0)
	assert.Equal(t, "claude-test", req0["model"])
	assert.EqualValues(t, 1024, req0["max_tokens"])
	_, hasSystem := req0["system"]
	assert.False(t, hasSystem)

	reply, err := a.Generate(context.Background(), GenerateRequest{
		Behavior:    "Be helpful.",
		History:     []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}},
		UserMessage: "play let it be",
		Candidates:  songs()[1:],
	})
	require.NoError(t, err)
	assert.Equal(t, `How about "Let It Be"?`, reply)

	req1 := fake.request(1)
	assert.Equal(t, []string{"user", "assistant", "user"}, roles(messagesOf(t, req1)))
	system := req1["system"].([]any)[0].(map[string]any)["text"]
	assert.Equal(t, "Be helpful.\n\nAvailable options:\n\n{\"title\":\"Let It Be\",\"year\":1970}", system)
}

func TestNewAnthropicAdapterValidation(t *testing.T) {
	_, err := NewAnthropicAdapter(AnthropicConfig{Model: "claude-test"})
	require.Error(t, err)
	_, err = NewAnthropicAdapter(AnthropicConfig{APIKey: "k"})
	require.Error(t, err)
}

func TestNewGoogleAdapterValidation(t *testing.T) {
	_, err := NewGoogleAdapter(context.Background(), GoogleConfig{TextModel: "t", ChatModel: "c"})
	require.Error(t, err)
	_, err = NewGoogleAdapter(context.Background(), GoogleConfig{APIKey: "k"})
	require.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	mock := NewMockAdapter()
	assert.Same(t, mock, WithRateLimit(mock, 0))

	limited := WithRateLimit(mock, 1)
	assert.Equal(t, "mock", limited.Name())

	_, err := limited.Generate(context.Background(), GenerateRequest{UserMessage: "first"})
	require.NoError(t, err)

	// the next token is a minute away
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = limited.ExtractParams(ctx, ExtractRequest{UserMessage: "second"})
	require.Error(t, err)
	assert.Len(t, mock.ExtractRequests(), 0)
}

func TestMockAdapter(t *testing.T) {
	title := "Imagine"
	mock := NewMockAdapterWithResponses(
		map[string]string{"hi": "Hello!"},
		WithMockParams("imagine", catalog.SearchParams{Title: &title}),
		WithStrictAlternation(),
	)
	assert.True(t, mock.Capabilities().StrictAlternation)

	ext, err := mock.ExtractParams(context.Background(), ExtractRequest{UserMessage: "imagine"})
	require.NoError(t, err)
	assert.True(t, ext.Found)
	assert.Equal(t, &title, ext.Params.Title)

	ext, err = mock.ExtractParams(context.Background(), ExtractRequest{UserMessage: "hi"})
	require.NoError(t, err)
	assert.False(t, ext.Found)

	reply, err := mock.Generate(context.Background(), GenerateRequest{UserMessage: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply)

	reply, err = mock.Generate(context.Background(), GenerateRequest{UserMessage: "imagine", Candidates: songs()})
	require.NoError(t, err)
	assert.Equal(t, `You might like "Imagine".`, reply)
	assert.Len(t, mock.GenerateRequests(), 2)

	boom := errors.New("boom")
	failing := NewMockAdapter(WithMockErrors(nil, boom))
	_, err = failing.Generate(context.Background(), GenerateRequest{})
	require.ErrorIs(t, err, boom)
}

func roles(msgs []map[string]any) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i], _ = m["role"].(string)
	}
	return out
}
