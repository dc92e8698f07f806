package adapter

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]any
	}{
		{"plain", `{"genre": "rock"}`, map[string]any{"genre": "rock"}},
		{"single quotes", `{'genre': 'rock', 'year': null}`, map[string]any{"genre": "rock", "year": nil}},
		{"surrounding prose", "Here you go:\n```json\n{\"title\":\n \"Imagine\"}\n```", map[string]any{"title": "Imagine"}},
		{"first object wins", `{"a": 1} {"b": 2}`, map[string]any{"a": float64(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"no json", "{never closed", `{"a": }`} {
		_, err := ExtractJSONObject(bad)
		require.ErrorIs(t, err, ErrMalformedParams, bad)
	}
}

func TestParseExtraction(t *testing.T) {
	ext, err := ParseExtraction("  \n ")
	require.NoError(t, err)
	assert.False(t, ext.Found)

	ext, err = ParseExtraction(`{"title": null, "genre": null, "authors": null, "country": null, "year": null}`)
	require.NoError(t, err)
	assert.True(t, ext.Found)
	assert.True(t, ext.Params.Empty())

	_, err = ParseExtraction(`I am not sure what you mean.`)
	require.ErrorIs(t, err, ErrMalformedParams)

	_, err = ParseExtraction(`{"year": "last summer"}`)
	require.ErrorIs(t, err, ErrMalformedParams)
}

func TestParseArguments(t *testing.T) {
	ext, err := ParseArguments("get_music_recommendations", `{"country": "Brazil"}`)
	require.NoError(t, err)
	assert.True(t, ext.Found)
	assert.Equal(t, "Brazil", *ext.Params.Country)

	ext, err = ParseArguments("get_music_recommendations", "")
	require.NoError(t, err)
	assert.True(t, ext.Found)
	assert.True(t, ext.Params.Empty())

	_, err = ParseArguments("get_music_recommendations", `{"country":`)
	require.ErrorIs(t, err, ErrMalformedParams)
}

func TestFormatCandidates(t *testing.T) {
	assert.Equal(t, "", FormatCandidates(nil))
	assert.Equal(t, "{\"title\":\"Imagine\",\"year\":1971};\n\n{\"title\":\"Let It Be\",\"year\":1970}", FormatCandidates(songs()))

	payload, err := CandidatesJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", payload)
}

func TestGroundedPrompts(t *testing.T) {
	assert.Equal(t, "hi", groundedUserPrompt("hi", nil))
	assert.Equal(t, "Be nice.", groundedContext("Be nice.", nil))
	assert.Equal(t, DefaultExtractPrompt+"\n\nUser message: hi", extractionPrompt("", "hi"))
}

func TestRecommendationFunctionSchemas(t *testing.T) {
	fn := RecommendationFunction
	assert.Equal(t, []string{"title", "genre", "authors", "country", "year"}, fn.ParamNames())

	schema := fn.JSONSchema()
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{}, schema["required"])
	props := schema["properties"].(map[string]any)
	assert.Len(t, props, 5)
	assert.Equal(t, map[string]any{"type": "string", "description": "Music title"}, props["title"])

	tool := fn.OpenAITool()
	assert.Equal(t, "get_music_recommendations", tool.Function.Name)

	gs := fn.GenAISchema()
	assert.Equal(t, genai.TypeObject, gs.Type)
	assert.Equal(t, fn.ParamNames(), gs.PropertyOrdering)
	require.Contains(t, gs.Properties, "year")
	assert.Equal(t, genai.TypeString, gs.Properties["year"].Type)
	assert.True(t, *gs.Properties["year"].Nullable)
}

func TestFunctionSpecEnumAndRequired(t *testing.T) {
	fn := FunctionSpec{
		Name: "pick_mood",
		Properties: []Property{
			{Name: "mood", Enum: []string{"happy", "sad"}, Required: true},
			{Name: "limit", Type: TypeInteger, Description: "How many"},
		},
	}
	schema := fn.JSONSchema()
	assert.Equal(t, []string{"mood"}, schema["required"])
	props := schema["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string", "enum": []string{"happy", "sad"}}, props["mood"])
	assert.Equal(t, map[string]any{"type": "integer", "description": "How many"}, props["limit"])

	gs := fn.GenAISchema()
	assert.Nil(t, gs.Properties["mood"].Nullable)
	assert.Equal(t, []string{"happy", "sad"}, gs.Properties["mood"].Enum)
	assert.Equal(t, genai.TypeInteger, gs.Properties["limit"].Type)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(&AdapterError{Status: 429}))
	assert.True(t, IsTransient(&AdapterError{Temporary: true}))
	assert.False(t, IsTransient(&AdapterError{Status: 400}))
	assert.False(t, IsTransient(errors.New("boom")))
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, wrapError("openai", nil))

	base := errors.New("boom")
	err := wrapError("openai", base)
	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "openai", adapterErr.Provider)
	assert.Equal(t, 0, adapterErr.Status)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "openai: boom", err.Error())

	// already wrapped errors pass through
	assert.Same(t, adapterErr, wrapError("google", err))

	assert.False(t, adapterErr.Temporary)

	timeout := wrapError("anthropic", &net.OpError{Op: "read", Net: "tcp", Err: timeoutErr{}})
	require.ErrorAs(t, timeout, &adapterErr)
	assert.True(t, adapterErr.Temporary)
	assert.Equal(t, 0, adapterErr.Status)

	gerr := wrapError("google", genai.APIError{Code: 503, Message: "unavailable"})
	require.ErrorAs(t, gerr, &adapterErr)
	assert.Equal(t, 503, adapterErr.Status)
	assert.True(t, IsTransient(gerr))
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }
func (timeoutErr) Temporary() bool { return true }
