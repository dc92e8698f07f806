package adapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zen-systems/groundchat/pkg/catalog"
)

// DefaultBehaviorPrompt sets up the assistant persona and the quoting
// convention citations rely on.
const DefaultBehaviorPrompt = `You are an excellent music consultant who recommends songs to the user.
Only recommend songs listed under "Available options". When you mention a song, write its title between double quotes, exactly as listed.
If no option fits, ask the user for more details instead of inventing songs.`

// DefaultExtractPrompt asks a text model for the search parameters as JSON.
const DefaultExtractPrompt = `You are an excellent music consultant, capable of deeply understanding clients' preferences to provide personalized recommendations. Identify if the user is requesting a music recommendation, and if so, return a JSON containing the following attributes:

- 'title': Music title;
- 'genre': Music genre;
- 'authors': Music authors;
- 'country': Music country;
- 'year': Music year.

For attributes not identified in the user's message, you should use the value null in the JSON.
If the user has not requested a music recommendation, do not return anything.
Do not invent information not provided by the user.`

const candidateSeparator = ";\n\n"

// FormatCandidates renders records as one JSON object each, separated by
// ";" and a blank line.
func FormatCandidates(records []catalog.Record) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, candidateSeparator)
}

// CandidatesJSON renders records as a JSON array, the payload of a tool
// result.
func CandidatesJSON(records []catalog.Record) (string, error) {
	if records == nil {
		records = []catalog.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode candidates: %w", err)
	}
	return string(data), nil
}

// extractionPrompt appends the user message to the extraction prompt.
func extractionPrompt(prompt, userMessage string) string {
	if prompt == "" {
		prompt = DefaultExtractPrompt
	}
	return prompt + "\n\nUser message: " + userMessage
}

// groundedUserPrompt wraps the user message with the available options.
// Without candidates the message is sent as is.
func groundedUserPrompt(userMessage string, candidates []catalog.Record) string {
	if len(candidates) == 0 {
		return userMessage
	}
	return fmt.Sprintf("User message:\n'%s'\n\nAvailable options:\n%s", userMessage, FormatCandidates(candidates))
}

// groundedContext appends the available options to the behavior prompt.
func groundedContext(behavior string, candidates []catalog.Record) string {
	if len(candidates) == 0 {
		return behavior
	}
	return behavior + "\n\nAvailable options:\n\n" + FormatCandidates(candidates)
}

// ExtractJSONObject decodes the first {...} span of text. Whitespace is
// collapsed and single quotes become double quotes first, since models
// often answer with Python-style dicts.
func ExtractJSONObject(text string) (map[string]any, error) {
	text = strings.ReplaceAll(strings.Join(strings.Fields(text), " "), "'", `"`)

	open := strings.Index(text, "{")
	if open == -1 {
		return nil, fmt.Errorf("%w: opening brace not found", ErrMalformedParams)
	}
	end := strings.Index(text[open+1:], "}")
	if end == -1 {
		return nil, fmt.Errorf("%w: closing brace not found", ErrMalformedParams)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text[open:open+1+end+1]), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedParams, err)
	}
	return obj, nil
}

// ParseExtraction interprets a text model's answer to the extraction
// prompt. An empty answer means no recommendation was requested.
func ParseExtraction(raw string) (Extraction, error) {
	if strings.TrimSpace(raw) == "" {
		return Extraction{Raw: raw}, nil
	}
	obj, err := ExtractJSONObject(raw)
	if err != nil {
		return Extraction{Raw: raw}, err
	}
	params, err := catalog.ParamsFromMap(obj)
	if err != nil {
		return Extraction{Raw: raw}, fmt.Errorf("%w: %v", ErrMalformedParams, err)
	}
	return Extraction{Params: params, Found: true, Raw: raw}, nil
}

// ParseArguments decodes tool-call arguments.
func ParseArguments(function, arguments string) (Extraction, error) {
	ext := Extraction{Function: function, Arguments: arguments, Raw: arguments}
	if strings.TrimSpace(arguments) == "" {
		ext.Found = true
		return ext, nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(arguments), &obj); err != nil {
		return ext, fmt.Errorf("%w: %v", ErrMalformedParams, err)
	}
	params, err := catalog.ParamsFromMap(obj)
	if err != nil {
		return ext, fmt.Errorf("%w: %v", ErrMalformedParams, err)
	}
	ext.Params = params
	ext.Found = true
	return ext, nil
}
