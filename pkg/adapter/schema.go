package adapter

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"google.golang.org/genai"

	"github.com/zen-systems/groundchat/pkg/catalog"
)

// PropertyType is the JSON type of a function property.
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeInteger PropertyType = "integer"
)

// Property is one argument of a callable function.
type Property struct {
	Name        string
	Type        PropertyType
	Description string
	// Enum restricts the value to a fixed set; it replaces Description
	// when set.
	Enum     []string
	Required bool
}

// FunctionSpec describes a function the model may call. It renders to the
// wire schema each provider expects.
type FunctionSpec struct {
	Name        string
	Description string
	Properties  []Property
}

// RecommendationFunction is the catalog search exposed to the models.
var RecommendationFunction = FunctionSpec{
	Name:        "get_music_recommendations",
	Description: "Get music recommendations based on the following information provided by the user: title, genre, authors, country, and/or year.",
	Properties: []Property{
		{Name: catalog.ParamTitle, Type: TypeString, Description: "Music title"},
		{Name: catalog.ParamGenre, Type: TypeString, Description: "Music genre"},
		{Name: catalog.ParamAuthors, Type: TypeString, Description: "Music authors"},
		{Name: catalog.ParamCountry, Type: TypeString, Description: "Music country"},
		{Name: catalog.ParamYear, Type: TypeString, Description: "Music year"},
	},
}

// ParamNames returns the property names in declaration order.
func (f FunctionSpec) ParamNames() []string {
	names := make([]string, len(f.Properties))
	for i, p := range f.Properties {
		names[i] = p.Name
	}
	return names
}

func (f FunctionSpec) required() []string {
	required := []string{}
	for _, p := range f.Properties {
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return required
}

func (p Property) jsonType() PropertyType {
	if p.Type == "" {
		return TypeString
	}
	return p.Type
}

// JSONSchema renders the parameters as a JSON schema object.
func (f FunctionSpec) JSONSchema() map[string]any {
	props := make(map[string]any, len(f.Properties))
	for _, p := range f.Properties {
		prop := map[string]any{"type": string(p.jsonType())}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		} else if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   f.required(),
	}
}

// OpenAITool renders the function as an OpenAI tool definition.
func (f FunctionSpec) OpenAITool() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Function: shared.FunctionDefinitionParam{
			Name:        f.Name,
			Description: openai.String(f.Description),
			Parameters:  shared.FunctionParameters(f.JSONSchema()),
		},
	}
}

// GenAISchema renders the parameters as a Gemini response schema. Optional
// properties are nullable so the model can answer null for them.
func (f FunctionSpec) GenAISchema() *genai.Schema {
	schema := &genai.Schema{
		Type:        genai.TypeObject,
		Description: f.Description,
		Properties:  make(map[string]*genai.Schema, len(f.Properties)),
		Required:    f.required(),
	}
	for _, p := range f.Properties {
		prop := &genai.Schema{Type: genai.TypeString}
		if p.jsonType() == TypeInteger {
			prop.Type = genai.TypeInteger
		}
		if len(p.Enum) > 0 {
			prop.Enum = p.Enum
		} else {
			prop.Description = p.Description
		}
		if !p.Required {
			prop.Nullable = genai.Ptr(true)
		}
		schema.Properties[p.Name] = prop
		schema.PropertyOrdering = append(schema.PropertyOrdering, p.Name)
	}
	return schema
}
