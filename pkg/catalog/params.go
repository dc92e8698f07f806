package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// Recognized search parameter keys.
const (
	ParamTitle   = "title"
	ParamGenre   = "genre"
	ParamAuthors = "authors"
	ParamCountry = "country"
	ParamYear    = "year"
)

// ParamKeys lists the recognized keys in prompt order.
var ParamKeys = []string{ParamTitle, ParamGenre, ParamAuthors, ParamCountry, ParamYear}

// SearchParams are the structured preferences extracted from a user
// utterance. Nil fields were not identified.
type SearchParams struct {
	Title   *string `json:"title"`
	Genre   *string `json:"genre"`
	Authors *string `json:"authors"`
	Country *string `json:"country"`
	Year    *int    `json:"year"`
}

// Empty reports whether no parameter was identified.
func (p SearchParams) Empty() bool {
	return p.Title == nil && p.Genre == nil && p.Authors == nil && p.Country == nil && p.Year == nil
}

// Values returns the identified parameters as text keyed by field name.
func (p SearchParams) Values() map[string]string {
	out := make(map[string]string)
	add := func(key string, v *string) {
		if v != nil {
			out[key] = *v
		}
	}
	add(ParamTitle, p.Title)
	add(ParamGenre, p.Genre)
	add(ParamAuthors, p.Authors)
	add(ParamCountry, p.Country)
	if p.Year != nil {
		out[ParamYear] = strconv.Itoa(*p.Year)
	}
	return out
}

// LogValue implements slog.LogValuer.
func (p SearchParams) LogValue() slog.Value {
	vals := p.Values()
	attrs := make([]slog.Attr, 0, len(vals))
	for _, key := range ParamKeys {
		if v, ok := vals[key]; ok {
			attrs = append(attrs, slog.String(key, v))
		}
	}
	return slog.GroupValue(attrs...)
}

// UnmarshalJSON decodes leniently: unknown keys are ignored, null and blank
// values mean "not identified", and year may be a number or numeric text.
func (p *SearchParams) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParamsFromMap(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParamsFromMap builds SearchParams from loosely typed values such as
// function-call arguments.
func ParamsFromMap(m map[string]any) (SearchParams, error) {
	var p SearchParams
	p.Title = textParam(m[ParamTitle])
	p.Genre = textParam(m[ParamGenre])
	p.Authors = textParam(m[ParamAuthors])
	p.Country = textParam(m[ParamCountry])

	year, err := yearParam(m[ParamYear])
	if err != nil {
		return SearchParams{}, err
	}
	p.Year = year
	return p, nil
}

func textParam(v any) *string {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		s = x
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if t := textParam(item); t != nil {
				parts = append(parts, *t)
			}
		}
		s = strings.Join(parts, ", ")
	default:
		s = formatValue(x)
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

func yearParam(v any) (*int, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		if x != math.Trunc(x) {
			return nil, fmt.Errorf("year must be an integer, got %v", x)
		}
		y := int(x)
		return &y, nil
	case int:
		return &x, nil
	case int64:
		y := int(x)
		return &y, nil
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return nil, fmt.Errorf("year must be an integer, got %s", x)
		}
		y := int(i)
		return &y, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" || strings.EqualFold(s, "null") {
			return nil, nil
		}
		y, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("year must be numeric, got %q", x)
		}
		return &y, nil
	default:
		return nil, fmt.Errorf("unsupported year value %v", v)
	}
}
