package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrLookup wraps every failure reported by a Source.
var ErrLookup = errors.New("catalog lookup failed")

// Source supplies candidate records for a set of search parameters.
type Source interface {
	// Name returns the source identifier.
	Name() string

	// Lookup returns the records matching params. An empty result is not
	// an error.
	Lookup(ctx context.Context, params SearchParams) ([]Record, error)
}

// Lookup queries src and wraps any failure in ErrLookup.
func Lookup(ctx context.Context, src Source, params SearchParams) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrLookup, src.Name(), err)
	}
	records, err := src.Lookup(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrLookup, src.Name(), err)
	}
	return records, nil
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc struct {
	ID string
	Fn func(ctx context.Context, params SearchParams) ([]Record, error)
}

// Name returns the source identifier.
func (f SourceFunc) Name() string {
	return f.ID
}

// Lookup calls the wrapped function.
func (f SourceFunc) Lookup(ctx context.Context, params SearchParams) ([]Record, error) {
	return f.Fn(ctx, params)
}

// Static is an in-memory catalog.
type Static struct {
	records []Record
	limit   int
}

// NewStatic creates a static source. limit caps the number of returned
// records; zero means no cap.
func NewStatic(records []Record, limit int) *Static {
	cp := make([]Record, len(records))
	copy(cp, records)
	return &Static{records: cp, limit: limit}
}

// Name returns the source identifier.
func (s *Static) Name() string {
	return "static"
}

// Lookup filters the in-memory records.
func (s *Static) Lookup(_ context.Context, params SearchParams) ([]Record, error) {
	return Filter(s.records, params, s.limit), nil
}

// Filter returns the records whose fields contain every identified
// parameter (case-insensitive substring, exact match for year). When no
// parameter is identified or nothing matches, all records are returned.
// A positive limit truncates the result.
func Filter(records []Record, params SearchParams, limit int) []Record {
	var out []Record
	if !params.Empty() {
		for _, r := range records {
			if matches(r, params) {
				out = append(out, r)
			}
		}
	}
	if len(out) == 0 {
		out = make([]Record, len(records))
		copy(out, records)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matches(r Record, params SearchParams) bool {
	for key, want := range params.Values() {
		got, ok := r.Get(key)
		if !ok {
			return false
		}
		if key == ParamYear {
			if strings.TrimSpace(formatValue(got)) != want {
				return false
			}
			continue
		}
		if !strings.Contains(strings.ToLower(formatValue(got)), strings.ToLower(want)) {
			return false
		}
	}
	return true
}
