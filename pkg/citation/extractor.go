// Package citation finds which catalog records a generated reply refers to.
package citation

import (
	"fmt"
	"regexp"
)

// DefaultPattern captures the text between a pair of double quotes.
const DefaultPattern = `"([^"]*)"`

// Extractor pulls candidate references out of generated text.
type Extractor struct {
	re *regexp.Regexp
}

// NewExtractor compiles pattern. An empty pattern selects DefaultPattern.
func NewExtractor(pattern string) (*Extractor, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid citation pattern %q: %w", pattern, err)
	}
	return &Extractor{re: re}, nil
}

// MustExtractor is NewExtractor for known-good patterns.
func MustExtractor(pattern string) *Extractor {
	e, err := NewExtractor(pattern)
	if err != nil {
		panic(err)
	}
	return e
}

// Pattern returns the compiled expression source.
func (e *Extractor) Pattern() string {
	return e.re.String()
}

// Extract returns every match in left-to-right order, duplicates included.
// When the pattern has capture groups the first group is returned,
// otherwise the whole match.
func (e *Extractor) Extract(text string) []string {
	matches := e.re.FindAllStringSubmatch(text, -1)
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 {
			refs = append(refs, m[1])
		} else {
			refs = append(refs, m[0])
		}
	}
	return refs
}
