// Package similarity scores how alike two strings are on a [0,1] scale.
//
// The scores follow the classic "fuzz" family of metrics built on a
// Ratcliff/Obershelp sequence matcher: every method computes an integer
// percentage and the result is that percentage divided by 100.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Method names a similarity metric.
type Method string

const (
	// Ratio compares the full strings.
	Ratio Method = "ratio"
	// PartialRatio scores the best-aligned window of the longer string
	// against the shorter one.
	PartialRatio Method = "partial_ratio"
	// TokenSortRatio sorts whitespace tokens before applying Ratio.
	TokenSortRatio Method = "token_sort_ratio"
	// TokenSetRatio compares token intersections and differences.
	TokenSetRatio Method = "token_set_ratio"
	// PartialTokenSortRatio is TokenSortRatio on top of PartialRatio.
	PartialTokenSortRatio Method = "partial_token_sort_ratio"
	// PartialTokenSetRatio is TokenSetRatio on top of PartialRatio.
	PartialTokenSetRatio Method = "partial_token_set_ratio"
)

// ErrUnsupportedMethod is returned for method names outside Methods().
var ErrUnsupportedMethod = errors.New("unsupported similarity method")

var methods = []Method{
	Ratio,
	PartialRatio,
	TokenSortRatio,
	TokenSetRatio,
	PartialTokenSortRatio,
	PartialTokenSetRatio,
}

// Methods returns the supported methods in a stable order.
func Methods() []Method {
	out := make([]Method, len(methods))
	copy(out, methods)
	return out
}

// ParseMethod validates a method name.
func ParseMethod(name string) (Method, error) {
	m := Method(strings.TrimSpace(name))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, name)
	}
	return m, nil
}

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	for _, known := range methods {
		if m == known {
			return true
		}
	}
	return false
}

// Compare returns the similarity of a and b in [0,1].
//
// When caseSensitive is false both inputs are lower-cased first. Identical
// inputs always score 1.0. Compare is pure and safe for concurrent use.
func Compare(a, b string, method Method, caseSensitive bool) (float64, error) {
	score, err := compare(a, b, method, caseSensitive)
	if err != nil {
		return 0, err
	}
	return float64(score) / 100, nil
}

// MustCompare is Compare for callers that pass a compile-time method.
// It panics on an unsupported method.
func MustCompare(a, b string, method Method, caseSensitive bool) float64 {
	score, err := Compare(a, b, method, caseSensitive)
	if err != nil {
		panic(err)
	}
	return score
}

func compare(a, b string, method Method, caseSensitive bool) (int, error) {
	if !method.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	if a == b {
		return 100, nil
	}

	switch method {
	case PartialRatio:
		return partialRatio(a, b), nil
	case TokenSortRatio:
		return tokenSortRatio(a, b, false), nil
	case TokenSetRatio:
		return tokenSetRatio(a, b, false), nil
	case PartialTokenSortRatio:
		return tokenSortRatio(a, b, true), nil
	case PartialTokenSetRatio:
		return tokenSetRatio(a, b, true), nil
	default:
		return ratio(a, b), nil
	}
}

func ratio(s1, s2 string) int {
	if s1 == s2 {
		return 100
	}
	if s1 == "" || s2 == "" {
		return 0
	}
	m := difflib.NewMatcher(chars(s1), chars(s2))
	return percent(m.Ratio())
}

// partialRatio slides a window the size of the shorter string over the
// longer one, anchored at every matching block, and keeps the best ratio.
func partialRatio(s1, s2 string) int {
	if s1 == s2 {
		return 100
	}
	if s1 == "" || s2 == "" {
		return 0
	}

	shorter, longer := chars(s1), chars(s2)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	m := difflib.NewMatcher(shorter, longer)
	best := 0.0
	for _, block := range m.GetMatchingBlocks() {
		start := block.B - block.A
		if start < 0 {
			start = 0
		}
		end := start + len(shorter)
		if end > len(longer) {
			end = len(longer)
		}

		r := difflib.NewMatcher(shorter, longer[start:end]).Ratio()
		if r > .995 {
			return 100
		}
		if r > best {
			best = r
		}
	}
	return percent(best)
}

func percent(r float64) int {
	return int(math.RoundToEven(100 * r))
}

// chars splits s into one element per rune, the unit the matcher compares.
func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
