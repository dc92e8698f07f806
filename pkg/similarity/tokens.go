package similarity

import (
	"sort"
	"strings"
	"unicode"
)

func tokenSortRatio(s1, s2 string, partial bool) int {
	a := sortedTokens(s1)
	b := sortedTokens(s2)
	if partial {
		return partialRatio(a, b)
	}
	return ratio(a, b)
}

// tokenSetRatio compares "intersection" against "intersection + rest" for
// each side and returns the best of the three pairings.
func tokenSetRatio(s1, s2 string, partial bool) int {
	p1 := normalize(s1)
	p2 := normalize(s2)
	if p1 == "" || p2 == "" {
		return 0
	}

	tokens1 := tokenSet(p1)
	tokens2 := tokenSet(p2)

	var common, only1, only2 []string
	for tok := range tokens1 {
		if _, ok := tokens2[tok]; ok {
			common = append(common, tok)
		} else {
			only1 = append(only1, tok)
		}
	}
	for tok := range tokens2 {
		if _, ok := tokens1[tok]; !ok {
			only2 = append(only2, tok)
		}
	}
	sort.Strings(common)
	sort.Strings(only1)
	sort.Strings(only2)

	sect := strings.Join(common, " ")
	combined1 := strings.TrimSpace(sect + " " + strings.Join(only1, " "))
	combined2 := strings.TrimSpace(sect + " " + strings.Join(only2, " "))
	sect = strings.TrimSpace(sect)

	score := ratio
	if partial {
		score = partialRatio
	}

	best := score(sect, combined1)
	if r := score(sect, combined2); r > best {
		best = r
	}
	if r := score(combined1, combined2); r > best {
		best = r
	}
	return best
}

func sortedTokens(s string) string {
	tokens := strings.Fields(normalize(s))
	sort.Strings(tokens)
	return strings.TrimSpace(strings.Join(tokens, " "))
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

// normalize drops runes in U+0080..U+00FF, turns every rune that is not a
// letter, number or underscore into whitespace, lower-cases and trims.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 0x80 && r <= 0xff:
		case unicode.IsLetter(r), unicode.IsNumber(r), r == '_':
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}
