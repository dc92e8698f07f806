// Package grounding decides whether a generated reply may be shown.
package grounding

import (
	"strings"

	"github.com/zen-systems/groundchat/pkg/citation"
)

// Default fallback messages.
const (
	DefaultNoCitationMessage = "Sorry, I couldn't find anything in the catalog that matches. Could you tell me more about what you like?"
	DefaultGeneralMessage    = "Sorry, something went wrong. Please try again."
)

// Outcome describes what Apply did with a reply.
type Outcome string

const (
	// Accepted replies are shown unchanged.
	Accepted Outcome = "accepted"
	// Ungrounded replies quoted something no citation backs and were
	// replaced by the fallback message.
	Ungrounded Outcome = "ungrounded"
)

// Policy holds the grounding filter settings.
type Policy struct {
	FilterEnabled   bool
	FallbackMessage string
}

// NewPolicy returns a policy with the filter enabled and the default
// fallback message.
func NewPolicy() Policy {
	return Policy{FilterEnabled: true, FallbackMessage: DefaultNoCitationMessage}
}

// Apply enforces the policy and reports the outcome.
func (p Policy) Apply(text string, citations []citation.Citation) (string, Outcome) {
	out := Enforce(text, citations, p.FilterEnabled, p.FallbackMessage)
	if Suppressed(text, citations, p.FilterEnabled) {
		return out, Ungrounded
	}
	return out, Accepted
}

// Enforce returns fallback when filtering is enabled and text quotes
// something without any resolved citation; otherwise text unchanged.
func Enforce(text string, citations []citation.Citation, filterEnabled bool, fallback string) string {
	if Suppressed(text, citations, filterEnabled) {
		return fallback
	}
	return text
}

// Suppressed reports whether Enforce would replace text.
func Suppressed(text string, citations []citation.Citation, filterEnabled bool) bool {
	return filterEnabled && len(citations) == 0 && strings.Contains(text, `"`)
}
