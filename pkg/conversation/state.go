// Package conversation keeps the turn log of one chat and the candidate
// records staged for its next grounding round.
package conversation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zen-systems/groundchat/pkg/catalog"
	"github.com/zen-systems/groundchat/pkg/citation"
)

// Author identifies who produced a Turn.
type Author string

const (
	User      Author = "user"
	Assistant Author = "assistant"
)

// Turn is one utterance. Only assistant turns carry citations.
type Turn struct {
	Author    Author              `json:"author"`
	Message   string              `json:"message"`
	Citations []citation.Citation `json:"citations,omitempty"`
}

func (t Turn) clone() Turn {
	if t.Citations != nil {
		cp := make([]citation.Citation, len(t.Citations))
		copy(cp, t.Citations)
		t.Citations = cp
	}
	return t
}

// StagingPolicy decides how a new lookup result combines with the
// candidates already staged.
type StagingPolicy string

const (
	// Replace stages exactly the new records.
	Replace StagingPolicy = "replace"
	// Accumulate puts the new records in front of the previous ones and
	// keeps the previous set when the lookup returned nothing.
	Accumulate StagingPolicy = "accumulate"
)

// ParseStagingPolicy validates a policy name. Empty selects Replace.
func ParseStagingPolicy(name string) (StagingPolicy, error) {
	switch p := StagingPolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return Replace, nil
	case Replace, Accumulate:
		return p, nil
	default:
		return "", fmt.Errorf("unknown staging policy %q", name)
	}
}

// State is the turn log plus the staged candidate set of one conversation.
// It is safe for concurrent use, although one conversation normally runs
// one exchange at a time.
type State struct {
	policy StagingPolicy

	mu         sync.RWMutex
	turns      []Turn
	candidates []catalog.Record
}

// NewState creates an empty state. An empty policy selects Replace.
func NewState(policy StagingPolicy) *State {
	if policy == "" {
		policy = Replace
	}
	return &State{policy: policy}
}

// Policy returns the staging policy.
func (s *State) Policy() StagingPolicy {
	return s.policy
}

// Record appends a turn.
func (s *State) Record(author Author, message string, citations ...citation.Citation) {
	t := Turn{Author: author, Message: message}
	if len(citations) > 0 {
		t.Citations = citations
	}
	t = t.clone()

	s.mu.Lock()
	s.turns = append(s.turns, t)
	s.mu.Unlock()
}

// History returns the turns in insertion order.
func (s *State) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTurns(s.turns)
}

// Len returns the number of recorded turns.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// AlternatingHistory is the history as submitted to providers that require
// strict user/assistant alternation: with an odd number of turns the oldest
// is left out. The log itself is not modified.
func (s *State) AlternatingHistory() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns
	if len(turns)%2 != 0 {
		turns = turns[1:]
	}
	return cloneTurns(turns)
}

// Stage makes records the candidates for the next grounding round,
// combined with the current set according to the policy, and returns the
// staged set.
func (s *State) Stage(records []catalog.Record) []catalog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.policy {
	case Accumulate:
		if len(records) > 0 {
			staged := make([]catalog.Record, 0, len(records)+len(s.candidates))
			staged = append(staged, records...)
			s.candidates = append(staged, s.candidates...)
		}
	default:
		s.candidates = make([]catalog.Record, len(records))
		copy(s.candidates, records)
	}

	out := make([]catalog.Record, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// Candidates returns the staged candidate set.
func (s *State) Candidates() []catalog.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Record, len(s.candidates))
	copy(out, s.candidates)
	return out
}

func cloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.clone()
	}
	return out
}
