package conversation

import (
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
)

// Session is one conversation between a user and a bot.
type Session struct {
	ID       uuid.UUID
	Provider string
	State    *State

	active atomic.Bool
}

// NewSession starts an active session with a fresh state.
func NewSession(provider string, policy StagingPolicy) *Session {
	s := &Session{
		ID:       uuid.New(),
		Provider: provider,
		State:    NewState(policy),
	}
	s.active.Store(true)
	return s
}

// Active reports whether the session is still open.
func (s *Session) Active() bool {
	return s.active.Load()
}

// Close marks the session inactive.
func (s *Session) Close() {
	s.active.Store(false)
}

type sessionJSON struct {
	ID       uuid.UUID `json:"id"`
	Provider string    `json:"provider_name"`
	Messages []Turn    `json:"messages"`
	Active   bool      `json:"active"`
}

// MarshalJSON writes {id, provider_name, messages, active}.
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionJSON{
		ID:       s.ID,
		Provider: s.Provider,
		Messages: s.State.History(),
		Active:   s.Active(),
	})
}

// UnmarshalJSON restores a session. Staged candidates are not part of the
// export, so the restored state starts with none.
func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	state := NewState(Replace)
	for _, t := range raw.Messages {
		if t.Author != User && t.Author != Assistant {
			return fmt.Errorf("session %s: unknown author %q", raw.ID, t.Author)
		}
		state.Record(t.Author, t.Message, t.Citations...)
	}

	s.ID = raw.ID
	s.Provider = raw.Provider
	s.State = state
	s.active.Store(raw.Active)
	return nil
}

// ExportSessions writes sessions as an indented JSON array.
func ExportSessions(w io.Writer, sessions []*Session) error {
	if sessions == nil {
		sessions = []*Session{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sessions); err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}
	return nil
}

// ParseSessions reads a JSON array written by ExportSessions.
func ParseSessions(r io.Reader) ([]*Session, error) {
	var sessions []*Session
	if err := json.NewDecoder(r).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("parse sessions: %w", err)
	}
	return sessions, nil
}
