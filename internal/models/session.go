// internal/models/session.go
package models

import "time"

// AnonymousOwner marks sessions started without a user identifier.
const AnonymousOwner = "anonymous"

// Turn is one completed question/answer exchange in a conversation.
type Turn struct {
	Query           StructuredQuery `json:"query"`
	ResponseSummary string          `json:"responseSummary"`
	CompletedAt     time.Time       `json:"completedAt"`
}

// ConversationSession is the per-user multi-turn state used to resolve
// referential follow-ups ("those", "what about Queens instead?").
type ConversationSession struct {
	ID             string    `json:"id"`
	Owner          string    `json:"owner"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActive     time.Time `json:"lastActive"`
	History        []Turn    `json:"history"`
	ActiveIntent   Intent    `json:"activeIntent"`
	ActiveEntities EntitySet `json:"activeEntities"`
}

// LastTurn returns the most recent turn, if any.
func (s *ConversationSession) LastTurn() (Turn, bool) {
	if len(s.History) == 0 {
		return Turn{}, false
	}
	return s.History[len(s.History)-1], true
}

// RecentTurns returns up to n most recent turns, oldest first.
func (s *ConversationSession) RecentTurns(n int) []Turn {
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// Touch updates the activity timestamp used by TTL eviction.
func (s *ConversationSession) Touch(now time.Time) {
	s.LastActive = now
}

// ConversationSummary is the read model served by the history endpoints.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActive   time.Time `json:"lastActive"`
	TurnCount    int       `json:"turnCount"`
	ActiveIntent Intent    `json:"activeIntent"`
	LastQuestion string    `json:"lastQuestion,omitempty"`
}

// Summary projects the session into its endpoint read model.
func (s *ConversationSession) Summary() ConversationSummary {
	out := ConversationSummary{
		ID:           s.ID,
		Owner:        s.Owner,
		CreatedAt:    s.CreatedAt,
		LastActive:   s.LastActive,
		TurnCount:    len(s.History),
		ActiveIntent: s.ActiveIntent,
	}
	if t, ok := s.LastTurn(); ok {
		out.LastQuestion = t.Query.OriginalQuery
	}
	return out
}
