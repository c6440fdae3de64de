// internal/pipeline/conversation/store.go
package conversation

import (
	"context"
	"errors"
	"time"

	"nycdb-insight/internal/models"
)

var (
	ErrSessionNotFound = errors.New("SESSION_NOT_FOUND")
)

// Store is the injected conversation-state abstraction. Implementations must
// be safe for concurrent use; state is keyed by owner+session so one user's
// mutation never affects another's.
type Store interface {
	// GetOrCreate returns the owner's session with the given id, or a fresh
	// one when the id is empty, expired, or belongs to someone else. A stale
	// or foreign id is a documented leniency, not an error: session ids are
	// not secrets here.
	GetOrCreate(ctx context.Context, owner, sessionID string) (*models.ConversationSession, error)

	// Get returns the owner's session or ErrSessionNotFound.
	Get(ctx context.Context, owner, sessionID string) (*models.ConversationSession, error)

	// Record commits a completed turn and re-arms the session TTL.
	Record(ctx context.Context, session *models.ConversationSession, query models.StructuredQuery, summary string) error

	// ListForOwner returns the owner's live sessions, most recently touched first.
	ListForOwner(ctx context.Context, owner string) ([]*models.ConversationSession, error)
}

// Options bound session lifetime and growth.
type Options struct {
	SessionTTL      time.Duration
	MaxPerOwner     int
	MaxHistoryTurns int
	Clock           func() time.Time
}

func (o *Options) applyDefaults() {
	if o.SessionTTL == 0 {
		o.SessionTTL = 30 * time.Minute
	}
	if o.MaxPerOwner == 0 {
		o.MaxPerOwner = 5
	}
	if o.MaxHistoryTurns == 0 {
		o.MaxHistoryTurns = 20
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// normalizeOwner folds absent user identifiers into the anonymous bucket.
func normalizeOwner(owner string) string {
	if owner == "" {
		return models.AnonymousOwner
	}
	return owner
}

// applyTurn mutates the session in place for a completed exchange.
func applyTurn(s *models.ConversationSession, query models.StructuredQuery, summary string, maxTurns int, now time.Time) {
	s.History = append(s.History, models.Turn{
		Query:           query.Clone(),
		ResponseSummary: summary,
		CompletedAt:     now,
	})
	if len(s.History) > maxTurns {
		s.History = s.History[len(s.History)-maxTurns:]
	}
	s.ActiveIntent = query.Intent
	s.ActiveEntities = query.Clone().Entities
	s.Touch(now)
}
