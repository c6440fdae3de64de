// internal/pipeline/conversation/memory.go
package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/common/metrics"
	"nycdb-insight/internal/models"
)

// MemoryStore is the process-local Store. Eviction sweeps run inline on
// every GetOrCreate for the touched owner; there is no background sweeper.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]*models.ConversationSession // owner -> id -> session
	opts     Options
	logger   logger.Logger
}

func NewMemoryStore(opts Options, log logger.Logger) *MemoryStore {
	opts.applyDefaults()
	return &MemoryStore{
		sessions: make(map[string]map[string]*models.ConversationSession),
		opts:     opts,
		logger:   log.WithFields(map[string]interface{}{"component": "conversation", "backend": "memory"}),
	}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, owner, sessionID string) (*models.ConversationSession, error) {
	owner = normalizeOwner(owner)
	now := s.opts.Clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(owner, now)

	if sessionID != "" {
		if sess, ok := s.sessions[owner][sessionID]; ok {
			sess.Touch(now)
			return cloneSession(sess), nil
		}
	}

	sess := &models.ConversationSession{
		ID:             uuid.NewString(),
		Owner:          owner,
		CreatedAt:      now,
		LastActive:     now,
		ActiveEntities: models.EntitySet{},
	}
	if s.sessions[owner] == nil {
		s.sessions[owner] = make(map[string]*models.ConversationSession)
	}
	s.sessions[owner][sess.ID] = sess

	// Creating may push the owner over the cap; drop the oldest beyond it.
	s.evictLocked(owner, now)

	metrics.ActiveSessions.WithLabelValues("memory").Set(float64(s.countLocked()))

	s.logger.Debug("session created", map[string]interface{}{
		"owner":     owner,
		"sessionId": sess.ID,
	})

	return cloneSession(sess), nil
}

func (s *MemoryStore) Get(_ context.Context, owner, sessionID string) (*models.ConversationSession, error) {
	owner = normalizeOwner(owner)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[owner][sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.opts.Clock().Sub(sess.LastActive) > s.opts.SessionTTL {
		return nil, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

func (s *MemoryStore) Record(_ context.Context, session *models.ConversationSession, query models.StructuredQuery, summary string) error {
	owner := normalizeOwner(session.Owner)
	now := s.opts.Clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[owner][session.ID]
	if !ok {
		// Session evicted mid-request; re-insert rather than lose the turn.
		stored = cloneSession(session)
		if s.sessions[owner] == nil {
			s.sessions[owner] = make(map[string]*models.ConversationSession)
		}
		s.sessions[owner][stored.ID] = stored
	}

	applyTurn(stored, query, summary, s.opts.MaxHistoryTurns, now)

	// Mirror the committed state back to the caller's copy.
	*session = *cloneSession(stored)
	return nil
}

func (s *MemoryStore) ListForOwner(_ context.Context, owner string) ([]*models.ConversationSession, error) {
	owner = normalizeOwner(owner)
	now := s.opts.Clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(owner, now)

	out := make([]*models.ConversationSession, 0, len(s.sessions[owner]))
	for _, sess := range s.sessions[owner] {
		out = append(out, cloneSession(sess))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out, nil
}

// evictLocked drops expired sessions first, then the oldest beyond the
// per-owner cap. Callers must hold s.mu.
func (s *MemoryStore) evictLocked(owner string, now time.Time) {
	byID := s.sessions[owner]
	if len(byID) == 0 {
		return
	}

	for id, sess := range byID {
		if now.Sub(sess.LastActive) > s.opts.SessionTTL {
			delete(byID, id)
		}
	}

	if len(byID) > s.opts.MaxPerOwner {
		ordered := make([]*models.ConversationSession, 0, len(byID))
		for _, sess := range byID {
			ordered = append(ordered, sess)
		}
		sort.Slice(ordered, func(i, j int) bool {
			return ordered[i].LastActive.Before(ordered[j].LastActive)
		})
		for _, sess := range ordered[:len(byID)-s.opts.MaxPerOwner] {
			delete(byID, sess.ID)
		}
	}

	if len(byID) == 0 {
		delete(s.sessions, owner)
	}
}

func (s *MemoryStore) countLocked() int {
	n := 0
	for _, byID := range s.sessions {
		n += len(byID)
	}
	return n
}

func cloneSession(s *models.ConversationSession) *models.ConversationSession {
	cp := *s
	cp.History = make([]models.Turn, len(s.History))
	copy(cp.History, s.History)
	cp.ActiveEntities = models.EntitySet{}
	for kind, vals := range s.ActiveEntities {
		vv := make([]models.EntityValue, len(vals))
		copy(vv, vals)
		cp.ActiveEntities[kind] = vv
	}
	return &cp
}
