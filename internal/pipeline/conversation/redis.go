// internal/pipeline/conversation/redis.go
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"nycdb-insight/internal/common/logger"
	"nycdb-insight/internal/models"
)

// RedisStore externalizes conversation state so sessions survive restarts and
// can be shared across replicas. Layout:
//
//	conv:sess:{owner}:{id}  JSON session document, expires with the TTL
//	conv:idx:{owner}        ZSET of session ids scored by last-active unix time
type RedisStore struct {
	client *redis.Client
	opts   Options
	logger logger.Logger
}

func NewRedisStore(client *redis.Client, opts Options, log logger.Logger) *RedisStore {
	opts.applyDefaults()
	return &RedisStore{
		client: client,
		opts:   opts,
		logger: log.WithFields(map[string]interface{}{"component": "conversation", "backend": "redis"}),
	}
}

func sessKey(owner, id string) string { return fmt.Sprintf("conv:sess:%s:%s", owner, id) }
func idxKey(owner string) string      { return fmt.Sprintf("conv:idx:%s", owner) }

func (s *RedisStore) GetOrCreate(ctx context.Context, owner, sessionID string) (*models.ConversationSession, error) {
	owner = normalizeOwner(owner)
	now := s.opts.Clock()

	if err := s.evict(ctx, owner, now); err != nil {
		return nil, err
	}

	if sessionID != "" {
		sess, err := s.load(ctx, owner, sessionID)
		if err == nil {
			sess.Touch(now)
			if err := s.save(ctx, sess); err != nil {
				return nil, err
			}
			return sess, nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		// Expired or foreign id: fall through and create a fresh session.
	}

	sess := &models.ConversationSession{
		ID:             uuid.NewString(),
		Owner:          owner,
		CreatedAt:      now,
		LastActive:     now,
		ActiveEntities: models.EntitySet{},
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.evict(ctx, owner, now); err != nil {
		return nil, err
	}

	return sess, nil
}

func (s *RedisStore) Get(ctx context.Context, owner, sessionID string) (*models.ConversationSession, error) {
	return s.load(ctx, normalizeOwner(owner), sessionID)
}

func (s *RedisStore) Record(ctx context.Context, session *models.ConversationSession, query models.StructuredQuery, summary string) error {
	owner := normalizeOwner(session.Owner)
	now := s.opts.Clock()

	stored, err := s.load(ctx, owner, session.ID)
	if errors.Is(err, ErrSessionNotFound) {
		stored = session
	} else if err != nil {
		return err
	}

	applyTurn(stored, query, summary, s.opts.MaxHistoryTurns, now)

	if err := s.save(ctx, stored); err != nil {
		return err
	}
	*session = *stored
	return nil
}

func (s *RedisStore) ListForOwner(ctx context.Context, owner string) ([]*models.ConversationSession, error) {
	owner = normalizeOwner(owner)
	now := s.opts.Clock()

	if err := s.evict(ctx, owner, now); err != nil {
		return nil, err
	}

	ids, err := s.client.ZRevRange(ctx, idxKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]*models.ConversationSession, 0, len(ids))
	for _, id := range ids {
		sess, err := s.load(ctx, owner, id)
		if errors.Is(err, ErrSessionNotFound) {
			// Document expired ahead of its index entry; skip it.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *RedisStore) load(ctx context.Context, owner, id string) (*models.ConversationSession, error) {
	val, err := s.client.Get(ctx, sessKey(owner, id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess models.ConversationSession
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if sess.Owner != owner {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (s *RedisStore) save(ctx context.Context, sess *models.ConversationSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessKey(sess.Owner, sess.ID), data, s.opts.SessionTTL)
	pipe.ZAdd(ctx, idxKey(sess.Owner), redis.Z{
		Score:  float64(sess.LastActive.Unix()),
		Member: sess.ID,
	})
	pipe.Expire(ctx, idxKey(sess.Owner), s.opts.SessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// evict drops index entries past the TTL cutoff, then trims the owner to the
// session cap, deleting trimmed documents.
func (s *RedisStore) evict(ctx context.Context, owner string, now time.Time) error {
	cutoff := now.Add(-s.opts.SessionTTL).Unix()

	stale, err := s.client.ZRangeByScore(ctx, idxKey(owner), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("evict scan: %w", err)
	}
	for _, id := range stale {
		s.client.Del(ctx, sessKey(owner, id))
	}
	if len(stale) > 0 {
		s.client.ZRemRangeByScore(ctx, idxKey(owner), "-inf", fmt.Sprintf("%d", cutoff))
	}

	total, err := s.client.ZCard(ctx, idxKey(owner)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("evict count: %w", err)
	}
	if int(total) > s.opts.MaxPerOwner {
		excess := int(total) - s.opts.MaxPerOwner
		oldest, err := s.client.ZRange(ctx, idxKey(owner), 0, int64(excess-1)).Result()
		if err != nil {
			return fmt.Errorf("evict trim: %w", err)
		}
		for _, id := range oldest {
			s.client.Del(ctx, sessKey(owner, id))
		}
		s.client.ZRemRangeByRank(ctx, idxKey(owner), 0, int64(excess-1))
	}
	return nil
}
