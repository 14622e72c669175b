package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studypartner/backend/internal/rag"
)

// SessionStore keeps per-session conversation history in Redis so follow-up
// questions can reference earlier exchanges. Each session is one JSON list
// under a TTL; the TTL refreshes on every append.
type SessionStore struct {
	cache    *Cache
	ttl      time.Duration
	maxTurns int
}

func NewSessionStore(cache *Cache, ttl time.Duration, maxTurns int) *SessionStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxTurns <= 0 {
		maxTurns = 5
	}
	return &SessionStore{cache: cache, ttl: ttl, maxTurns: maxTurns}
}

func (s *SessionStore) History(ctx context.Context, sessionID string) ([]rag.Exchange, error) {
	var history []rag.Exchange
	err := s.cache.Get(ctx, sessionKey(sessionID), &history)
	if errors.Is(err, ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return history, nil
}

func (s *SessionStore) Append(ctx context.Context, sessionID string, ex rag.Exchange) error {
	history, err := s.History(ctx, sessionID)
	if err != nil {
		return err
	}
	history = append(history, ex)
	if len(history) > s.maxTurns {
		history = history[len(history)-s.maxTurns:]
	}
	if err := s.cache.Set(ctx, sessionKey(sessionID), history, s.ttl); err != nil {
		return fmt.Errorf("store session %s: %w", sessionID, err)
	}
	return nil
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}
