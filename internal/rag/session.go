package rag

import (
	"context"
	"time"
)

// Exchange is one question/answer turn in a study session.
type Exchange struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}

// SessionStore keeps recent conversation history per session. Implementations
// bound both entry count and lifetime; history is a convenience, losing it is
// harmless.
type SessionStore interface {
	History(ctx context.Context, sessionID string) ([]Exchange, error)
	Append(ctx context.Context, sessionID string, ex Exchange) error
}
