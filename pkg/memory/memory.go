// Package memory defines the long-term fact store. Facts live beyond the
// session that produced them, unlike DialogueContext slots, which are
// cleared when their intent completes. Only facts a skill explicitly marks
// persistent ever reach a Store.
package memory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Recall and Forget for unknown keys.
var ErrNotFound = errors.New("memory: fact not found")

// Fact is one persisted key/value pair, stamped with the session that
// produced it.
type Fact struct {
	Key       string
	Value     string
	SessionID string
	CreatedAt time.Time
}

// Store is the long-term memory contract. Remember overwrites an existing
// fact with the same key.
//
// Implementations must be safe for concurrent use.
type Store interface {
	Remember(ctx context.Context, fact Fact) error
	Recall(ctx context.Context, key string) (Fact, error)
	List(ctx context.Context) ([]Fact, error)
	Forget(ctx context.Context, key string) error
}
