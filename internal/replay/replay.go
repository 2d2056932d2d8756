// Package replay provides at-most-once admission for access token
// identifiers. The first admission of a jti wins; every retry before the
// token's own expiry is rejected. After expiry the identifier may be reused.
package replay

import (
	"context"
	"sync"
	"time"
)

// Guard is the admission check consulted by the submission path.
type Guard interface {
	// Admit returns true exactly once per distinct jti before expiresAt.
	Admit(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
}

// MemoryGuard is the single-instance guard: a mutex-protected map with lazy
// purging of expired entries. Suitable only when one process serves all
// submissions.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{entries: make(map[string]time.Time)}
}

func (g *MemoryGuard) Admit(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if exp, ok := g.entries[jti]; ok && exp.After(now) {
		return false, nil
	}

	g.entries[jti] = expiresAt
	g.purgeLocked(now)
	return true, nil
}

// purgeLocked drops expired entries. Called under g.mu on every admission;
// the map stays bounded by the number of live tokens.
func (g *MemoryGuard) purgeLocked(now time.Time) {
	for jti, exp := range g.entries {
		if !exp.After(now) {
			delete(g.entries, jti)
		}
	}
}
