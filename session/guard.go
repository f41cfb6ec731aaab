package session

import (
	"sync/atomic"
	"time"

	"github.com/codewandler/cc-gateway-go/cchat"
)

// Guard holds exclusive use of one conversation's session for the duration
// of a turn. It must be released exactly once via Release.
type Guard struct {
	store     *Store
	key       string
	e         *entry
	ephemeral bool
	released  atomic.Bool
}

// Session returns the underlying CLI session to drive the turn against.
func (g *Guard) Session() *cchat.Session {
	return g.e.cc
}

// Release returns the session to the store. Ok keeps a non-ephemeral
// session in the pool for reuse by a later turn on the same conversation;
// Poisoned (or an ephemeral guard, regardless of outcome) closes the
// session and removes it. Calling Release more than once is a no-op.
func (g *Guard) Release(outcome Outcome) {
	if g.released.Swap(true) {
		return
	}

	if outcome == Ok && !g.ephemeral {
		g.e.lastUsed = time.Now()
		g.e.mu.Unlock()
		return
	}

	g.store.mu.Lock()
	delete(g.store.entries, g.key)
	g.store.mu.Unlock()

	g.e.mu.Unlock()
	g.e.cc.Close()
}
