// Package session provides conversation-scoped reuse of long-running
// Claude Code CLI sessions. A Store maps a conversation identifier to a
// live *cchat.Session, guarded by a per-entry lock that must be held for
// the entire duration of one turn, plus a top-level lock that protects only
// the map itself and is never held across CLI I/O.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/cc-gateway-go/cchat"
)

// ErrCapacityExceeded is returned by Acquire/AcquireEphemeral when the store
// is at max_concurrent_sessions and no idle session is eligible for eviction.
var ErrCapacityExceeded = errors.New("session: store at capacity, no idle session to evict")

// Outcome describes how a turn against an acquired session ended.
type Outcome int

const (
	// Ok marks the turn as having completed successfully; the session is
	// returned to the pool with an updated last-used timestamp.
	Ok Outcome = iota
	// Poisoned marks the session as observed in an inconsistent state
	// (timeout, protocol error, terminal CliEvent::Error); it is closed and
	// removed from the store rather than reused.
	Poisoned
)

// Factory builds a new *cchat.Session (spawning the child process). It is
// invoked without the store's top-level lock held.
type Factory func(ctx context.Context) (*cchat.Session, error)

// entry is one conversation's live session plus its serialization lock.
// mu must be held for the entire duration of one turn: from the prompt
// write to the terminal event. It is never released across the
// write/read suspension of a single turn.
type entry struct {
	mu sync.Mutex

	cc        *cchat.Session
	ephemeral bool
	createdAt time.Time
	lastUsed  time.Time

	ready chan struct{} // closed once the factory has resolved (success or failure)
	err   error
}

// Store holds all live sessions. Construction of a Session the whole map
// must go through Acquire/AcquireEphemeral — the store is the sole owner of
// every *cchat.Session it hands out.
type Store struct {
	mu          sync.Mutex // guards entries only; never held across CLI I/O
	entries     map[string]*entry
	maxSessions int
	idleTimeout time.Duration

	reaped atomic.Int64
}

// NewStore creates a Store. maxSessions of 0 means unbounded. idleTimeout of
// 0 disables reaping (Reap becomes a no-op).
func NewStore(maxSessions int, idleTimeout time.Duration) *Store {
	return &Store{
		entries:     make(map[string]*entry),
		maxSessions: maxSessions,
		idleTimeout: idleTimeout,
	}
}

// Acquire returns a Guard for the session bound to conversationID, creating
// one via factory if none exists. Creation is race-free: concurrent callers
// for the same id observe exactly one factory invocation — the second and
// further callers block on the first's placeholder instead of racing it.
func (s *Store) Acquire(ctx context.Context, conversationID string, factory Factory) (*Guard, error) {
	return s.acquire(ctx, conversationID, factory, false)
}

// AcquireEphemeral creates a new anonymous session for exactly one turn.
// The session is always discarded on Release, regardless of Outcome.
func (s *Store) AcquireEphemeral(ctx context.Context, factory Factory) (*Guard, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	return s.acquire(ctx, "ephemeral:"+id, factory, true)
}

func (s *Store) acquire(ctx context.Context, key string, factory Factory, ephemeral bool) (*Guard, error) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		s.mu.Unlock()
		<-e.ready
		if e.err != nil {
			return nil, e.err
		}
		e.mu.Lock()
		return &Guard{store: s, key: key, e: e, ephemeral: ephemeral}, nil
	}

	if s.maxSessions > 0 && len(s.entries) >= s.maxSessions {
		victim, victimKey := s.evictIdleLocked()
		if victim == nil {
			s.mu.Unlock()
			return nil, ErrCapacityExceeded
		}
		s.mu.Unlock()
		victim.cc.Close()
		victim.mu.Unlock()
		s.mu.Lock()
		_ = victimKey
	}

	e := &entry{ready: make(chan struct{})}
	s.entries[key] = e
	s.mu.Unlock()

	cc, err := factory(ctx)
	if err != nil {
		e.err = err
		close(e.ready)
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, err
	}

	now := time.Now()
	e.cc = cc
	e.createdAt = now
	e.lastUsed = now
	close(e.ready)

	e.mu.Lock()
	return &Guard{store: s, key: key, e: e, ephemeral: ephemeral}, nil
}

// evictIdleLocked finds the least-recently-used entry not currently held by
// a turn and removes it from the map, returning it still locked so the
// caller can close it without a concurrent Acquire grabbing it first.
// Must be called with s.mu held; the caller must unlock s.mu before
// closing the returned entry's session (never close while holding the
// top-level lock).
func (s *Store) evictIdleLocked() (*entry, string) {
	var victim *entry
	var victimKey string
	for k, e := range s.entries {
		if e.cc == nil {
			continue // still under construction by another caller
		}
		if !e.mu.TryLock() {
			continue // currently in a turn
		}
		if victim == nil || e.lastUsed.Before(victim.lastUsed) {
			if victim != nil {
				victim.mu.Unlock()
			}
			victim, victimKey = e, k
		} else {
			e.mu.Unlock()
		}
	}
	if victim != nil {
		delete(s.entries, victimKey)
	}
	return victim, victimKey
}

// Reap closes and removes sessions idle past idleTimeout. Returns the
// number reaped. Safe to call from a periodic ticker goroutine.
func (s *Store) Reap(now time.Time) int {
	if s.idleTimeout <= 0 {
		return 0
	}

	var expired []*entry
	s.mu.Lock()
	for k, e := range s.entries {
		if e.cc == nil || !e.mu.TryLock() {
			continue
		}
		if now.Sub(e.lastUsed) >= s.idleTimeout {
			delete(s.entries, k)
			expired = append(expired, e)
		} else {
			e.mu.Unlock()
		}
	}
	s.mu.Unlock()

	for _, e := range expired {
		e.cc.Close()
		e.mu.Unlock()
	}
	s.reaped.Add(int64(len(expired)))
	return len(expired)
}

// CloseAll closes every live session. Used on shutdown.
func (s *Store) CloseAll() {
	s.mu.Lock()
	all := make([]*entry, 0, len(s.entries))
	for k, e := range s.entries {
		delete(s.entries, k)
		all = append(all, e)
	}
	s.mu.Unlock()

	for _, e := range all {
		<-e.ready
		if e.cc != nil {
			e.cc.Close()
		}
	}
}

// Stats reports the current size of the store and the cumulative reap count.
type Stats struct {
	Active int
	Reaped int64
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	active := len(s.entries)
	s.mu.Unlock()
	return Stats{Active: active, Reaped: s.reaped.Load()}
}
