package session

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/codewandler/cc-gateway-go/cchat"
)

func requireCLI(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("claude"); err != nil {
		t.Skip("claude CLI not available")
	}
}

func newTestFactory(t *testing.T) Factory {
	client := cchat.NewClient(&cchat.ClientConfig{CLIPath: "claude", Model: "haiku"})
	return func(ctx context.Context) (*cchat.Session, error) {
		return client.Spawn(ctx, cchat.SpawnOptions{})
	}
}

// TestAcquire_ReusesSameConversation verifies that a second Acquire for the
// same conversation id after a clean Release returns the same session
// rather than spawning a new process.
func TestAcquire_ReusesSameConversation(t *testing.T) {
	requireCLI(t)
	t.Parallel()

	store := NewStore(0, 0)
	factory := newTestFactory(t)
	ctx := context.Background()

	g1, err := store.Acquire(ctx, "conv-1", factory)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	first := g1.Session()
	g1.Release(Ok)

	g2, err := store.Acquire(ctx, "conv-1", factory)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	defer g2.Release(Ok)

	if g2.Session() != first {
		t.Error("expected the same session to be reused across Acquire calls")
	}
}

// TestAcquire_ConcurrentSameConversation verifies that concurrent Acquire
// calls for one conversation id observe exactly one factory invocation.
func TestAcquire_ConcurrentSameConversation(t *testing.T) {
	requireCLI(t)
	t.Parallel()

	store := NewStore(0, 0)
	factory := newTestFactory(t)
	ctx := context.Background()

	const n = 5
	results := make(chan *Guard, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			g, err := store.Acquire(ctx, "conv-shared", factory)
			if err != nil {
				errs <- err
				return
			}
			results <- g
		}()
	}

	var guards []*Guard
	for i := 0; i < n; i++ {
		select {
		case g := <-results:
			guards = append(guards, g)
		case err := <-errs:
			t.Fatalf("acquire failed: %v", err)
		}
	}

	// Exactly one goroutine should have won the race and created the
	// session; every guard received after that must serialize on the
	// same entry's lock, so at most one Session() pointer appears and
	// guards must be released one at a time.
	first := guards[0].Session()
	for _, g := range guards[1:] {
		if g.Session() != first {
			t.Error("expected all concurrent acquires to share one session")
		}
	}
	for _, g := range guards {
		g.Release(Ok)
	}
}

// TestAcquire_PoisonedRemovesSession verifies that releasing with Poisoned
// closes the session and a subsequent Acquire creates a fresh one.
func TestAcquire_PoisonedRemovesSession(t *testing.T) {
	requireCLI(t)
	t.Parallel()

	store := NewStore(0, 0)
	factory := newTestFactory(t)
	ctx := context.Background()

	g1, err := store.Acquire(ctx, "conv-poison", factory)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	first := g1.Session()
	g1.Release(Poisoned)

	g2, err := store.Acquire(ctx, "conv-poison", factory)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	defer g2.Release(Ok)

	if g2.Session() == first {
		t.Error("expected a new session after a poisoned release")
	}
}

// TestAcquireEphemeral_AlwaysDiscarded verifies an ephemeral guard is
// removed from the store on Release regardless of outcome.
func TestAcquireEphemeral_AlwaysDiscarded(t *testing.T) {
	requireCLI(t)
	t.Parallel()

	store := NewStore(0, 0)
	factory := newTestFactory(t)
	ctx := context.Background()

	g, err := store.AcquireEphemeral(ctx, factory)
	if err != nil {
		t.Fatalf("acquire ephemeral: %v", err)
	}
	if stats := store.Stats(); stats.Active != 1 {
		t.Fatalf("expected 1 active session, got %d", stats.Active)
	}
	g.Release(Ok)

	if stats := store.Stats(); stats.Active != 0 {
		t.Errorf("expected ephemeral session to be discarded, got %d active", stats.Active)
	}
}

// TestAcquire_CapacityExceeded verifies that with all sessions in a turn,
// a store at capacity rejects new conversations with ErrCapacityExceeded.
func TestAcquire_CapacityExceeded(t *testing.T) {
	requireCLI(t)
	t.Parallel()

	store := NewStore(1, 0)
	factory := newTestFactory(t)
	ctx := context.Background()

	g1, err := store.Acquire(ctx, "conv-a", factory)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer g1.Release(Ok)

	_, err = store.Acquire(ctx, "conv-b", factory)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

// TestAcquire_EvictsIdleAtCapacity verifies that an idle (released)
// session is evicted to make room for a new conversation at capacity.
func TestAcquire_EvictsIdleAtCapacity(t *testing.T) {
	requireCLI(t)
	t.Parallel()

	store := NewStore(1, 0)
	factory := newTestFactory(t)
	ctx := context.Background()

	g1, err := store.Acquire(ctx, "conv-a", factory)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	g1.Release(Ok) // now idle, eligible for eviction

	g2, err := store.Acquire(ctx, "conv-b", factory)
	if err != nil {
		t.Fatalf("expected eviction to make room, got error: %v", err)
	}
	defer g2.Release(Ok)

	if stats := store.Stats(); stats.Active != 1 {
		t.Errorf("expected exactly 1 active session after eviction, got %d", stats.Active)
	}
}

// TestReap_RemovesIdleSessions verifies Reap closes sessions idle past
// idleTimeout and leaves recently used ones alone.
func TestReap_RemovesIdleSessions(t *testing.T) {
	requireCLI(t)
	t.Parallel()

	store := NewStore(0, 10*time.Millisecond)
	factory := newTestFactory(t)
	ctx := context.Background()

	g, err := store.Acquire(ctx, "conv-idle", factory)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	g.Release(Ok)

	time.Sleep(20 * time.Millisecond)

	n := store.Reap(time.Now())
	if n != 1 {
		t.Errorf("expected 1 session reaped, got %d", n)
	}
	if stats := store.Stats(); stats.Active != 0 {
		t.Errorf("expected 0 active sessions after reap, got %d", stats.Active)
	}
	if stats := store.Stats(); stats.Reaped != 1 {
		t.Errorf("expected cumulative reaped count of 1, got %d", stats.Reaped)
	}
}

// TestReap_SkipsInFlightTurns verifies Reap never touches a session
// currently held by an unreleased guard, even past its idle deadline.
func TestReap_SkipsInFlightTurns(t *testing.T) {
	requireCLI(t)
	t.Parallel()

	store := NewStore(0, 1*time.Millisecond)
	factory := newTestFactory(t)
	ctx := context.Background()

	g, err := store.Acquire(ctx, "conv-busy", factory)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer g.Release(Ok)

	time.Sleep(10 * time.Millisecond)

	n := store.Reap(time.Now())
	if n != 0 {
		t.Errorf("expected in-flight session to survive reap, got %d reaped", n)
	}
}

// TestCloseAll_ClosesEverySession verifies CloseAll empties the store.
func TestCloseAll_ClosesEverySession(t *testing.T) {
	requireCLI(t)
	t.Parallel()

	store := NewStore(0, 0)
	factory := newTestFactory(t)
	ctx := context.Background()

	for _, id := range []string{"conv-1", "conv-2", "conv-3"} {
		g, err := store.Acquire(ctx, id, factory)
		if err != nil {
			t.Fatalf("acquire %s: %v", id, err)
		}
		g.Release(Ok)
	}

	store.CloseAll()

	if stats := store.Stats(); stats.Active != 0 {
		t.Errorf("expected 0 active sessions after CloseAll, got %d", stats.Active)
	}
}
