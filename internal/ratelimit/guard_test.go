package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupTestGuard(t *testing.T, maxPending, maxHourly int) (*Guard, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	g, err := NewGuard("redis://"+s.Addr(), maxPending, maxHourly)
	if err != nil {
		t.Fatalf("failed to create guard: %v", err)
	}
	return g, s
}

func TestNilGuardAllows(t *testing.T) {
	var g *Guard
	d := g.Check(context.Background(), "user-1")
	if !d.Allowed {
		t.Error("nil guard should allow")
	}
	// These must be safe no-ops.
	g.RecordEnqueue(context.Background(), "user-1")
	g.RecordDone(context.Background(), "user-1")
}

func TestPendingCap(t *testing.T) {
	g, s := setupTestGuard(t, 2, 100)
	defer g.Close()
	defer s.Close()

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if d := g.Check(ctx, "user-1"); !d.Allowed {
			t.Fatalf("enqueue %d should be allowed: %s", i, d.Reason)
		}
		g.RecordEnqueue(ctx, "user-1")
	}

	if d := g.Check(ctx, "user-1"); d.Allowed {
		t.Error("third enqueue should be blocked by pending cap")
	}

	// Another user is unaffected.
	if d := g.Check(ctx, "user-2"); !d.Allowed {
		t.Errorf("user-2 should be allowed: %s", d.Reason)
	}

	// Finishing a job frees a slot.
	g.RecordDone(ctx, "user-1")
	if d := g.Check(ctx, "user-1"); !d.Allowed {
		t.Errorf("enqueue after completion should be allowed: %s", d.Reason)
	}
}

func TestHourlyLimit(t *testing.T) {
	g, s := setupTestGuard(t, 100, 3)
	defer g.Close()
	defer s.Close()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if d := g.Check(ctx, "user-1"); !d.Allowed {
			t.Fatalf("enqueue %d should be allowed: %s", i, d.Reason)
		}
		g.RecordEnqueue(ctx, "user-1")
		// Completing jobs does not refund the hourly budget.
		g.RecordDone(ctx, "user-1")
	}

	d := g.Check(ctx, "user-1")
	if d.Allowed {
		t.Fatal("fourth enqueue in the hour should be blocked")
	}
	if d.Reason == "" {
		t.Error("blocked decision should carry a reason")
	}
}

func TestRedisDownAllows(t *testing.T) {
	g, s := setupTestGuard(t, 1, 1)
	defer g.Close()

	s.Close()

	if d := g.Check(context.Background(), "user-1"); !d.Allowed {
		t.Errorf("guard should allow when redis is unreachable, got: %s", d.Reason)
	}
}

func TestRecordDoneNeverGoesNegative(t *testing.T) {
	g, s := setupTestGuard(t, 1, 100)
	defer g.Close()
	defer s.Close()

	ctx := context.Background()

	// Done without a matching enqueue, then a real cycle.
	g.RecordDone(ctx, "user-1")
	if d := g.Check(ctx, "user-1"); !d.Allowed {
		t.Fatalf("expected allow after stray done: %s", d.Reason)
	}
	g.RecordEnqueue(ctx, "user-1")
	if d := g.Check(ctx, "user-1"); d.Allowed {
		t.Error("pending cap of 1 should block the second enqueue")
	}
}
