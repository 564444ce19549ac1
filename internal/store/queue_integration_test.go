package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"
)

// openTestStore connects to the database named by TEST_DATABASE_URL, applies
// migrations, and truncates the queue so each test starts clean. Tests using
// it skip in short mode and when no test database is configured.
func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, databaseURL)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := ApplyMigrations(ctx, db, "../../db/migrations"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE queue_items, connections, note_tags, tags, note_history, notes CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return NewPostgresStore(db)
}

func testItem(id, hash string) QueueItem {
	return QueueItem{
		ID:              id,
		UserID:          "user-int",
		SourceType:      SourceDocument,
		SourceID:        "doc-int",
		ContentSnapshot: "integration content",
		ContentHash:     hash,
		MaxAttempts:     3,
	}
}

func TestEnqueueDeduplicates(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	inserted, err := st.Enqueue(ctx, testItem("job_int_1", "hash-a"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !inserted {
		t.Fatal("first enqueue should insert")
	}

	// Same (user, source, hash) tuple again: silently absorbed.
	inserted, err = st.Enqueue(ctx, testItem("job_int_2", "hash-a"))
	if err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}
	if inserted {
		t.Error("duplicate tuple must not insert")
	}

	// Changed content hash is new work.
	inserted, err = st.Enqueue(ctx, testItem("job_int_3", "hash-b"))
	if err != nil {
		t.Fatalf("enqueue changed content: %v", err)
	}
	if !inserted {
		t.Error("changed content hash should insert")
	}

	counts, err := st.QueueCounts(ctx, "user-int")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Pending != 2 {
		t.Errorf("expected 2 pending, got %d", counts.Pending)
	}
}

func TestClaimHandsEachRowToOneCaller(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	const jobs = 8
	for i := 0; i < jobs; i++ {
		if _, err := st.Enqueue(ctx, testItem(fmt.Sprintf("job_claim_%d", i), fmt.Sprintf("hash-%d", i))); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	var mu sync.Mutex
	claimed := map[string]int{}
	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := st.Claim(ctx, "")
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if item == nil {
					return
				}
				mu.Lock()
				claimed[item.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != jobs {
		t.Fatalf("expected all %d jobs claimed, got %d", jobs, len(claimed))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Errorf("job %s claimed %d times", id, n)
		}
	}
}

func TestClaimStampsAttempt(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.Enqueue(ctx, testItem("job_stamp", "hash-stamp")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	item, err := st.Claim(ctx, "job_stamp")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if item == nil {
		t.Fatal("expected a claim")
	}
	if item.Status != StatusProcessing || item.Attempts != 1 || item.StartedAt == nil {
		t.Errorf("claim should stamp processing/attempt/started_at: %+v", item)
	}

	// A second targeted claim finds nothing: the row is no longer pending.
	again, err := st.Claim(ctx, "job_stamp")
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if again != nil {
		t.Error("processing row must not be claimable")
	}
}

func TestFailureRetriesUntilBudgetSpent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.Enqueue(ctx, testItem("job_retry", "hash-retry")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		item, err := st.Claim(ctx, "job_retry")
		if err != nil {
			t.Fatalf("claim attempt %d: %v", attempt, err)
		}
		if item == nil {
			t.Fatalf("attempt %d: expected claimable row", attempt)
		}
		if item.Attempts != attempt {
			t.Errorf("attempt %d: counter reads %d", attempt, item.Attempts)
		}
		if err := st.CompleteFailure(ctx, item.ID, "boom"); err != nil {
			t.Fatalf("fail attempt %d: %v", attempt, err)
		}

		got, err := st.GetQueueItem(ctx, "job_retry")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		want := StatusPending
		if attempt == 3 {
			want = StatusFailed
		}
		if got.Status != want {
			t.Errorf("after failure %d: status %q, want %q", attempt, got.Status, want)
		}
		if got.ErrorMessage != "boom" {
			t.Errorf("after failure %d: error %q", attempt, got.ErrorMessage)
		}
	}

	// Budget spent: nothing left to claim.
	item, err := st.Claim(ctx, "job_retry")
	if err != nil {
		t.Fatalf("claim after exhaustion: %v", err)
	}
	if item != nil {
		t.Error("terminally failed row must not be claimable")
	}
}

func TestCompleteSuccessRecordsOutcome(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.Enqueue(ctx, testItem("job_done", "hash-done")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := st.Claim(ctx, "job_done"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := st.CompleteSuccess(ctx, "job_done", 3, 8.5, 0.67); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := st.GetQueueItem(ctx, "job_done")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted || got.NotesCreated != 3 || got.CompletedAt == nil {
		t.Errorf("unexpected completed row: %+v", got)
	}
	if got.MeanScore == nil || *got.MeanScore != 8.5 {
		t.Errorf("mean score not recorded: %v", got.MeanScore)
	}
	if got.PassRate == nil || *got.PassRate != 0.67 {
		t.Errorf("pass rate not recorded: %v", got.PassRate)
	}

	// Complete transitions only fire from processing; a second call no-ops.
	if err := st.CompleteSuccess(ctx, "job_done", 99, 0, 0); err != nil {
		t.Fatalf("re-complete: %v", err)
	}
	got, _ = st.GetQueueItem(ctx, "job_done")
	if got.NotesCreated != 3 {
		t.Errorf("terminal row must not be rewritten, notes=%d", got.NotesCreated)
	}
}

func TestResetStuckRevertsOldClaims(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.Enqueue(ctx, testItem("job_stuck", "hash-stuck")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := st.Claim(ctx, "job_stuck"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	// Backdate the claim past the liveness window.
	if _, err := st.DB().ExecContext(ctx, `UPDATE queue_items SET started_at = NOW() - interval '1 hour' WHERE id='job_stuck'`); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	n, err := st.ResetStuck(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 reset, got %d", n)
	}

	got, err := st.GetQueueItem(ctx, "job_stuck")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending || got.StartedAt != nil {
		t.Errorf("reset should revert to pending: %+v", got)
	}
	// The sweep itself does not burn an attempt; the next claim does.
	if got.Attempts != 1 {
		t.Errorf("reset must not change attempts, got %d", got.Attempts)
	}

	item, err := st.Claim(ctx, "job_stuck")
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if item == nil || item.Attempts != 2 {
		t.Errorf("re-claim should stamp attempt 2, got %+v", item)
	}

	// A fresh claim is untouched by the sweep.
	n, err = st.ResetStuck(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if n != 0 {
		t.Errorf("live claim must not be reset, got %d", n)
	}
}
