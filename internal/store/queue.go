package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const queueColumns = `id, user_id, source_type, source_id, content_snapshot, content_hash,
	status, priority, attempts, max_attempts, COALESCE(error_message, ''), notes_created,
	mean_score, pass_rate, created_at, started_at, completed_at`

func scanQueueItem(row interface{ Scan(...any) error }) (QueueItem, error) {
	var item QueueItem
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.SourceType,
		&item.SourceID,
		&item.ContentSnapshot,
		&item.ContentHash,
		&item.Status,
		&item.Priority,
		&item.Attempts,
		&item.MaxAttempts,
		&item.ErrorMessage,
		&item.NotesCreated,
		&item.MeanScore,
		&item.PassRate,
		&item.CreatedAt,
		&item.StartedAt,
		&item.CompletedAt,
	)
	return item, err
}

// Enqueue inserts a new extraction job. The insert is a no-op when the
// (user, source type, source id, content hash) tuple already exists:
// re-saving unchanged content never re-enqueues. Returns true when a new
// row was created.
func (s *PostgresStore) Enqueue(ctx context.Context, item QueueItem) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_items (id, user_id, source_type, source_id, content_snapshot, content_hash, status, priority, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8)
		ON CONFLICT (user_id, source_type, source_id, content_hash) DO NOTHING
	`, item.ID, item.UserID, item.SourceType, item.SourceID, item.ContentSnapshot, item.ContentHash, item.Priority, item.MaxAttempts)
	if err != nil {
		return false, fmt.Errorf("enqueue item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue item rows: %w", err)
	}
	return affected > 0, nil
}

// Claim atomically locks and transitions exactly one pending row to
// processing. With a target ID it claims that row only if still pending;
// otherwise it takes the highest-priority, oldest pending row. SKIP LOCKED
// keeps concurrent claimers from blocking on each other: each pending row
// is handed to at most one caller. Returns (nil, nil) when there is no
// claimable work.
func (s *PostgresStore) Claim(ctx context.Context, targetID string) (*QueueItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	if targetID != "" {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM queue_items
			WHERE id=$1 AND status='pending'
			FOR UPDATE SKIP LOCKED
		`, targetID).Scan(&id)
	} else {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM queue_items
			WHERE status='pending'
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		`).Scan(&id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select claimable item: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE queue_items
		SET status='processing', started_at=NOW(), attempts=attempts+1
		WHERE id=$1
		RETURNING `+queueColumns+`
	`, id)
	item, err := scanQueueItem(row)
	if err != nil {
		return nil, fmt.Errorf("claim item %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return &item, nil
}

// CompleteSuccess marks a processing job completed and records the batch
// outcome alongside it.
func (s *PostgresStore) CompleteSuccess(ctx context.Context, id string, notesCreated int, meanScore, passRate float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status='completed', notes_created=$2, mean_score=$3, pass_rate=$4, error_message=NULL, completed_at=NOW()
		WHERE id=$1 AND status='processing'
	`, id, notesCreated, meanScore, passRate)
	if err != nil {
		return fmt.Errorf("complete item: %w", err)
	}
	return nil
}

// CompleteSkipped marks a processing job skipped: the generator found
// nothing extractable. Not a failure.
func (s *PostgresStore) CompleteSkipped(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status='skipped', notes_created=0, completed_at=NOW()
		WHERE id=$1 AND status='processing'
	`, id)
	if err != nil {
		return fmt.Errorf("skip item: %w", err)
	}
	return nil
}

// CompleteFailure records a job error. While attempts remain below the
// budget the row reverts to pending for a later claim (started_at cleared
// so the next claim re-stamps it); once the budget is spent the row
// becomes terminal failed.
func (s *PostgresStore) CompleteFailure(ctx context.Context, id, errorMessage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status     = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
			started_at  = CASE WHEN attempts >= max_attempts THEN started_at ELSE NULL END,
			completed_at = CASE WHEN attempts >= max_attempts THEN NOW() ELSE NULL END,
			error_message = $2
		WHERE id=$1 AND status='processing'
	`, id, errorMessage)
	if err != nil {
		return fmt.Errorf("fail item: %w", err)
	}
	return nil
}

// ResetStuck sweeps processing rows whose claim is older than the liveness
// window back to pending. It uses the same transition as a transient
// failure so an in-flight worker that finishes late loses the race
// cleanly: its Complete* no-ops once the status is no longer processing.
// Attempts are not incremented here; the next claim does that.
func (s *PostgresStore) ResetStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status='pending', started_at=NULL, error_message='reset after liveness window'
		WHERE status='processing' AND started_at < NOW() - $1::interval
	`, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("reset stuck items: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset stuck rows: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) GetQueueItem(ctx context.Context, id string) (QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queue_items WHERE id=$1`, id)
	item, err := scanQueueItem(row)
	if err != nil {
		return QueueItem{}, err
	}
	return item, nil
}

// QueueCounts returns per-status totals, scoped to one user when userID is
// non-empty.
func (s *PostgresStore) QueueCounts(ctx context.Context, userID string) (QueueCounts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)::int
		FROM queue_items
		WHERE ($1='' OR user_id=$1)
		GROUP BY status
	`, userID)
	if err != nil {
		return QueueCounts{}, fmt.Errorf("count queue items: %w", err)
	}
	defer rows.Close()

	var counts QueueCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return QueueCounts{}, fmt.Errorf("scan queue count: %w", err)
		}
		switch status {
		case StatusPending:
			counts.Pending = n
		case StatusProcessing:
			counts.Processing = n
		case StatusCompleted:
			counts.Completed = n
		case StatusFailed:
			counts.Failed = n
		case StatusSkipped:
			counts.Skipped = n
		}
	}
	if err := rows.Err(); err != nil {
		return QueueCounts{}, fmt.Errorf("iterate queue counts: %w", err)
	}
	return counts, nil
}

// RecentQueueItems lists the most recently created jobs, newest first.
func (s *PostgresStore) RecentQueueItems(ctx context.Context, userID string, limit int) ([]QueueItem, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM queue_items
		WHERE ($1='' OR user_id=$1)
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent queue items: %w", err)
	}
	defer rows.Close()

	items := make([]QueueItem, 0)
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue items: %w", err)
	}
	return items, nil
}
