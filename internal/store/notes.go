package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const noteColumns = `id, user_id, title, content, COALESCE(purpose, ''), COALESCE(maturity, ''),
	COALESCE(note_type, ''), COALESCE(stakeholder, ''), COALESCE(project_name, ''),
	score, COALESCE(breakdown::text, '{}'), quality_state, evaluated_at,
	source_type, source_id, created_at, updated_at`

func scanNote(row interface{ Scan(...any) error }) (Note, error) {
	var n Note
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Content,
		&n.Purpose,
		&n.Maturity,
		&n.NoteType,
		&n.Stakeholder,
		&n.ProjectName,
		&n.Score,
		&n.Breakdown,
		&n.QualityState,
		&n.EvaluatedAt,
		&n.SourceType,
		&n.SourceID,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	return n, err
}

func (s *PostgresStore) InsertNote(ctx context.Context, note Note) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, user_id, title, content, purpose, maturity, note_type, stakeholder, project_name,
			score, breakdown, quality_state, evaluated_at, source_type, source_id)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''),
			$10, $11::jsonb, $12, $13, $14, $15)
	`, note.ID, note.UserID, note.Title, note.Content, note.Purpose, note.Maturity, note.NoteType,
		note.Stakeholder, note.ProjectName, note.Score, note.Breakdown, note.QualityState,
		note.EvaluatedAt, note.SourceType, note.SourceID)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// GetNoteByTitle resolves a note by case-insensitive exact title match.
// Returns (nil, nil) when no note matches.
func (s *PostgresStore) GetNoteByTitle(ctx context.Context, userID, title string) (*Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE user_id=$1 AND LOWER(title)=LOWER($2)
		ORDER BY created_at ASC
		LIMIT 1
	`, userID, title)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note by title: %w", err)
	}
	return &note, nil
}

func (s *PostgresStore) GetNote(ctx context.Context, noteID string) (Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id=$1`, noteID)
	note, err := scanNote(row)
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

// ConsolidateNote archives the note's current title/content to note_history
// and overwrites the content, recording the triggering source. Both writes
// happen in one transaction so a consolidation can never lose the prior
// content.
func (s *PostgresStore) ConsolidateNote(ctx context.Context, noteID, mergedContent, sourceType, sourceID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin consolidate tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO note_history (note_id, title, content, source_type, source_id)
		SELECT id, title, content, $2, $3 FROM notes WHERE id=$1
	`, noteID, sourceType, sourceID); err != nil {
		return fmt.Errorf("archive note history: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE notes
		SET content=$2, source_type=$3, source_id=$4, updated_at=NOW()
		WHERE id=$1
	`, noteID, mergedContent, sourceType, sourceID)
	if err != nil {
		return fmt.Errorf("consolidate note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("consolidate note rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("consolidate note: note %s not found", noteID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit consolidate: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNoteHistory(ctx context.Context, noteID string) ([]NoteHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, note_id, title, content, source_type, source_id, archived_at
		FROM note_history
		WHERE note_id=$1
		ORDER BY archived_at DESC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list note history: %w", err)
	}
	defer rows.Close()

	items := make([]NoteHistory, 0)
	for rows.Next() {
		var h NoteHistory
		if err := rows.Scan(&h.ID, &h.NoteID, &h.Title, &h.Content, &h.SourceType, &h.SourceID, &h.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan note history: %w", err)
		}
		items = append(items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note history: %w", err)
	}
	return items, nil
}

// UpsertTag reuses an existing tag by normalized name or creates it.
// The conflict clause makes concurrent first-inserts of the same tag
// converge on one row.
func (s *PostgresStore) UpsertTag(ctx context.Context, userID, id, name string) (Tag, error) {
	var tag Tag
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tags (id, user_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, name) DO UPDATE SET name=EXCLUDED.name
		RETURNING id, user_id, name, created_at
	`, id, userID, name).Scan(&tag.ID, &tag.UserID, &tag.Name, &tag.CreatedAt)
	if err != nil {
		return Tag{}, fmt.Errorf("upsert tag: %w", err)
	}
	return tag, nil
}

func (s *PostgresStore) TagNote(ctx context.Context, noteID, tagID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO note_tags (note_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT (note_id, tag_id) DO NOTHING
	`, noteID, tagID)
	if err != nil {
		return fmt.Errorf("tag note: %w", err)
	}
	return nil
}

// ListTagsForNote returns the tag names attached to one note.
func (s *PostgresStore) ListTagsForNote(ctx context.Context, noteID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		WHERE nt.note_id=$1
		ORDER BY t.name ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list note tags: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan note tag: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note tags: %w", err)
	}
	return names, nil
}

func (s *PostgresStore) ListTagNames(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM tags WHERE user_id=$1 ORDER BY name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return names, nil
}

// InsertConnection records a directed edge between notes. Duplicate edges
// of the same type are ignored.
func (s *PostgresStore) InsertConnection(ctx context.Context, conn Connection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (id, user_id, from_note_id, to_note_id, conn_type, strength)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (from_note_id, to_note_id, conn_type) DO NOTHING
	`, conn.ID, conn.UserID, conn.FromNoteID, conn.ToNoteID, conn.Type, conn.Strength)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListConnections(ctx context.Context, fromNoteID string) ([]Connection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, from_note_id, to_note_id, conn_type, strength, created_at
		FROM connections
		WHERE from_note_id=$1
		ORDER BY created_at ASC
	`, fromNoteID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	items := make([]Connection, 0)
	for rows.Next() {
		var c Connection
		if err := rows.Scan(&c.ID, &c.UserID, &c.FromNoteID, &c.ToNoteID, &c.Type, &c.Strength, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListActiveGoals(ctx context.Context, userID string) ([]Goal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, COALESCE(motivation, ''), active, created_at
		FROM goals
		WHERE user_id=$1 AND active
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list active goals: %w", err)
	}
	defer rows.Close()

	items := make([]Goal, 0)
	for rows.Next() {
		var g Goal
		if err := rows.Scan(&g.ID, &g.UserID, &g.Title, &g.Motivation, &g.Active, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		items = append(items, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListMOCNames(ctx context.Context, userID string) ([]string, error) {
	return s.listNames(ctx, `SELECT name FROM mocs WHERE user_id=$1 ORDER BY name ASC`, userID, "mocs")
}

func (s *PostgresStore) ListProjectNames(ctx context.Context, userID string) ([]string, error) {
	return s.listNames(ctx, `SELECT name FROM projects WHERE user_id=$1 ORDER BY name ASC`, userID, "projects")
}

func (s *PostgresStore) listNames(ctx context.Context, query, userID, label string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", label, err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan %s: %w", label, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", label, err)
	}
	return names, nil
}

func (s *PostgresStore) InsertGoal(ctx context.Context, goal Goal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, title, motivation, active)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (id) DO NOTHING
	`, goal.ID, goal.UserID, goal.Title, goal.Motivation, goal.Active)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertMOC(ctx context.Context, moc MapOfContent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mocs (id, user_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, name) DO NOTHING
	`, moc.ID, moc.UserID, moc.Name)
	if err != nil {
		return fmt.Errorf("insert moc: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertProject(ctx context.Context, project Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, user_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, name) DO NOTHING
	`, project.ID, project.UserID, project.Name)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// ListNotes returns all of a user's notes, newest first.
func (s *PostgresStore) ListNotes(ctx context.Context, userID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountGoals(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM goals WHERE user_id=$1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count goals: %w", err)
	}
	return count, nil
}
