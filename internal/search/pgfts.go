package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements related-note retrieval using PostgreSQL full-text
// search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches notes against the keyword set. The notes table builds its
// tsvector with title at weight A and content at weight B, so ts_rank
// already prefers title matches over body matches.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, error) {
	keywords := joinKeywords(q.Keywords)
	if keywords == "" {
		return nil, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, content
		FROM notes
		WHERE user_id=$1
		  AND fts @@ to_tsquery('english', $2)
		ORDER BY ts_rank(fts, to_tsquery('english', $2)) DESC
		LIMIT $3
	`, q.UserID, keywords, limit)
	if err != nil {
		return nil, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Content); err != nil {
			return nil, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// LoadAllRecords returns all indexable notes for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]NoteRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, title, content
		FROM notes
	`)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	defer rows.Close()

	records := make([]NoteRecord, 0)
	for rows.Next() {
		var r NoteRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.Content); err != nil {
			return nil, fmt.Errorf("scan note record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note records: %w", err)
	}
	return records, nil
}

// joinKeywords builds an OR tsquery from sanitized keywords. Keywords come
// from our own tokenizer, but strip tsquery syntax anyway.
func joinKeywords(keywords []string) string {
	cleaned := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.Map(func(r rune) rune {
			switch r {
			case '&', '|', '!', '(', ')', ':', '\'', '*':
				return -1
			}
			return r
		}, strings.TrimSpace(kw))
		if kw != "" {
			cleaned = append(cleaned, kw)
		}
	}
	return strings.Join(cleaned, " | ")
}
