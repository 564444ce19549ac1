// Package search retrieves related notes for extraction context building.
// Meilisearch serves remote queries when configured and healthy; Postgres
// full-text search is the always-available fallback.
package search

// Query asks for a user's notes matching any of the extracted keywords.
type Query struct {
	UserID   string
	Keywords []string
	Limit    int
}

// Result is one related note, ranked by weighted keyword match where a
// title hit outweighs a body hit.
type Result struct {
	ID      string
	Title   string
	Content string
}

// NoteRecord is the indexable projection of a note.
type NoteRecord struct {
	ID      string `json:"id"`
	UserID  string `json:"userId"`
	Title   string `json:"title"`
	Content string `json:"content"`
}
