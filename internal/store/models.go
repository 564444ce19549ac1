package store

import "time"

// Queue item lifecycle statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusSkipped    = "skipped"
)

// Queue item source types.
const (
	SourceDocument        = "document"
	SourceCoachingSession = "coaching_session"
	SourceManualNote      = "manual_note"
)

// Note quality states.
const (
	QualityPassing     = "passing"
	QualityNeedsReview = "needs_review"
)

// QueueItem is one unit of extraction work. Rows are never deleted; the
// queue doubles as the extraction audit trail.
type QueueItem struct {
	ID              string
	UserID          string
	SourceType      string
	SourceID        string
	ContentSnapshot string
	ContentHash     string
	Status          string
	Priority        int
	Attempts        int
	MaxAttempts     int
	ErrorMessage    string
	NotesCreated    int
	MeanScore       *float64
	PassRate        *float64
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// Note is an accepted atomic knowledge unit.
type Note struct {
	ID           string
	UserID       string
	Title        string
	Content      string
	Purpose      string
	Maturity     string // Seed, Sapling, Evergreen
	NoteType     string // Logic, Technical, Reflection
	Stakeholder  string
	ProjectName  string
	Score        int
	Breakdown    string // JSON component breakdown from the evaluator
	QualityState string // passing or needs_review
	EvaluatedAt  *time.Time
	SourceType   string
	SourceID     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NoteHistory preserves a note's title/content as they were before a
// consolidation overwrote them.
type NoteHistory struct {
	ID         int64
	NoteID     string
	Title      string
	Content    string
	SourceType string
	SourceID   string
	ArchivedAt time.Time
}

type Tag struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

type Connection struct {
	ID         string
	UserID     string
	FromNoteID string
	ToNoteID   string
	Type       string
	Strength   float64
	CreatedAt  time.Time
}

type Goal struct {
	ID         string
	UserID     string
	Title      string
	Motivation string
	Active     bool
	CreatedAt  time.Time
}

// MapOfContent is a hub note name; targets of upward connections.
type MapOfContent struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

type Project struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
}

// QueueCounts groups queue items by status for the status query.
type QueueCounts struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Skipped    int
}
