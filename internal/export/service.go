package export

import (
	"context"
	"fmt"
	"time"

	"arbor/api/internal/store"
)

// DataStore defines the data access the digest needs.
type DataStore interface {
	ListNotes(ctx context.Context, userID string) ([]store.Note, error)
	ListTagsForNote(ctx context.Context, noteID string) ([]string, error)
}

// Service builds note digests.
type Service struct {
	store DataStore
}

func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Digest renders the user's most recent notes in the requested format.
func (s *Service) Digest(ctx context.Context, req Request) (*Result, error) {
	notes, err := s.store.ListNotes(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	if len(notes) == 0 {
		return nil, ErrNoNotes
	}
	if req.Limit > 0 && len(notes) > req.Limit {
		notes = notes[:req.Limit]
	}

	title := req.Title
	if title == "" {
		title = "Note digest"
	}

	data := TemplateData{
		Title:       title,
		GeneratedAt: time.Now(),
		Notes:       make([]TemplateNote, 0, len(notes)),
	}
	for _, n := range notes {
		tags, err := s.store.ListTagsForNote(ctx, n.ID)
		if err != nil {
			return nil, fmt.Errorf("list tags for note %s: %w", n.ID, err)
		}
		data.Notes = append(data.Notes, TemplateNote{
			Title:        n.Title,
			Content:      n.Content,
			Purpose:      n.Purpose,
			Maturity:     n.Maturity,
			NoteType:     n.NoteType,
			Score:        n.Score,
			QualityState: n.QualityState,
			Tags:         tags,
			CreatedAt:    n.CreatedAt,
		})
	}

	html, err := RenderDigestHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF, "":
		return exportPDF(html, title)
	default:
		return nil, ErrUnsupportedFormat
	}
}
