package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"arbor/api/internal/store"
)

type fakeDataStore struct {
	notes []store.Note
	tags  []string
	err   error
}

func (f *fakeDataStore) ListNotes(ctx context.Context, userID string) ([]store.Note, error) {
	return f.notes, f.err
}

func (f *fakeDataStore) ListTagsForNote(ctx context.Context, noteID string) ([]string, error) {
	return f.tags, nil
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Weekly Digest v1.2", "Weekly-Digest-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "digest"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderDigestHTML(t *testing.T) {
	data := TemplateData{
		Title:       "Weekly digest",
		GeneratedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Notes: []TemplateNote{
			{
				Title:        "Spaced repetition beats cramming",
				Content:      "Reviewing at increasing intervals sticks.",
				Purpose:      "Keeping this to improve my study planning",
				Maturity:     "seed",
				NoteType:     "reflection",
				Score:        8,
				QualityState: "passing",
				Tags:         []string{"learning/methods"},
			},
			{
				Title:        "Half-baked idea",
				Content:      "Something something.",
				Score:        4,
				QualityState: "needs_review",
			},
		},
	}

	html, err := RenderDigestHTML(data)
	if err != nil {
		t.Fatalf("RenderDigestHTML() error = %v", err)
	}

	if !strings.Contains(html, "Weekly digest") {
		t.Error("HTML missing digest title")
	}
	if !strings.Contains(html, "Spaced repetition beats cramming") {
		t.Error("HTML missing note title")
	}
	if !strings.Contains(html, "score 8/10") {
		t.Error("HTML missing score")
	}
	if !strings.Contains(html, "needs review") {
		t.Error("HTML missing needs-review marker")
	}
	if !strings.Contains(html, "#learning/methods") {
		t.Error("HTML missing tags")
	}
}

func TestDigestEmpty(t *testing.T) {
	svc := NewService(&fakeDataStore{})

	_, err := svc.Digest(context.Background(), Request{UserID: "user-1"})
	if !errors.Is(err, ErrNoNotes) {
		t.Errorf("expected ErrNoNotes, got %v", err)
	}
}

func TestDigestHTMLFormat(t *testing.T) {
	svc := NewService(&fakeDataStore{notes: []store.Note{
		{Title: "Alpha", Content: "Body A", Score: 9, QualityState: "passing"},
		{Title: "Beta", Content: "Body B", Score: 5, QualityState: "needs_review"},
		{Title: "Gamma", Content: "Body C", Score: 7, QualityState: "passing"},
	}})

	result, err := svc.Digest(context.Background(), Request{UserID: "user-1", Format: FormatHTML, Limit: 2, Title: "My Notes"})
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	if result.MimeType != "text/html; charset=utf-8" {
		t.Errorf("unexpected mime type %q", result.MimeType)
	}
	if result.Filename != "My-Notes.html" {
		t.Errorf("unexpected filename %q", result.Filename)
	}
	html := string(result.Data)
	if !strings.Contains(html, "Alpha") || !strings.Contains(html, "Beta") {
		t.Error("digest missing notes")
	}
	if strings.Contains(html, "Gamma") {
		t.Error("limit must truncate the note list")
	}
}

func TestDigestUnsupportedFormat(t *testing.T) {
	svc := NewService(&fakeDataStore{notes: []store.Note{{Title: "Alpha", Content: "Body"}}})

	_, err := svc.Digest(context.Background(), Request{UserID: "user-1", Format: "docx"})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDigestStoreError(t *testing.T) {
	svc := NewService(&fakeDataStore{err: errors.New("db down")})

	_, err := svc.Digest(context.Background(), Request{UserID: "user-1"})
	if err == nil || !strings.Contains(err.Error(), "list notes") {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}
