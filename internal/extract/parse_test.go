package extract

import (
	"testing"

	"arbor/api/internal/nvq"
)

func TestParseCandidatesCleanJSON(t *testing.T) {
	raw := `{"notes":[{"title":"A","content":"Body A","tags":["skill/x"]},{"title":"B","content":"Body B"}]}`

	candidates := ParseCandidates(raw)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].Title != "A" || candidates[0].Tags[0] != "skill/x" {
		t.Errorf("unexpected first candidate: %+v", candidates[0])
	}
}

func TestParseCandidatesFencedJSON(t *testing.T) {
	raw := "Here are the notes you asked for:\n```json\n" +
		`{"notes":[{"title":"Fenced","content":"Inside a markdown fence."}]}` +
		"\n```\nLet me know if you need more."

	candidates := ParseCandidates(raw)
	if len(candidates) != 1 || candidates[0].Title != "Fenced" {
		t.Fatalf("expected the fenced candidate, got %+v", candidates)
	}
}

func TestParseCandidatesBracesInStrings(t *testing.T) {
	raw := `{"notes":[{"title":"Braces","content":"JSON uses { and } with \"quotes\" inside."}]}`

	candidates := ParseCandidates(raw)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
}

func TestParseCandidatesMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"prose only", "I could not find any notes in this content."},
		{"truncated", `{"notes":[{"title":"A","content":`},
		{"wrong shape", `{"результат": true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseCandidates(tc.raw); len(got) != 0 {
				t.Errorf("expected zero candidates, got %+v", got)
			}
		})
	}
}

func TestParseCandidatesSkipsIncomplete(t *testing.T) {
	raw := `{"notes":[{"title":"","content":"no title"},{"title":"no content","content":"  "},{"title":"OK","content":"fine"}]}`

	candidates := ParseCandidates(raw)
	if len(candidates) != 1 || candidates[0].Title != "OK" {
		t.Fatalf("expected only the complete candidate, got %+v", candidates)
	}
}

func TestMergeRefined(t *testing.T) {
	base := nvq.Candidate{
		Title:   "Original",
		Content: "Original content",
		Status:  "seed",
		Tags:    []string{"skill/a"},
	}
	refined := nvq.Candidate{
		Purpose: "I am keeping this because it helps me learn",
		Tags:    []string{"skill/a", "insight/b"},
	}

	merged := mergeRefined(base, refined)
	if merged.Title != "Original" || merged.Content != "Original content" {
		t.Errorf("empty refined fields must not clobber base: %+v", merged)
	}
	if merged.Purpose != refined.Purpose {
		t.Errorf("purpose not merged: %q", merged.Purpose)
	}
	if len(merged.Tags) != 2 {
		t.Errorf("tags not replaced: %v", merged.Tags)
	}
	if merged.Status != "seed" {
		t.Errorf("status clobbered: %q", merged.Status)
	}
}
