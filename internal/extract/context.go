package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"arbor/api/internal/nvq"
	"arbor/api/internal/search"
	"arbor/api/internal/store"
)

// Context is the read-only snapshot assembled for one job. It lives for a
// single worker invocation and is never persisted.
type Context struct {
	RelatedNotes  []search.Result
	TagVocabulary []string
	Goals         []store.Goal
	MOCNames      []string
	ProjectNames  []string
}

// Rubric returns the evaluator's view of the context.
func (c Context) Rubric() nvq.Context {
	goals := make([]nvq.Goal, 0, len(c.Goals))
	for _, g := range c.Goals {
		goals = append(goals, nvq.Goal{Title: g.Title, Motivation: g.Motivation})
	}
	return nvq.Context{
		Goals:        goals,
		MOCNames:     c.MOCNames,
		ProjectNames: c.ProjectNames,
	}
}

const (
	maxKeywords      = 12
	titleMatchWeight = 3
	bodyMatchWeight  = 1
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {},
	"all": {}, "can": {}, "was": {}, "one": {}, "our": {}, "out": {}, "has": {},
	"had": {}, "have": {}, "this": {}, "that": {}, "with": {}, "they": {},
	"them": {}, "then": {}, "than": {}, "from": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"there": {}, "their": {}, "about": {}, "into": {}, "over": {}, "very": {},
	"just": {}, "been": {}, "being": {}, "because": {}, "while": {}, "were": {},
	"some": {}, "more": {}, "most": {}, "also": {}, "only": {}, "other": {},
	"these": {}, "those": {}, "your": {}, "like": {}, "really": {}, "today": {},
}

// buildContext assembles the extraction context: salient keywords drive
// related-note retrieval, plus the user's tag vocabulary, active goals and
// hub note names. Store failures here abort the whole job; a job scored
// without its rubric context would grade every candidate against nothing.
func (w *Worker) buildContext(ctx context.Context, job *store.QueueItem) (Context, error) {
	var ec Context

	keywords := ExtractKeywords(job.ContentSnapshot, maxKeywords)
	related := w.retriever.RelatedNotes(ctx, search.Query{
		UserID:   job.UserID,
		Keywords: keywords,
		Limit:    w.contextNotes * 2,
	})
	ec.RelatedNotes = rankByKeywordMatch(related, keywords, w.contextNotes)

	tags, err := w.store.ListTagNames(ctx, job.UserID)
	if err != nil {
		return Context{}, fmt.Errorf("load tag vocabulary: %w", err)
	}
	ec.TagVocabulary = tags

	goals, err := w.store.ListActiveGoals(ctx, job.UserID)
	if err != nil {
		return Context{}, fmt.Errorf("load active goals: %w", err)
	}
	ec.Goals = goals

	mocs, err := w.store.ListMOCNames(ctx, job.UserID)
	if err != nil {
		return Context{}, fmt.Errorf("load moc names: %w", err)
	}
	ec.MOCNames = mocs

	projects, err := w.store.ListProjectNames(ctx, job.UserID)
	if err != nil {
		return Context{}, fmt.Errorf("load project names: %w", err)
	}
	ec.ProjectNames = projects

	return ec, nil
}

// ExtractKeywords tokenizes the snapshot, drops stopwords and short
// tokens, and returns the most frequent terms, ties broken alphabetically
// for determinism.
func ExtractKeywords(text string, limit int) []string {
	counts := map[string]int{}
	for _, token := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '\'')
	}) {
		token = strings.Trim(token, "'")
		if len(token) < 3 {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		counts[token]++
	}

	keywords := make([]string, 0, len(counts))
	for kw := range counts {
		keywords = append(keywords, kw)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if limit > 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

// rankByKeywordMatch orders retrieved notes by weighted keyword overlap: a
// title hit counts three times a body hit. The search backend already
// ranks, but the weighting contract belongs to us, not to whichever
// backend happened to answer.
func rankByKeywordMatch(notes []search.Result, keywords []string, limit int) []search.Result {
	type scored struct {
		note   search.Result
		weight int
	}
	scoredNotes := make([]scored, 0, len(notes))
	for _, note := range notes {
		title := strings.ToLower(note.Title)
		body := strings.ToLower(note.Content)
		weight := 0
		for _, kw := range keywords {
			if strings.Contains(title, kw) {
				weight += titleMatchWeight
			}
			if strings.Contains(body, kw) {
				weight += bodyMatchWeight
			}
		}
		if weight > 0 {
			scoredNotes = append(scoredNotes, scored{note: note, weight: weight})
		}
	}
	sort.SliceStable(scoredNotes, func(i, j int) bool {
		return scoredNotes[i].weight > scoredNotes[j].weight
	})
	if limit > 0 && len(scoredNotes) > limit {
		scoredNotes = scoredNotes[:limit]
	}
	out := make([]search.Result, 0, len(scoredNotes))
	for _, s := range scoredNotes {
		out = append(out, s.note)
	}
	return out
}
