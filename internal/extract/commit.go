package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"arbor/api/internal/nvq"
	"arbor/api/internal/search"
	"arbor/api/internal/store"
	"arbor/api/internal/taxonomy"
	"arbor/api/internal/util"
)

// batchNote lets later candidates in the same batch point connections at
// notes committed earlier in it.
type batchNote struct {
	ID    string
	Title string
}

// commit writes one scored candidate: consolidation into an existing note
// when the generator asked for it and the target exists, a fresh note
// otherwise. Tag and connection write failures are logged and skipped so
// the note itself always lands.
func (w *Worker) commit(ctx context.Context, job *store.QueueItem, ec Context, candidate nvq.Candidate, score nvq.Score, batch *[]batchNote) error {
	if candidate.ConsolidateWith != "" && strings.TrimSpace(candidate.MergedContent) != "" {
		existing, err := w.store.GetNoteByTitle(ctx, job.UserID, candidate.ConsolidateWith)
		if err != nil {
			return fmt.Errorf("look up consolidation target %q: %w", candidate.ConsolidateWith, err)
		}
		if existing != nil {
			return w.consolidate(ctx, job, existing, candidate, batch)
		}
		// Target vanished between context build and commit; fall through
		// and create the candidate as a new note.
	}
	return w.create(ctx, job, ec, candidate, score, batch)
}

func (w *Worker) consolidate(ctx context.Context, job *store.QueueItem, existing *store.Note, candidate nvq.Candidate, batch *[]batchNote) error {
	if w.archiver != nil {
		sourceRef := job.SourceType + "/" + job.SourceID
		if err := w.archiver.ArchiveNote(job.UserID, existing.ID, existing.Title, existing.Content, sourceRef); err != nil {
			log.Printf("extract: archive note %s before consolidation: %v", existing.ID, err)
		}
	}

	if err := w.store.ConsolidateNote(ctx, existing.ID, candidate.MergedContent, job.SourceType, job.SourceID); err != nil {
		return fmt.Errorf("consolidate into %q: %w", existing.Title, err)
	}

	w.retriever.IndexNote(search.NoteRecord{
		ID:      existing.ID,
		UserID:  job.UserID,
		Title:   existing.Title,
		Content: candidate.MergedContent,
	})
	*batch = append(*batch, batchNote{ID: existing.ID, Title: existing.Title})
	return nil
}

func (w *Worker) create(ctx context.Context, job *store.QueueItem, ec Context, candidate nvq.Candidate, score nvq.Score, batch *[]batchNote) error {
	breakdown, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("marshal score breakdown: %w", err)
	}

	qualityState := store.QualityPassing
	if !score.Passing {
		qualityState = store.QualityNeedsReview
	}

	now := time.Now()
	note := store.Note{
		ID:           util.NewID("note"),
		UserID:       job.UserID,
		Title:        candidate.Title,
		Content:      candidate.Content,
		Purpose:      candidate.Purpose,
		Maturity:     candidate.Status,
		NoteType:     candidate.Type,
		Stakeholder:  candidate.Stakeholder,
		ProjectName:  candidate.Project,
		Score:        score.Total,
		Breakdown:    string(breakdown),
		QualityState: qualityState,
		EvaluatedAt:  &now,
		SourceType:   job.SourceType,
		SourceID:     job.SourceID,
	}
	if err := w.store.InsertNote(ctx, note); err != nil {
		return fmt.Errorf("insert note %q: %w", note.Title, err)
	}
	*batch = append(*batch, batchNote{ID: note.ID, Title: note.Title})

	w.attachTags(ctx, job.UserID, note.ID, candidate.Tags)
	w.attachConnections(ctx, job.UserID, note.ID, candidate.Connections, ec, *batch)

	w.retriever.IndexNote(search.NoteRecord{
		ID:      note.ID,
		UserID:  job.UserID,
		Title:   note.Title,
		Content: note.Content,
	})
	return nil
}

func (w *Worker) attachTags(ctx context.Context, userID, noteID string, tags []string) {
	seen := make(map[string]bool, len(tags))
	for _, raw := range tags {
		name := taxonomy.NormalizeTag(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		tag, err := w.store.UpsertTag(ctx, userID, util.NewID("tag"), name)
		if err != nil {
			log.Printf("extract: upsert tag %q: %v", name, err)
			continue
		}
		if err := w.store.TagNote(ctx, noteID, tag.ID); err != nil {
			log.Printf("extract: tag note %s with %q: %v", noteID, name, err)
		}
	}
}

// attachConnections resolves each declared target to a note ID, preferring
// notes committed earlier in this batch over the pre-built context set.
// Unresolvable targets are dropped without error.
func (w *Worker) attachConnections(ctx context.Context, userID, noteID string, conns []nvq.CandidateConnection, ec Context, batch []batchNote) {
	for _, conn := range conns {
		targetID := resolveTarget(conn.Target, batch, ec.RelatedNotes)
		if targetID == "" || targetID == noteID {
			continue
		}

		strength := conn.Strength
		if strength <= 0 {
			strength = 0.5
		} else if strength > 1 {
			strength = 1
		}

		err := w.store.InsertConnection(ctx, store.Connection{
			ID:         util.NewID("conn"),
			UserID:     userID,
			FromNoteID: noteID,
			ToNoteID:   targetID,
			Type:       conn.Type,
			Strength:   strength,
		})
		if err != nil {
			log.Printf("extract: connect %s -> %q: %v", noteID, conn.Target, err)
		}
	}
}

func resolveTarget(title string, batch []batchNote, related []search.Result) string {
	for _, n := range batch {
		if strings.EqualFold(n.Title, title) {
			return n.ID
		}
	}
	for _, n := range related {
		if strings.EqualFold(n.Title, title) {
			return n.ID
		}
	}
	return ""
}
