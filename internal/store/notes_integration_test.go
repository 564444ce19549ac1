package store

import (
	"context"
	"testing"
)

func insertTestNote(t *testing.T, st *PostgresStore, id, title string) {
	t.Helper()
	err := st.InsertNote(context.Background(), Note{
		ID:           id,
		UserID:       "user-int",
		Title:        title,
		Content:      "original content of " + title,
		QualityState: QualityPassing,
		SourceType:   SourceDocument,
		SourceID:     "doc-int",
	})
	if err != nil {
		t.Fatalf("insert note %s: %v", id, err)
	}
}

func TestGetNoteByTitleCaseInsensitive(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	insertTestNote(t, st, "note_a", "Verb Conjugation")

	note, err := st.GetNoteByTitle(ctx, "user-int", "verb conjugation")
	if err != nil {
		t.Fatalf("get by title: %v", err)
	}
	if note == nil || note.ID != "note_a" {
		t.Fatalf("expected note_a, got %+v", note)
	}

	// Other users never see it.
	note, err = st.GetNoteByTitle(ctx, "someone-else", "Verb Conjugation")
	if err != nil {
		t.Fatalf("get by title other user: %v", err)
	}
	if note != nil {
		t.Errorf("title lookup must be scoped to the user, got %+v", note)
	}

	note, err = st.GetNoteByTitle(ctx, "user-int", "No Such Title")
	if err != nil {
		t.Fatalf("get missing title: %v", err)
	}
	if note != nil {
		t.Errorf("missing title should resolve to nil, got %+v", note)
	}
}

func TestConsolidatePreservesHistory(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	insertTestNote(t, st, "note_c", "Spaced Repetition")

	err := st.ConsolidateNote(ctx, "note_c", "merged content", SourceCoachingSession, "session-9")
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	note, err := st.GetNote(ctx, "note_c")
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if note.Content != "merged content" {
		t.Errorf("content not overwritten: %q", note.Content)
	}
	if note.SourceType != SourceCoachingSession || note.SourceID != "session-9" {
		t.Errorf("consolidation source not recorded: %+v", note)
	}

	history, err := st.ListNoteHistory(ctx, "note_c")
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(history))
	}
	if history[0].Content != "original content of Spaced Repetition" {
		t.Errorf("history holds wrong content: %q", history[0].Content)
	}
}

func TestConsolidateMissingNoteFails(t *testing.T) {
	st := openTestStore(t)

	err := st.ConsolidateNote(context.Background(), "note_missing", "x", SourceDocument, "doc-1")
	if err == nil {
		t.Fatal("expected error for missing note")
	}
}

func TestUpsertTagConverges(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	first, err := st.UpsertTag(ctx, "user-int", "tag_1", "skill/language")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := st.UpsertTag(ctx, "user-int", "tag_2", "skill/language")
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("same name must reuse the row: %s vs %s", first.ID, second.ID)
	}

	names, err := st.ListTagNames(ctx, "user-int")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != "skill/language" {
		t.Errorf("unexpected tag names %v", names)
	}
}

func TestInsertConnectionIgnoresDuplicateEdge(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	insertTestNote(t, st, "note_from", "From")
	insertTestNote(t, st, "note_to", "To")

	edge := Connection{ID: "conn_1", UserID: "user-int", FromNoteID: "note_from", ToNoteID: "note_to", Type: "supports", Strength: 0.8}
	if err := st.InsertConnection(ctx, edge); err != nil {
		t.Fatalf("insert: %v", err)
	}
	edge.ID = "conn_2"
	if err := st.InsertConnection(ctx, edge); err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}

	conns, err := st.ListConnections(ctx, "note_from")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(conns) != 1 {
		t.Errorf("duplicate edge should be absorbed, got %d rows", len(conns))
	}
}
