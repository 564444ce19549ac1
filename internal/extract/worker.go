// Package extract orchestrates one extraction job: build context, invoke
// the generator, score candidates against the NVQ rubric, refine failures
// within a bounded budget, and commit accepted notes and consolidations.
package extract

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"arbor/api/internal/nvq"
	"arbor/api/internal/search"
	"arbor/api/internal/store"
)

// Store is the slice of the Postgres store the worker needs.
type Store interface {
	Claim(ctx context.Context, targetID string) (*store.QueueItem, error)
	CompleteSuccess(ctx context.Context, id string, notesCreated int, meanScore, passRate float64) error
	CompleteSkipped(ctx context.Context, id string) error
	CompleteFailure(ctx context.Context, id, errorMessage string) error

	ListTagNames(ctx context.Context, userID string) ([]string, error)
	ListActiveGoals(ctx context.Context, userID string) ([]store.Goal, error)
	ListMOCNames(ctx context.Context, userID string) ([]string, error)
	ListProjectNames(ctx context.Context, userID string) ([]string, error)

	GetNoteByTitle(ctx context.Context, userID, title string) (*store.Note, error)
	InsertNote(ctx context.Context, note store.Note) error
	ConsolidateNote(ctx context.Context, noteID, mergedContent, sourceType, sourceID string) error
	UpsertTag(ctx context.Context, userID, id, name string) (store.Tag, error)
	TagNote(ctx context.Context, noteID, tagID string) error
	InsertConnection(ctx context.Context, conn store.Connection) error
}

// Retriever finds related notes and keeps the search index current.
type Retriever interface {
	RelatedNotes(ctx context.Context, q search.Query) []search.Result
	IndexNote(record search.NoteRecord)
}

// Generator is the opaque external text generator.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Archiver snapshots a note's prior content before consolidation
// overwrites it. May be nil when archiving is not configured.
type Archiver interface {
	ArchiveNote(userID, noteID, title, content, sourceRef string) error
}

const defaultMaxRefinements = 2

type Options struct {
	MaxRefinements int
	ContextNotes   int
	Archiver       Archiver
	// OnDone is called with the job owner when a job reaches completed or
	// skipped, so enqueue accounting can release its slot. Optional.
	OnDone func(userID string)
}

type Worker struct {
	store          Store
	retriever      Retriever
	generator      Generator
	evaluator      *nvq.Evaluator
	archiver       Archiver
	onDone         func(userID string)
	maxRefinements int
	contextNotes   int
}

func NewWorker(st Store, retriever Retriever, generator Generator, evaluator *nvq.Evaluator, opts Options) *Worker {
	maxRefinements := opts.MaxRefinements
	if maxRefinements <= 0 {
		maxRefinements = defaultMaxRefinements
	}
	contextNotes := opts.ContextNotes
	if contextNotes <= 0 {
		contextNotes = 10
	}
	return &Worker{
		store:          st,
		retriever:      retriever,
		generator:      generator,
		evaluator:      evaluator,
		archiver:       opts.Archiver,
		onDone:         opts.OnDone,
		maxRefinements: maxRefinements,
		contextNotes:   contextNotes,
	}
}

// Outcome reports what one claim-and-run cycle did.
type Outcome struct {
	JobID        string
	Status       string
	NotesCreated int
	Error        string
	Stats        nvq.BatchStats
}

// ProcessOne claims one job (a specific one when targetID is set) and runs
// it to a terminal Complete transition. Returns (nil, nil) when nothing is
// claimable.
func (w *Worker) ProcessOne(ctx context.Context, targetID string) (*Outcome, error) {
	job, err := w.store.Claim(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return nil, nil
	}
	return w.runJob(ctx, job), nil
}

// runJob drives the ContextBuilt -> Generated -> Scored -> {Refining ->
// Scored}* -> Committed state machine. Only context building and the
// initial generation can fail the whole job; everything after is absorbed
// per candidate.
func (w *Worker) runJob(ctx context.Context, job *store.QueueItem) *Outcome {
	outcome := &Outcome{JobID: job.ID}

	ec, err := w.buildContext(ctx, job)
	if err != nil {
		return w.failJob(ctx, job, outcome, err)
	}

	raw, err := w.generator.Generate(ctx, extractionSystemPrompt, buildUserPrompt(ec, job.ContentSnapshot))
	if err != nil {
		return w.failJob(ctx, job, outcome, fmt.Errorf("generate: %w", err))
	}

	candidates := ParseCandidates(raw)
	if len(candidates) == 0 {
		if err := w.store.CompleteSkipped(ctx, job.ID); err != nil {
			log.Printf("extract: skip job %s: %v", job.ID, err)
		}
		outcome.Status = store.StatusSkipped
		w.notifyDone(job.UserID)
		return outcome
	}

	rubric := ec.Rubric()
	var batch []batchNote
	var scores []nvq.Score
	committed := 0

	for i := range candidates {
		candidate, score := w.refine(ctx, ec, rubric, candidates[i])
		scores = append(scores, score)

		if err := w.commit(ctx, job, ec, candidate, score, &batch); err != nil {
			// A per-candidate write failure never aborts the batch.
			log.Printf("extract: job %s candidate %q: %v", job.ID, candidate.Title, err)
			continue
		}
		committed++
	}

	outcome.Stats = nvq.Aggregate(scores, 5)
	outcome.NotesCreated = committed
	outcome.Status = store.StatusCompleted
	if err := w.store.CompleteSuccess(ctx, job.ID, committed, outcome.Stats.Mean, outcome.Stats.PassRate); err != nil {
		log.Printf("extract: complete job %s: %v", job.ID, err)
	}
	w.notifyDone(job.UserID)
	return outcome
}

func (w *Worker) notifyDone(userID string) {
	if w.onDone != nil {
		w.onDone(userID)
	}
}

// refine re-generates a failing candidate at most maxRefinements times,
// each prompt listing the components that scored zero. The loop stops
// early on a pass; a candidate still failing after the budget is kept and
// later committed as needs_review rather than dropped.
func (w *Worker) refine(ctx context.Context, ec Context, rubric nvq.Context, candidate nvq.Candidate) (nvq.Candidate, nvq.Score) {
	score := w.evaluator.Evaluate(candidate, rubric)
	for attempt := 1; attempt <= w.maxRefinements && !score.Passing; attempt++ {
		raw, err := w.generator.Generate(ctx, extractionSystemPrompt, buildRefinementPrompt(ec, candidate, score))
		if err != nil {
			log.Printf("extract: refinement %d of %q: %v", attempt, candidate.Title, err)
			break
		}
		refined := ParseCandidates(raw)
		if len(refined) == 0 {
			// Malformed refinement output burns the attempt, nothing more.
			log.Printf("extract: refinement %d of %q returned no parsable note", attempt, candidate.Title)
			continue
		}
		candidate = mergeRefined(candidate, refined[0])
		score = w.evaluator.Evaluate(candidate, rubric)
	}
	return candidate, score
}

func (w *Worker) failJob(ctx context.Context, job *store.QueueItem, outcome *Outcome, cause error) *Outcome {
	log.Printf("extract: job %s attempt %d/%d failed: %v", job.ID, job.Attempts, job.MaxAttempts, cause)
	if err := w.store.CompleteFailure(ctx, job.ID, cause.Error()); err != nil {
		log.Printf("extract: record failure for job %s: %v", job.ID, err)
	}
	outcome.Status = store.StatusFailed
	outcome.Error = cause.Error()
	return outcome
}

// Run polls for work until the context is canceled. Between empty polls it
// sleeps the poll interval with jitter so concurrent workers spread out.
func (w *Worker) Run(ctx context.Context, pollInterval time.Duration) {
	for {
		outcome, err := w.ProcessOne(ctx, "")
		if err != nil {
			log.Printf("extract: process: %v", err)
		}
		if outcome != nil {
			// More work may be waiting; claim again immediately.
			continue
		}

		sleep := pollInterval + time.Duration(rand.Int63n(int64(pollInterval)/4+1))
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}
