// Package app wires the queue, workers, and exports behind the HTTP API.
package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"arbor/api/internal/export"
	"arbor/api/internal/extract"
	"arbor/api/internal/ratelimit"
	"arbor/api/internal/store"
	"arbor/api/internal/util"
)

var validSourceTypes = map[string]bool{
	store.SourceDocument:        true,
	store.SourceCoachingSession: true,
	store.SourceManualNote:      true,
}

// Store is the slice of the Postgres store the service needs.
type Store interface {
	Ping(ctx context.Context) error
	Enqueue(ctx context.Context, item store.QueueItem) (bool, error)
	GetQueueItem(ctx context.Context, id string) (store.QueueItem, error)
	QueueCounts(ctx context.Context, userID string) (store.QueueCounts, error)
	RecentQueueItems(ctx context.Context, userID string, limit int) ([]store.QueueItem, error)
	ResetStuck(ctx context.Context, olderThan time.Duration) (int, error)

	CountGoals(ctx context.Context, userID string) (int, error)
	InsertGoal(ctx context.Context, goal store.Goal) error
	InsertMOC(ctx context.Context, moc store.MapOfContent) error
	InsertProject(ctx context.Context, project store.Project) error
}

// Processor runs one claim-and-extract cycle on demand.
type Processor interface {
	ProcessOne(ctx context.Context, targetID string) (*extract.Outcome, error)
}

// Exporter renders note digests.
type Exporter interface {
	Digest(ctx context.Context, req export.Request) (*export.Result, error)
}

type Service struct {
	store       Store
	processor   Processor
	exporter    Exporter
	guard       *ratelimit.Guard
	stuckAfter  time.Duration
	maxAttempts int
}

type ServiceOptions struct {
	Guard       *ratelimit.Guard
	Exporter    Exporter
	StuckAfter  time.Duration
	MaxAttempts int
}

func NewService(st Store, processor Processor, opts ServiceOptions) *Service {
	stuckAfter := opts.StuckAfter
	if stuckAfter <= 0 {
		stuckAfter = 10 * time.Minute
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Service{
		store:       st,
		processor:   processor,
		exporter:    opts.Exporter,
		guard:       opts.Guard,
		stuckAfter:  stuckAfter,
		maxAttempts: maxAttempts,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// EnqueueRequest is one content submission.
type EnqueueRequest struct {
	UserID     string
	SourceType string
	SourceID   string
	Content    string
	Priority   int
}

// EnqueueResult reports the queued item, or the fact that an identical
// submission was already queued.
type EnqueueResult struct {
	Item      store.QueueItem
	Duplicate bool
}

// Enqueue validates a submission, checks the per-user limits, and inserts
// the job. Resubmitting identical content for the same source is a silent
// no-op reported through Duplicate.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.SourceID = strings.TrimSpace(req.SourceID)
	if req.UserID == "" {
		return EnqueueResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
	}
	if !validSourceTypes[req.SourceType] {
		return EnqueueResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "sourceType must be document, coaching_session, or manual_note", nil)
	}
	if req.SourceID == "" {
		return EnqueueResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "sourceId is required", nil)
	}
	if strings.TrimSpace(req.Content) == "" {
		return EnqueueResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is empty", nil)
	}

	if decision := s.guard.Check(ctx, req.UserID); !decision.Allowed {
		return EnqueueResult{}, domainError(http.StatusTooManyRequests, "RATE_LIMITED", decision.Reason, nil)
	}

	hash := sha256.Sum256([]byte(req.Content))
	item := store.QueueItem{
		ID:              util.NewID("job"),
		UserID:          req.UserID,
		SourceType:      req.SourceType,
		SourceID:        req.SourceID,
		ContentSnapshot: req.Content,
		ContentHash:     hex.EncodeToString(hash[:]),
		Status:          store.StatusPending,
		Priority:        req.Priority,
		MaxAttempts:     s.maxAttempts,
	}

	inserted, err := s.store.Enqueue(ctx, item)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("enqueue job: %w", err)
	}
	if !inserted {
		return EnqueueResult{Item: item, Duplicate: true}, nil
	}

	s.guard.RecordEnqueue(ctx, req.UserID)
	return EnqueueResult{Item: item}, nil
}

// ProcessNow runs one extraction cycle synchronously. With a jobID it
// claims that exact pending job; without one it claims the oldest
// highest-priority pending job. Returns nil when nothing was claimable.
func (s *Service) ProcessNow(ctx context.Context, jobID string) (*extract.Outcome, error) {
	outcome, err := s.processor.ProcessOne(ctx, strings.TrimSpace(jobID))
	if err != nil {
		return nil, fmt.Errorf("process job: %w", err)
	}
	return outcome, nil
}

// ResetStuck requeues processing jobs whose worker went silent past the
// liveness window.
func (s *Service) ResetStuck(ctx context.Context) (int, error) {
	reset, err := s.store.ResetStuck(ctx, s.stuckAfter)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	if reset > 0 {
		log.Printf("app: reset %d stuck jobs", reset)
	}
	return reset, nil
}

// QueueStatus is the queue dashboard payload.
type QueueStatus struct {
	Counts store.QueueCounts
	Recent []store.QueueItem
}

func (s *Service) QueueStatus(ctx context.Context, userID string, recentLimit int) (QueueStatus, error) {
	if recentLimit <= 0 || recentLimit > 100 {
		recentLimit = 20
	}
	counts, err := s.store.QueueCounts(ctx, userID)
	if err != nil {
		return QueueStatus{}, fmt.Errorf("queue counts: %w", err)
	}
	recent, err := s.store.RecentQueueItems(ctx, userID, recentLimit)
	if err != nil {
		return QueueStatus{}, fmt.Errorf("recent queue items: %w", err)
	}
	return QueueStatus{Counts: counts, Recent: recent}, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (store.QueueItem, error) {
	return s.store.GetQueueItem(ctx, id)
}

// ExportDigest renders the user's recent notes in the requested format.
func (s *Service) ExportDigest(ctx context.Context, req export.Request) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export service not configured", nil)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "userId is required", nil)
	}
	return s.exporter.Digest(ctx, req)
}

// Bootstrap seeds a user's rubric context the first time they appear.
// Existing users are left alone.
func (s *Service) Bootstrap(ctx context.Context, userID string) error {
	count, err := s.store.CountGoals(ctx, userID)
	if err != nil {
		return fmt.Errorf("count goals: %w", err)
	}
	if count > 0 {
		return nil
	}

	goals := []store.Goal{
		{ID: util.NewID("goal"), UserID: userID, Title: "Build a lasting knowledge base", Motivation: "Capture what I learn so it compounds", Active: true},
	}
	for _, goal := range goals {
		if err := s.store.InsertGoal(ctx, goal); err != nil {
			return fmt.Errorf("seed goal: %w", err)
		}
	}

	mocs := []string{"MOC Learning", "MOC Work"}
	for _, name := range mocs {
		moc := store.MapOfContent{ID: util.NewID("moc"), UserID: userID, Name: name}
		if err := s.store.InsertMOC(ctx, moc); err != nil {
			return fmt.Errorf("seed moc: %w", err)
		}
	}

	project := store.Project{ID: util.NewID("proj"), UserID: userID, Name: "Inbox"}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return fmt.Errorf("seed project: %w", err)
	}
	return nil
}
