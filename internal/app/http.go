package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arbor/api/internal/export"
	"arbor/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/queue" {
		s.handleEnqueue(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/queue/process" {
		s.handleProcess(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/queue/reset-stuck" {
		s.handleResetStuck(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/queue/status" {
		s.handleQueueStatus(w, r)
		return
	}

	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/queue/") {
		parts := splitPath(r.URL.Path)
		if len(parts) == 3 {
			s.handleGetJob(w, r, parts[2])
			return
		}
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/export/digest" {
		s.handleExportDigest(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID     string `json:"userId"`
		SourceType string `json:"sourceType"`
		SourceID   string `json:"sourceId"`
		Content    string `json:"content"`
		Priority   int    `json:"priority"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := s.service.Bootstrap(r.Context(), strings.TrimSpace(body.UserID)); err != nil {
		log.Printf("app: bootstrap user %s: %v", body.UserID, err)
	}

	result, err := s.service.Enqueue(r.Context(), EnqueueRequest{
		UserID:     body.UserID,
		SourceType: body.SourceType,
		SourceID:   body.SourceID,
		Content:    body.Content,
		Priority:   body.Priority,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	if result.Duplicate {
		writeJSON(w, http.StatusOK, map[string]any{"queued": false, "duplicate": true})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"queued": true,
		"job":    jobPayload(result.Item),
	})
}

func (s *HTTPServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	var body struct {
		JobID string `json:"jobId"`
	}
	_ = decodeBody(r, &body)

	outcome, err := s.service.ProcessNow(r.Context(), body.JobID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	if outcome == nil {
		writeJSON(w, http.StatusOK, map[string]any{"processed": false})
		return
	}

	payload := map[string]any{
		"processed":    true,
		"jobId":        outcome.JobID,
		"status":       outcome.Status,
		"notesCreated": outcome.NotesCreated,
	}
	if outcome.Status == store.StatusCompleted {
		payload["stats"] = outcome.Stats
	}
	if outcome.Error != "" {
		payload["error"] = outcome.Error
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleResetStuck(w http.ResponseWriter, r *http.Request) {
	reset, err := s.service.ResetStuck(r.Context())
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": reset})
}

func (s *HTTPServer) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	status, err := s.service.QueueStatus(r.Context(), userID, limit)
	if err != nil {
		httpStatus, code, message, details := mapError(err)
		writeError(w, httpStatus, code, message, details)
		return
	}

	recent := make([]map[string]any, 0, len(status.Recent))
	for _, item := range status.Recent {
		recent = append(recent, jobPayload(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"counts": map[string]int{
			"pending":    status.Counts.Pending,
			"processing": status.Counts.Processing,
			"completed":  status.Counts.Completed,
			"failed":     status.Counts.Failed,
			"skipped":    status.Counts.Skipped,
		},
		"recent": recent,
	})
}

func (s *HTTPServer) handleGetJob(w http.ResponseWriter, r *http.Request, id string) {
	item, err := s.service.GetJob(r.Context(), id)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": jobPayload(item)})
}

func (s *HTTPServer) handleExportDigest(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := s.service.ExportDigest(r.Context(), export.Request{
		UserID: userID,
		Limit:  limit,
		Title:  strings.TrimSpace(r.URL.Query().Get("title")),
		Format: export.Format(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))),
	})
	if err != nil {
		if errors.Is(err, export.ErrNoNotes) {
			writeError(w, http.StatusNotFound, "NO_NOTES", "No notes to export", nil)
			return
		}
		if errors.Is(err, export.ErrUnsupportedFormat) {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unsupported export format", nil)
			return
		}
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			writeError(w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF renderer not available", nil)
			return
		}
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func jobPayload(item store.QueueItem) map[string]any {
	payload := map[string]any{
		"id":         item.ID,
		"userId":     item.UserID,
		"sourceType": item.SourceType,
		"sourceId":   item.SourceID,
		"status":     item.Status,
		"priority":   item.Priority,
		"attempts":   item.Attempts,
	}
	if item.ErrorMessage != "" {
		payload["error"] = item.ErrorMessage
	}
	if item.Status == store.StatusCompleted {
		payload["notesCreated"] = item.NotesCreated
		if item.MeanScore != nil {
			payload["meanScore"] = *item.MeanScore
		}
		if item.PassRate != nil {
			payload["passRate"] = *item.PassRate
		}
	}
	if !item.CreatedAt.IsZero() {
		payload["createdAt"] = item.CreatedAt
	}
	if item.CompletedAt != nil {
		payload["completedAt"] = *item.CompletedAt
	}
	return payload
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
