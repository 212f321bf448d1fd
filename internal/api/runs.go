package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/todmy/fiscal-crossval/internal/auth"
	"github.com/todmy/fiscal-crossval/internal/crossval"
	"github.com/todmy/fiscal-crossval/internal/storage"
	"github.com/todmy/fiscal-crossval/pkg/models"
)

const maxReportSize = 32 << 20 // 32 MB

// RunRequest is the body of POST /runs
type RunRequest struct {
	RunID     string                  `json:"runId"`
	Documents []models.DocumentResult `json:"documents"`
}

// RunResponse represents a recorded run in API responses
type RunResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Stats     models.RunStats `json:"stats"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

func toRunResponse(run *storage.Run) RunResponse {
	return RunResponse{
		ID:        run.ID,
		Status:    string(run.Status),
		Error:     run.Error,
		Stats:     run.Stats,
		CreatedAt: run.CreatedAt.Format(time.RFC3339),
		UpdatedAt: run.UpdatedAt.Format(time.RFC3339),
	}
}

// handleCreateRun cross-validates the submitted documents and records the run
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxReportSize)

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}
	if err := crossval.ValidateRunID(req.RunID); err != nil {
		respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	// The id is claimed before any artifact is written; its owner never changes.
	holder, err := s.runs.Claim(r.Context(), req.RunID, claims.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reserve run")
		return
	}
	if holder.UserID != claims.UserID {
		respondError(w, http.StatusConflict, "run id already taken")
		return
	}

	run := &storage.Run{ID: req.RunID, UserID: claims.UserID, CreatedAt: holder.CreatedAt}

	result, runErr := s.engine.Run(r.Context(), models.Report{Documents: req.Documents}, req.RunID)
	if runErr != nil {
		run.Status = storage.RunFailed
		run.Error = runErr.Error()
		if err := s.runs.Save(r.Context(), run); err != nil {
			s.logger.Printf("[ERROR] failed to record failed run %s: %v", run.ID, err)
		}

		switch {
		case errors.Is(runErr, crossval.ErrArtifactPersistence):
			respondError(w, http.StatusBadGateway, "failed to persist artifacts")
		case errors.Is(runErr, crossval.ErrInvalidRunID):
			respondError(w, http.StatusBadRequest, "invalid run id")
		default:
			respondError(w, http.StatusInternalServerError, "cross-validation failed")
		}
		return
	}

	run.Status = storage.RunCompleted
	run.Stats = result.Stats
	if err := s.runs.Save(r.Context(), run); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to record run")
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// handleListRuns returns the caller's runs, newest first
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	runs, err := s.runs.GetByUserID(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch runs")
		return
	}

	response := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		response = append(response, toRunResponse(run))
	}

	respondJSON(w, http.StatusOK, response)
}

// handleGetRun returns a single run
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, toRunResponse(run))
}

// handleListArtifacts returns the descriptors of a run's artifacts
func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}

	descriptors, err := s.artifacts.List(r.Context(), run.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch artifacts")
		return
	}
	if descriptors == nil {
		descriptors = []models.ArtifactDescriptor{}
	}

	respondJSON(w, http.StatusOK, descriptors)
}

// handleDownloadArtifact streams one artifact of a run
func (s *Server) handleDownloadArtifact(w http.ResponseWriter, r *http.Request) {
	format, ok := models.ParseArtifactFormat(chi.URLParam(r, "format"))
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown artifact format")
		return
	}

	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}

	artifact, err := s.artifacts.Get(r.Context(), run.ID, format)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch artifact")
		return
	}
	if artifact == nil {
		respondError(w, http.StatusNotFound, "artifact not found")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Descriptor.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Content)))
	w.Header().Set("X-Content-SHA256", artifact.Descriptor.SHA256)
	w.WriteHeader(http.StatusOK)
	w.Write(artifact.Content)
}

// ownedRun loads the run named in the URL and checks the caller owns it.
// It writes the error response itself when it returns false.
func (s *Server) ownedRun(w http.ResponseWriter, r *http.Request) (*storage.Run, bool) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	runID := chi.URLParam(r, "runID")
	if !models.IsValidRunID(runID) {
		respondError(w, http.StatusBadRequest, "invalid run id")
		return nil, false
	}

	run, err := s.runs.GetByID(r.Context(), runID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to fetch run")
		return nil, false
	}
	if run == nil {
		respondError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if run.UserID != claims.UserID {
		respondError(w, http.StatusForbidden, "access denied")
		return nil, false
	}

	return run, true
}
