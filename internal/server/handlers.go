package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/ipusegment/internal/job"
	"github.com/maauso/ipusegment/internal/storage"
)

const maxListLimit = 500

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.SegmentService
	store              storage.Storage
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// NewHandlers creates a new Handlers instance. Uploaded audio is written to
// the temporary area of store.
func NewHandlers(service *job.SegmentService, store storage.Storage, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		store:              store,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Segment handles POST /segment requests. The audio is segmented while the
// client waits and the finished job is returned.
func (h *Handlers) Segment(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	done, err := h.service.Run(r.Context(), input)
	if err != nil {
		h.handleCreateError(r.Context(), w, input.AudioPath, err)
		return
	}

	status := http.StatusOK
	if done.Status == job.StatusFailed {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, newJobResponse(done, wantFrames(r)))
}

// CreateJob handles POST /jobs requests. The job is queued and processed
// in the background.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	created, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		h.handleCreateError(r.Context(), w, input.AudioPath, err)
		return
	}

	// Use context.WithoutCancel to prevent cancellation when the request ends
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string) {
			if err := h.service.ProcessExistingJob(ctx, jobID); err != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), created.ID)
	}

	h.logger.Info("job created",
		slog.String("job_id", created.ID),
		slog.String("mode", string(created.Mode)),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	found, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeLookupError(w, jobID, err, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, newJobResponse(found, wantFrames(r)))
}

// ListJobs handles GET /jobs requests, filtered by the optional status,
// mode and limit query parameters.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := job.ListFilter{
		Status: job.Status(q.Get("status")),
		Mode:   job.Mode(q.Get("mode")),
	}
	if filter.Mode != "" && !filter.Mode.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown mode", "INVALID_FILTER")
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxListLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500", "INVALID_FILTER")
			return
		}
		filter.Limit = limit
	}

	jobs, err := h.service.ListJobs(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs)), Count: len(jobs)}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, newJobResponse(j, false))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelJob handles POST /jobs/{id}/cancel requests.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	cancelled, err := h.service.CancelJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "job is already finished", "JOB_FINISHED")
			return
		}
		h.writeLookupError(w, jobID, err, "failed to cancel job", "JOB_CANCEL_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, newJobResponse(cancelled, false))
}

// decodeInput parses and validates the request body and stores the
// uploaded audio in the temporary area. It writes the error response and
// returns false when the request cannot be served.
func (h *Handlers) decodeInput(w http.ResponseWriter, r *http.Request) (job.Input, bool) {
	var req SegmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return job.Input{}, false
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return job.Input{}, false
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid base64 audio", "VALIDATION_ERROR")
		return job.Input{}, false
	}
	path, err := h.store.SaveTemp(r.Context(), "upload", bytes.NewReader(audio))
	if err != nil {
		h.logger.Error("failed to store uploaded audio", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to store audio", "UPLOAD_FAILED")
		return job.Input{}, false
	}

	mode := job.Mode(req.Mode)
	if mode == "" {
		mode = job.ModeSearch
	}
	params := req.Params.apply(h.service.DefaultParams())
	return job.Input{
		Mode:         mode,
		AudioPath:    path,
		Params:       &params,
		Units:        req.Units,
		Publish:      req.Publish,
		ExportTracks: req.ExportTracks,
	}, true
}

// handleCreateError maps job creation errors to responses and drops the
// uploaded audio, which no job owns.
func (h *Handlers) handleCreateError(ctx context.Context, w http.ResponseWriter, audioPath string, err error) {
	if cerr := h.store.CleanupTemp(context.WithoutCancel(ctx), []string{audioPath}); cerr != nil {
		h.logger.Warn("failed to clean uploaded audio", slog.String("error", cerr.Error()))
	}
	switch {
	case errors.Is(err, job.ErrInvalidMode), errors.Is(err, job.ErrUnitsRequired), errors.Is(err, job.ErrInputRequired):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled before a worker was free", "BUSY")
	default:
		h.logger.Error("failed to create job", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
	}
}

func (h *Handlers) writeLookupError(w http.ResponseWriter, jobID string, err error, message, code string) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	h.logger.Error(message,
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, message, code)
}

func wantFrames(r *http.Request) bool {
	frames, _ := strconv.ParseBool(r.URL.Query().Get("frames"))
	return frames
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
