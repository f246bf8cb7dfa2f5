package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calmhaven/calmhaven-backend/domains/sessions/be/service"
	"github.com/calmhaven/calmhaven-backend/platform/go/httpapi"
	platformlogging "github.com/calmhaven/calmhaven-backend/platform/go/logging"
	"github.com/calmhaven/calmhaven-backend/platform/go/persistence"
	"github.com/calmhaven/calmhaven-backend/platform/go/requesttrace"
)

const (
	problemTypeValidation = "https://calmhaven.app/problems/validation-error"
	problemTypeNotFound   = "https://calmhaven.app/problems/not-found"
	problemTypeConflict   = "https://calmhaven.app/problems/conflict"
	problemTypeInternal   = "https://calmhaven.app/problems/internal-error"
)

type operation string

const (
	scheduleOperation          operation = "sessionsSchedule"
	getCoachingOperation       operation = "sessionsGetCoaching"
	completeOperation          operation = "sessionsComplete"
	cancelOperation            operation = "sessionsCancel"
	listOperation              operation = "sessionsList"
	startTreatmentOperation    operation = "sessionsStartTreatment"
	getTreatmentOperation      operation = "sessionsGetTreatment"
	pauseTreatmentOperation    operation = "sessionsPauseTreatment"
	resumeTreatmentOperation   operation = "sessionsResumeTreatment"
	completeTreatmentOperation operation = "sessionsCompleteTreatment"
	recordResponseOperation    operation = "sessionsRecordResponse"
)

// Handler wires the sessions service to the HTTP surface.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("sessions service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the session endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/coaching", func(r chi.Router) {
		r.Post("/", h.Schedule)
		r.Get("/", h.List)
		r.Get("/{sessionID}", h.GetCoaching)
		r.Post("/{sessionID}/complete", h.Complete)
		r.Post("/{sessionID}/cancel", h.Cancel)
	})
	r.Route("/treatment", func(r chi.Router) {
		r.Post("/", h.StartTreatment)
		r.Get("/{sessionID}", h.GetTreatment)
		r.Post("/{sessionID}/pause", h.PauseTreatment)
		r.Post("/{sessionID}/resume", h.ResumeTreatment)
		r.Post("/{sessionID}/complete", h.CompleteTreatment)
		r.Post("/{sessionID}/responses", h.RecordResponse)
	})
}

type scheduleRequest struct {
	TenantID        *uuid.UUID `json:"tenantId,omitempty"`
	CoachID         uuid.UUID  `json:"coachId"`
	ClientID        uuid.UUID  `json:"clientId"`
	ScheduledAt     time.Time  `json:"scheduledAt"`
	DurationMinutes int        `json:"durationMinutes"`
	MeetingType     string     `json:"meetingType,omitempty"`
	MeetingLink     *string    `json:"meetingLink,omitempty"`
}

type startTreatmentRequest struct {
	UserID   uuid.UUID  `json:"userId"`
	TenantID *uuid.UUID `json:"tenantId,omitempty"`
}

type recordResponseRequest struct {
	UsedAssistedPath bool    `json:"usedAssistedPath"`
	ResponseTimeMs   float64 `json:"responseTimeMs"`
}

// Schedule handles POST /coaching.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	var request scheduleRequest
	if err := httpapi.DecodeJSON(r, &request); err != nil {
		problem := h.buildProblem("Invalid request body", "request body must be valid JSON", problemTypeValidation, http.StatusBadRequest, nil)
		httpapi.WriteProblem(w, http.StatusBadRequest, problem)
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())

	session, err := h.svc.Schedule(r.Context(), audit, service.ScheduleInput{
		TenantID:        request.TenantID,
		CoachID:         request.CoachID,
		ClientID:        request.ClientID,
		ScheduledAt:     request.ScheduledAt,
		DurationMinutes: request.DurationMinutes,
		MeetingType:     request.MeetingType,
		MeetingLink:     request.MeetingLink,
	})
	if err != nil {
		status, problem := h.problemForError(r.Context(), err, scheduleOperation)
		httpapi.WriteProblem(w, status, problem)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/sessions/coaching/%s", session.ID.String()))
	httpapi.WriteJSON(w, http.StatusCreated, session)
}

// List handles GET /coaching for the authenticated user.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	audit := requesttrace.FromContextOrAnonymous(r.Context())

	userID, problem := h.actorID(audit)
	if problem != nil {
		httpapi.WriteProblem(w, problem.Status, *problem)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			p := h.buildProblem("Validation failed", "limit must be an integer", problemTypeValidation, http.StatusBadRequest, nil)
			httpapi.WriteProblem(w, http.StatusBadRequest, p)
			return
		}
		limit = parsed
	}

	sessions, err := h.svc.List(r.Context(), service.ListInput{UserID: userID, Limit: limit})
	if err != nil {
		status, p := h.problemForError(r.Context(), err, listOperation)
		httpapi.WriteProblem(w, status, p)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": sessions})
}

// GetCoaching handles GET /coaching/{sessionID}.
func (h *Handler) GetCoaching(w http.ResponseWriter, r *http.Request) {
	id, problem := h.pathSessionID(r)
	if problem != nil {
		httpapi.WriteProblem(w, problem.Status, *problem)
		return
	}

	session, err := h.svc.GetCoaching(r.Context(), id)
	if err != nil {
		status, p := h.problemForError(r.Context(), err, getCoachingOperation)
		httpapi.WriteProblem(w, status, p)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, session)
}

// Complete handles POST /coaching/{sessionID}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, completeOperation, h.svc.Complete)
}

// Cancel handles POST /coaching/{sessionID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, cancelOperation, h.svc.Cancel)
}

func (h *Handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op operation,
	fn func(context.Context, requesttrace.AuditInfo, uuid.UUID) (persistence.CoachingSession, error),
) {
	id, problem := h.pathSessionID(r)
	if problem != nil {
		httpapi.WriteProblem(w, problem.Status, *problem)
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())

	session, err := fn(r.Context(), audit, id)
	if err != nil {
		status, p := h.problemForError(r.Context(), err, op)
		httpapi.WriteProblem(w, status, p)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, session)
}

// StartTreatment handles POST /treatment.
func (h *Handler) StartTreatment(w http.ResponseWriter, r *http.Request) {
	var request startTreatmentRequest
	if err := httpapi.DecodeJSON(r, &request); err != nil {
		problem := h.buildProblem("Invalid request body", "request body must be valid JSON", problemTypeValidation, http.StatusBadRequest, nil)
		httpapi.WriteProblem(w, http.StatusBadRequest, problem)
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	if request.UserID == uuid.Nil {
		if actor, problem := h.actorID(audit); problem == nil {
			request.UserID = actor
		}
	}

	session, err := h.svc.StartTreatment(r.Context(), audit, request.UserID, request.TenantID)
	if err != nil {
		status, p := h.problemForError(r.Context(), err, startTreatmentOperation)
		httpapi.WriteProblem(w, status, p)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/sessions/treatment/%s", session.ID.String()))
	httpapi.WriteJSON(w, http.StatusCreated, session)
}

// GetTreatment handles GET /treatment/{sessionID}.
func (h *Handler) GetTreatment(w http.ResponseWriter, r *http.Request) {
	id, problem := h.pathSessionID(r)
	if problem != nil {
		httpapi.WriteProblem(w, problem.Status, *problem)
		return
	}

	session, err := h.svc.GetTreatment(r.Context(), id)
	if err != nil {
		status, p := h.problemForError(r.Context(), err, getTreatmentOperation)
		httpapi.WriteProblem(w, status, p)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, session)
}

// PauseTreatment handles POST /treatment/{sessionID}/pause.
func (h *Handler) PauseTreatment(w http.ResponseWriter, r *http.Request) {
	h.treatmentTransition(w, r, pauseTreatmentOperation, h.svc.PauseTreatment)
}

// ResumeTreatment handles POST /treatment/{sessionID}/resume.
func (h *Handler) ResumeTreatment(w http.ResponseWriter, r *http.Request) {
	h.treatmentTransition(w, r, resumeTreatmentOperation, h.svc.ResumeTreatment)
}

// CompleteTreatment handles POST /treatment/{sessionID}/complete.
func (h *Handler) CompleteTreatment(w http.ResponseWriter, r *http.Request) {
	h.treatmentTransition(w, r, completeTreatmentOperation, h.svc.CompleteTreatment)
}

func (h *Handler) treatmentTransition(
	w http.ResponseWriter,
	r *http.Request,
	op operation,
	fn func(context.Context, requesttrace.AuditInfo, uuid.UUID) (persistence.TreatmentSession, error),
) {
	id, problem := h.pathSessionID(r)
	if problem != nil {
		httpapi.WriteProblem(w, problem.Status, *problem)
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())

	session, err := fn(r.Context(), audit, id)
	if err != nil {
		status, p := h.problemForError(r.Context(), err, op)
		httpapi.WriteProblem(w, status, p)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, session)
}

// RecordResponse handles POST /treatment/{sessionID}/responses.
func (h *Handler) RecordResponse(w http.ResponseWriter, r *http.Request) {
	id, problem := h.pathSessionID(r)
	if problem != nil {
		httpapi.WriteProblem(w, problem.Status, *problem)
		return
	}

	var request recordResponseRequest
	if err := httpapi.DecodeJSON(r, &request); err != nil {
		p := h.buildProblem("Invalid request body", "request body must be valid JSON", problemTypeValidation, http.StatusBadRequest, nil)
		httpapi.WriteProblem(w, http.StatusBadRequest, p)
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())

	session, err := h.svc.RecordResponse(r.Context(), audit, service.RecordResponseInput{
		SessionID:        id,
		UsedAssistedPath: request.UsedAssistedPath,
		ResponseTimeMs:   request.ResponseTimeMs,
	})
	if err != nil {
		status, p := h.problemForError(r.Context(), err, recordResponseOperation)
		httpapi.WriteProblem(w, status, p)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) pathSessionID(r *http.Request) (uuid.UUID, *httpapi.ProblemDetails) {
	raw := chi.URLParam(r, "sessionID")
	id, err := uuid.Parse(raw)
	if err != nil {
		p := h.buildProblem("Validation failed", "sessionID must be a UUID", problemTypeValidation, http.StatusBadRequest, nil)
		return uuid.Nil, &p
	}
	return id, nil
}

func (h *Handler) actorID(audit requesttrace.AuditInfo) (uuid.UUID, *httpapi.ProblemDetails) {
	if audit.UserID != nil {
		if parsed, err := uuid.Parse(*audit.UserID); err == nil {
			return parsed, nil
		}
	}
	p := h.buildProblem("Validation failed", "authenticated user is required", problemTypeValidation, http.StatusBadRequest, nil)
	return uuid.Nil, &p
}

func (h *Handler) problemForError(ctx context.Context, err error, op operation) (int, httpapi.ProblemDetails) {
	status, title, detail, problemType, fields := h.classifyError(err)

	logger := h.loggerFrom(ctx)
	fieldsForLog := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("sessions operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("sessions resource not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("sessions request rejected", append(fieldsForLog, zap.Error(err))...)
	}

	return status, h.buildProblem(title, detail, problemType, status, fields)
}

func (h *Handler) classifyError(err error) (status int, title, detail, problemType string, fieldErrors service.FieldErrors) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest,
			"Validation failed",
			"one or more fields are invalid",
			problemTypeValidation,
			validationErr.Fields
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound,
			"Resource not found",
			"session not found",
			problemTypeNotFound,
			nil
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict,
			"Conflict",
			"session is not in a state that allows this transition",
			problemTypeConflict,
			nil
	default:
		return http.StatusInternalServerError,
			"Internal server error",
			"an unexpected error occurred",
			problemTypeInternal,
			nil
	}
}

func (h *Handler) buildProblem(title, detail, problemType string, status int, fieldErrors service.FieldErrors) httpapi.ProblemDetails {
	problem := httpapi.ProblemDetails{
		Title:  title,
		Status: status,
	}

	if detail != "" {
		problem.Detail = &detail
	}
	if problemType != "" {
		problem.Type = &problemType
	}

	if len(fieldErrors) > 0 {
		copied := make(map[string][]string, len(fieldErrors))
		for field, messages := range fieldErrors {
			copied[field] = append([]string(nil), messages...)
		}
		problem.Errors = &copied
	}

	return problem
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
