package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calmhaven/calmhaven-backend/domains/stats/be/service"
	platformauth "github.com/calmhaven/calmhaven-backend/platform/go/auth"
	"github.com/calmhaven/calmhaven-backend/platform/go/httpapi"
	platformlogging "github.com/calmhaven/calmhaven-backend/platform/go/logging"
	"github.com/calmhaven/calmhaven-backend/platform/go/requesttrace"
)

const (
	problemTypeValidation = "https://calmhaven.app/problems/validation-error"
	problemTypeNotFound   = "https://calmhaven.app/problems/not-found"
	problemTypeForbidden  = "https://calmhaven.app/problems/forbidden"
	problemTypeInternal   = "https://calmhaven.app/problems/internal-error"
)

type operation string

const (
	getStatsOperation   operation = "statsGetSessionStats"
	resetStatsOperation operation = "statsReset"
)

// Handler wires the stats service to the HTTP surface.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("stats service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the stats endpoints on the given router. Stats are always
// computed for a known caller, so anonymous requests are rejected up front.
func (h *Handler) Routes(r chi.Router) {
	r.Use(platformauth.RequireAuthenticated())
	r.Get("/sessions", h.GetSessionStats)
	r.Post("/sessions/reset", h.ResetStats)
}

type sessionStatsResponse struct {
	TotalCoachingSessions      int       `json:"totalCoachingSessions"`
	UpcomingCoachingSessions   int       `json:"upcomingCoachingSessions"`
	CompletedCoachingSessions  int       `json:"completedCoachingSessions"`
	CancelledCoachingSessions  int       `json:"cancelledCoachingSessions"`
	TotalTreatmentSessions     int       `json:"totalTreatmentSessions"`
	ActiveTreatmentSessions    int       `json:"activeTreatmentSessions"`
	CompletedTreatmentSessions int       `json:"completedTreatmentSessions"`
	HoursThisMonth             float64   `json:"hoursThisMonth"`
	AvailableSlots             int       `json:"availableSlots"`
	WindowStart                time.Time `json:"windowStart"`
	GeneratedAt                time.Time `json:"generatedAt"`
}

// GetSessionStats handles GET /sessions. The subject defaults to the
// authenticated user; a userId query parameter may select another subject.
func (h *Handler) GetSessionStats(w http.ResponseWriter, r *http.Request) {
	audit := requesttrace.FromContextOrAnonymous(r.Context())

	subject, problem := h.resolveSubject(r, audit)
	if problem != nil {
		httpapi.WriteProblem(w, problem.Status, *problem)
		return
	}

	lookback := 0
	if raw := r.URL.Query().Get("lookbackDays"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			p := h.buildProblem("Validation failed", "lookbackDays must be an integer", problemTypeValidation, http.StatusBadRequest, nil)
			httpapi.WriteProblem(w, http.StatusBadRequest, p)
			return
		}
		lookback = parsed
	}

	var tenantID *uuid.UUID
	if raw := r.URL.Query().Get("tenantId"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			p := h.buildProblem("Validation failed", "tenantId must be a UUID", problemTypeValidation, http.StatusBadRequest, nil)
			httpapi.WriteProblem(w, http.StatusBadRequest, p)
			return
		}
		tenantID = &parsed
	}

	stats, err := h.svc.GetSessionStats(r.Context(), audit, service.StatsInput{
		UserID:       subject,
		TenantID:     tenantID,
		LookbackDays: lookback,
	})
	if err != nil {
		status, p := h.problemForError(r.Context(), err, getStatsOperation)
		httpapi.WriteProblem(w, status, p)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, sessionStatsResponse(stats))
}

// ResetStats handles POST /sessions/reset for the authenticated user.
func (h *Handler) ResetStats(w http.ResponseWriter, r *http.Request) {
	audit := requesttrace.FromContextOrAnonymous(r.Context())

	subject, problem := h.resolveSubject(r, audit)
	if problem != nil {
		httpapi.WriteProblem(w, problem.Status, *problem)
		return
	}

	if err := h.svc.ResetStats(r.Context(), audit, subject); err != nil {
		status, p := h.problemForError(r.Context(), err, resetStatsOperation)
		httpapi.WriteProblem(w, status, p)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// resolveSubject picks the stats subject. The caller is the default; a
// userId query parameter selects another subject, which only super admins
// may do.
func (h *Handler) resolveSubject(r *http.Request, audit requesttrace.AuditInfo) (uuid.UUID, *httpapi.ProblemDetails) {
	var caller uuid.UUID
	if audit.UserID != nil {
		if parsed, err := uuid.Parse(*audit.UserID); err == nil {
			caller = parsed
		}
	}

	if raw := r.URL.Query().Get("userId"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			p := h.buildProblem("Validation failed", "userId must be a UUID", problemTypeValidation, http.StatusBadRequest, nil)
			return uuid.Nil, &p
		}
		if parsed != caller {
			creds, ok := platformauth.UserFromContext(r.Context())
			if !ok || creds.Role != "super_admin" {
				p := h.buildProblem("Forbidden", "only super admins may act on another user", problemTypeForbidden, http.StatusForbidden, nil)
				return uuid.Nil, &p
			}
		}
		return parsed, nil
	}

	if caller != uuid.Nil {
		return caller, nil
	}

	p := h.buildProblem("Validation failed", "userId is required", problemTypeValidation, http.StatusBadRequest, nil)
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
		logger.Error("stats operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("stats resource not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("stats request rejected", append(fieldsForLog, zap.Error(err))...)
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
			"profile not found",
			problemTypeNotFound,
			nil
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden,
			"Forbidden",
			"tenant scope not permitted for this caller",
			problemTypeForbidden,
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
