package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calmhaven/calmhaven-backend/domains/provisioning/be/service"
	platformauth "github.com/calmhaven/calmhaven-backend/platform/go/auth"
	"github.com/calmhaven/calmhaven-backend/platform/go/httpapi"
	platformlogging "github.com/calmhaven/calmhaven-backend/platform/go/logging"
	"github.com/calmhaven/calmhaven-backend/platform/go/requesttrace"
)

const (
	problemTypeValidation = "https://calmhaven.app/problems/validation-error"
	problemTypeNotFound   = "https://calmhaven.app/problems/not-found"
	problemTypeConflict   = "https://calmhaven.app/problems/conflict"
	problemTypeForbidden  = "https://calmhaven.app/problems/forbidden"
	problemTypeInternal   = "https://calmhaven.app/problems/internal-error"
)

type operation string

const (
	provisionOperation        operation = "provisioningProvision"
	provisionMissingOperation operation = "provisioningProvisionMissing"
	updateSettingsOperation   operation = "provisioningUpdateSettings"
	auditTrailOperation       operation = "provisioningGetAuditTrail"
)

// Handler wires the provisioning service to the HTTP surface.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("provisioning service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the provisioning endpoints on the given router. Bulk
// remediation is restricted to platform operators.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/profiles", h.Provision)
	r.With(platformauth.RequireRole("super_admin")).Post("/profiles/missing", h.ProvisionMissing)
	r.Put("/profiles/{userID}/settings", h.UpdateSettings)
	r.With(platformauth.RequireRole("super_admin")).Get("/profiles/{userID}/audit", h.GetAuditTrail)
}

type provisionRequest struct {
	UserID   uuid.UUID      `json:"userId"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type profileResponse struct {
	UserID    uuid.UUID       `json:"userId"`
	TenantID  *uuid.UUID      `json:"tenantId,omitempty"`
	Email     string          `json:"email"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Role      string          `json:"role"`
	IsActive  bool            `json:"isActive"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type updateSettingsRequest struct {
	Settings json.RawMessage `json:"settings"`
}

type provisionMissingResponse struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Provision handles POST /profiles.
func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	var request provisionRequest
	if err := httpapi.DecodeJSON(r, &request); err != nil {
		problem := h.buildProblem("Invalid request body", "request body must be valid JSON", problemTypeValidation, http.StatusBadRequest, nil)
		httpapi.WriteProblem(w, http.StatusBadRequest, problem)
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())

	profile, err := h.svc.Provision(r.Context(), audit, service.ProvisionInput{
		UserID:   request.UserID,
		Email:    request.Email,
		Metadata: request.Metadata,
	})
	if err != nil {
		status, problem := h.problemForError(r.Context(), err, provisionOperation)
		httpapi.WriteProblem(w, status, problem)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/provisioning/profiles/%s", profile.UserID.String()))
	httpapi.WriteJSON(w, http.StatusCreated, toProfileResponse(profile))
}

// ProvisionMissing handles POST /profiles/missing.
func (h *Handler) ProvisionMissing(w http.ResponseWriter, r *http.Request) {
	audit := requesttrace.FromContextOrAnonymous(r.Context())

	result, err := h.svc.ProvisionMissing(r.Context(), audit)
	if err != nil {
		status, problem := h.problemForError(r.Context(), err, provisionMissingOperation)
		httpapi.WriteProblem(w, status, problem)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, provisionMissingResponse{
		Created: result.Created,
		Skipped: result.Skipped,
	})
}

// GetAuditTrail handles GET /profiles/{userID}/audit.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		problem := h.buildProblem("Validation failed", "userID must be a valid UUID", problemTypeValidation, http.StatusBadRequest, nil)
		httpapi.WriteProblem(w, http.StatusBadRequest, problem)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			problem := h.buildProblem("Validation failed", "limit must be an integer", problemTypeValidation, http.StatusBadRequest, nil)
			httpapi.WriteProblem(w, http.StatusBadRequest, problem)
			return
		}
		limit = parsed
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())

	entries, err := h.svc.GetAuditTrail(r.Context(), audit, userID, limit)
	if err != nil {
		status, problem := h.problemForError(r.Context(), err, auditTrailOperation)
		httpapi.WriteProblem(w, status, problem)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, entries)
}

// UpdateSettings handles PUT /profiles/{userID}/settings. Users may only
// change their own settings; super admins may change anyone's.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		problem := h.buildProblem("Validation failed", "userID must be a valid UUID", problemTypeValidation, http.StatusBadRequest, nil)
		httpapi.WriteProblem(w, http.StatusBadRequest, problem)
		return
	}

	if !h.mayActOn(r, userID) {
		problem := h.buildProblem("Forbidden", "only super admins may change another user's settings", problemTypeForbidden, http.StatusForbidden, nil)
		httpapi.WriteProblem(w, http.StatusForbidden, problem)
		return
	}

	var request updateSettingsRequest
	if err := httpapi.DecodeJSON(r, &request); err != nil {
		problem := h.buildProblem("Invalid request body", "request body must be valid JSON", problemTypeValidation, http.StatusBadRequest, nil)
		httpapi.WriteProblem(w, http.StatusBadRequest, problem)
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())

	profile, err := h.svc.UpdateSettings(r.Context(), audit, userID, request.Settings)
	if err != nil {
		status, problem := h.problemForError(r.Context(), err, updateSettingsOperation)
		httpapi.WriteProblem(w, status, problem)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, toProfileResponse(profile))
}

// mayActOn reports whether the caller is the subject or a super admin.
func (h *Handler) mayActOn(r *http.Request, subject uuid.UUID) bool {
	creds, ok := platformauth.UserFromContext(r.Context())
	if !ok {
		return false
	}
	if creds.Role == "super_admin" {
		return true
	}
	callerID, err := uuid.Parse(creds.ID)
	return err == nil && callerID == subject
}

func toProfileResponse(profile service.Profile) profileResponse {
	return profileResponse{
		UserID:    profile.UserID,
		TenantID:  profile.TenantID,
		Email:     profile.Email,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Role:      profile.Role,
		IsActive:  profile.IsActive,
		Settings:  profile.Settings,
		CreatedAt: profile.CreatedAt,
		UpdatedAt: profile.UpdatedAt,
	}
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
		logger.Error("provisioning operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("provisioning resource not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("provisioning request rejected", append(fieldsForLog, zap.Error(err))...)
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
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict,
			"Conflict",
			"profile conflict",
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
