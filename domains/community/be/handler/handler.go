package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calmhaven/calmhaven-backend/domains/community/be/service"
	platformauth "github.com/calmhaven/calmhaven-backend/platform/go/auth"
	"github.com/calmhaven/calmhaven-backend/platform/go/httpapi"
	platformlogging "github.com/calmhaven/calmhaven-backend/platform/go/logging"
	"github.com/calmhaven/calmhaven-backend/platform/go/requesttrace"
)

const (
	problemTypeValidation = "https://calmhaven.app/problems/validation-error"
	problemTypeNotFound   = "https://calmhaven.app/problems/not-found"
	problemTypeInternal   = "https://calmhaven.app/problems/internal-error"
)

type operation string

const (
	createPostOperation    operation = "communityCreatePost"
	getPostOperation       operation = "communityGetPost"
	createCommentOperation operation = "communityCreateComment"
	removeCommentOperation operation = "communityRemoveComment"
	reconcileOperation     operation = "communityReconcileCounts"
)

// Handler wires the community service to the HTTP surface.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("community service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the community endpoints on the given router. Count
// reconciliation is restricted to platform operators.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/posts", h.CreatePost)
	r.Get("/posts/{postID}", h.GetPost)
	r.Post("/posts/{postID}/comments", h.CreateComment)
	r.Delete("/comments/{commentID}", h.RemoveComment)
	r.With(platformauth.RequireRole("super_admin")).Post("/comments/reconcile", h.ReconcileCommentCounts)
}

type createPostRequest struct {
	TenantID *uuid.UUID `json:"tenantId,omitempty"`
	Title    string     `json:"title"`
	Body     string     `json:"body"`
}

type createCommentRequest struct {
	ParentCommentID *uuid.UUID `json:"parentCommentId,omitempty"`
	Body            string     `json:"body"`
}

type reconcileResponse struct {
	RowsRepaired int64 `json:"rowsRepaired"`
}

// CreatePost handles POST /posts. The author is the authenticated user.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var request createPostRequest
	if err := httpapi.DecodeJSON(r, &request); err != nil {
		problem := h.buildProblem("Invalid request body", "request body must be valid JSON", problemTypeValidation, http.StatusBadRequest, nil)
		httpapi.WriteProblem(w, http.StatusBadRequest, problem)
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	author, problem := h.actorID(audit)
	if problem != nil {
		httpapi.WriteProblem(w, problem.Status, *problem)
		return
	}

	post, err := h.svc.CreatePost(r.Context(), audit, service.CreatePostInput{
		TenantID: request.TenantID,
		AuthorID: author,
		Title:    request.Title,
		Body:     request.Body,
	})
	if err != nil {
		status, p := h.problemForError(r.Context(), err, createPostOperation)
		httpapi.WriteProblem(w, status, p)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/community/posts/%s", post.ID.String()))
	httpapi.WriteJSON(w, http.StatusCreated, post)
}

// GetPost handles GET /posts/{postID}.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, problem := h.pathUUID(r, "postID")
	if problem != nil {
		httpapi.WriteProblem(w, problem.Status, *problem)
		return
	}

	post, err := h.svc.GetPost(r.Context(), id)
	if err != nil {
		status, p := h.problemForError(r.Context(), err, getPostOperation)
		httpapi.WriteProblem(w, status, p)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, post)
}

// CreateComment handles POST /posts/{postID}/comments.
func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	postID, problem := h.pathUUID(r, "postID")
	if problem != nil {
		httpapi.WriteProblem(w, problem.Status, *problem)
		return
	}

	var request createCommentRequest
	if err := httpapi.DecodeJSON(r, &request); err != nil {
		p := h.buildProblem("Invalid request body", "request body must be valid JSON", problemTypeValidation, http.StatusBadRequest, nil)
		httpapi.WriteProblem(w, http.StatusBadRequest, p)
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	author, problem := h.actorID(audit)
	if problem != nil {
		httpapi.WriteProblem(w, problem.Status, *problem)
		return
	}

	comment, err := h.svc.CreateComment(r.Context(), audit, service.CreateCommentInput{
		PostID:          postID,
		ParentCommentID: request.ParentCommentID,
		AuthorID:        author,
		Body:            request.Body,
	})
	if err != nil {
		status, p := h.problemForError(r.Context(), err, createCommentOperation)
		httpapi.WriteProblem(w, status, p)
		return
	}

	httpapi.WriteJSON(w, http.StatusCreated, comment)
}

// RemoveComment handles DELETE /comments/{commentID}.
func (h *Handler) RemoveComment(w http.ResponseWriter, r *http.Request) {
	id, problem := h.pathUUID(r, "commentID")
	if problem != nil {
		httpapi.WriteProblem(w, problem.Status, *problem)
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())

	if err := h.svc.RemoveComment(r.Context(), audit, id); err != nil {
		status, p := h.problemForError(r.Context(), err, removeCommentOperation)
		httpapi.WriteProblem(w, status, p)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReconcileCommentCounts handles POST /comments/reconcile.
func (h *Handler) ReconcileCommentCounts(w http.ResponseWriter, r *http.Request) {
	audit := requesttrace.FromContextOrAnonymous(r.Context())

	repaired, err := h.svc.ReconcileCommentCounts(r.Context(), audit)
	if err != nil {
		status, p := h.problemForError(r.Context(), err, reconcileOperation)
		httpapi.WriteProblem(w, status, p)
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, reconcileResponse{RowsRepaired: repaired})
}

func (h *Handler) pathUUID(r *http.Request, name string) (uuid.UUID, *httpapi.ProblemDetails) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		p := h.buildProblem("Validation failed", name+" must be a UUID", problemTypeValidation, http.StatusBadRequest, nil)
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
		logger.Error("community operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("community resource not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("community request rejected", append(fieldsForLog, zap.Error(err))...)
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
			"post or comment not found",
			problemTypeNotFound,
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
