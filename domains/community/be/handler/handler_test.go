package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/calmhaven/calmhaven-backend/domains/community/be/service"
	platformauth "github.com/calmhaven/calmhaven-backend/platform/go/auth"
	"github.com/calmhaven/calmhaven-backend/platform/go/persistence"
	"github.com/calmhaven/calmhaven-backend/platform/go/requesttrace"
)

type mockService struct {
	createPostFn    func(ctx context.Context, audit requesttrace.AuditInfo, input service.CreatePostInput) (persistence.CommunityPost, error)
	getPostFn       func(ctx context.Context, id uuid.UUID) (persistence.CommunityPost, error)
	createCommentFn func(ctx context.Context, audit requesttrace.AuditInfo, input service.CreateCommentInput) (persistence.CommunityComment, error)
	removeCommentFn func(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) error
	reconcileFn     func(ctx context.Context, audit requesttrace.AuditInfo) (int64, error)
}

func (m *mockService) CreatePost(ctx context.Context, audit requesttrace.AuditInfo, input service.CreatePostInput) (persistence.CommunityPost, error) {
	if m.createPostFn == nil {
		panic("createPostFn not configured")
	}
	return m.createPostFn(ctx, audit, input)
}

func (m *mockService) GetPost(ctx context.Context, id uuid.UUID) (persistence.CommunityPost, error) {
	if m.getPostFn == nil {
		panic("getPostFn not configured")
	}
	return m.getPostFn(ctx, id)
}

func (m *mockService) CreateComment(ctx context.Context, audit requesttrace.AuditInfo, input service.CreateCommentInput) (persistence.CommunityComment, error) {
	if m.createCommentFn == nil {
		panic("createCommentFn not configured")
	}
	return m.createCommentFn(ctx, audit, input)
}

func (m *mockService) RemoveComment(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) error {
	if m.removeCommentFn == nil {
		panic("removeCommentFn not configured")
	}
	return m.removeCommentFn(ctx, audit, id)
}

func (m *mockService) ReconcileCommentCounts(ctx context.Context, audit requesttrace.AuditInfo) (int64, error) {
	if m.reconcileFn == nil {
		panic("reconcileFn not configured")
	}
	return m.reconcileFn(ctx, audit)
}

func newTestRouter(t *testing.T, svc service.Service) http.Handler {
	t.Helper()

	router := chi.NewRouter()
	handler := New(svc, zaptest.NewLogger(t))
	handler.Routes(router)
	return router
}

func withActor(req *http.Request, userID uuid.UUID) *http.Request {
	id := userID.String()
	ctx := requesttrace.IntoContext(req.Context(), requesttrace.AuditInfo{
		ActorKind: requesttrace.ActorKindUser,
		UserID:    &id,
		RequestID: "test-request",
	})
	return req.WithContext(ctx)
}

func TestCreatePost(t *testing.T) {
	t.Parallel()

	author := uuid.New()
	postID := uuid.New()
	svc := &mockService{}
	svc.createPostFn = func(ctx context.Context, audit requesttrace.AuditInfo, input service.CreatePostInput) (persistence.CommunityPost, error) {
		require.Equal(t, author, input.AuthorID)
		require.Equal(t, "Morning walks", input.Title)
		return persistence.CommunityPost{ID: postID, AuthorID: author, Title: input.Title, Body: input.Body}, nil
	}

	router := newTestRouter(t, svc)

	body := `{"title":"Morning walks","body":"They help."}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(body)), author)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "/api/v1/community/posts/"+postID.String(), rec.Header().Get("Location"))
}

func TestCreatePostRequiresActor(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, &mockService{})

	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{"title":"t","body":"b"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestGetPostNotFound(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.getPostFn = func(ctx context.Context, id uuid.UUID) (persistence.CommunityPost, error) {
		return persistence.CommunityPost{}, service.ErrNotFound
	}

	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/posts/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveComment(t *testing.T) {
	t.Parallel()

	commentID := uuid.New()
	svc := &mockService{}
	svc.removeCommentFn = func(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) error {
		require.Equal(t, commentID, id)
		return nil
	}

	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodDelete, "/comments/"+commentID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestReconcileRequiresSuperAdmin(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, &mockService{})

	req := httptest.NewRequest(http.MethodPost, "/comments/reconcile", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReconcileAsSuperAdmin(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.reconcileFn = func(ctx context.Context, audit requesttrace.AuditInfo) (int64, error) {
		return 7, nil
	}

	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/comments/reconcile", nil)
	req = req.WithContext(platformauth.ContextWithUser(req.Context(), &platformauth.UserCredentials{ID: "op", Role: "super_admin"}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload reconcileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, int64(7), payload.RowsRepaired)
}
