package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/calmhaven/calmhaven-backend/platform/go/persistence"
	"github.com/calmhaven/calmhaven-backend/platform/go/requesttrace"
)

type mockRepository struct {
	createPostFn    func(ctx context.Context, params persistence.CreatePostParams) (persistence.CommunityPost, error)
	getPostFn       func(ctx context.Context, id uuid.UUID) (persistence.CommunityPost, error)
	createCommentFn func(ctx context.Context, params persistence.CreateCommentParams) (persistence.CommunityComment, error)
	removeCommentFn func(ctx context.Context, id uuid.UUID) error
	reconcileFn     func(ctx context.Context) (int64, error)
}

func (m *mockRepository) CreatePost(ctx context.Context, params persistence.CreatePostParams) (persistence.CommunityPost, error) {
	if m.createPostFn == nil {
		panic("createPostFn not configured")
	}
	return m.createPostFn(ctx, params)
}

func (m *mockRepository) GetPost(ctx context.Context, id uuid.UUID) (persistence.CommunityPost, error) {
	if m.getPostFn == nil {
		panic("getPostFn not configured")
	}
	return m.getPostFn(ctx, id)
}

func (m *mockRepository) CreateComment(ctx context.Context, params persistence.CreateCommentParams) (persistence.CommunityComment, error) {
	if m.createCommentFn == nil {
		panic("createCommentFn not configured")
	}
	return m.createCommentFn(ctx, params)
}

func (m *mockRepository) RemoveComment(ctx context.Context, id uuid.UUID) error {
	if m.removeCommentFn == nil {
		panic("removeCommentFn not configured")
	}
	return m.removeCommentFn(ctx, id)
}

func (m *mockRepository) ReconcileCommentCounts(ctx context.Context) (int64, error) {
	if m.reconcileFn == nil {
		panic("reconcileFn not configured")
	}
	return m.reconcileFn(ctx)
}

func TestCreatePostValidation(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, nil)
	audit := requesttrace.Anonymous("test")

	_, err := svc.CreatePost(context.Background(), audit, CreatePostInput{
		Title: strings.Repeat("x", maxTitleLength+1),
	})
	require.Error(t, err)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Contains(t, validationErr.Fields, "authorId")
	require.Contains(t, validationErr.Fields, "title")
	require.Contains(t, validationErr.Fields, "body")
}

func TestCreatePostTrimsTitle(t *testing.T) {
	t.Parallel()

	author := uuid.New()
	repository := &mockRepository{}
	repository.createPostFn = func(ctx context.Context, params persistence.CreatePostParams) (persistence.CommunityPost, error) {
		require.Equal(t, "First steps", params.Title)
		return persistence.CommunityPost{ID: uuid.New(), AuthorID: params.AuthorID, Title: params.Title}, nil
	}

	svc := New(repository, nil)
	audit := requesttrace.Anonymous("test")

	post, err := svc.CreatePost(context.Background(), audit, CreatePostInput{
		AuthorID: author,
		Title:    "  First steps  ",
		Body:     "Hello community",
	})
	require.NoError(t, err)
	require.Equal(t, author, post.AuthorID)
}

func TestCreateCommentMapsParentMismatch(t *testing.T) {
	t.Parallel()

	parent := uuid.New()
	repository := &mockRepository{}
	repository.createCommentFn = func(ctx context.Context, params persistence.CreateCommentParams) (persistence.CommunityComment, error) {
		return persistence.CommunityComment{}, persistence.ErrCommentNotFound
	}

	svc := New(repository, nil)
	audit := requesttrace.Anonymous("test")

	_, err := svc.CreateComment(context.Background(), audit, CreateCommentInput{
		PostID:          uuid.New(),
		ParentCommentID: &parent,
		AuthorID:        uuid.New(),
		Body:            "a reply",
	})
	require.Error(t, err)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Contains(t, validationErr.Fields, "parentCommentId")
}

func TestCreateCommentUnknownPost(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.createCommentFn = func(ctx context.Context, params persistence.CreateCommentParams) (persistence.CommunityComment, error) {
		return persistence.CommunityComment{}, persistence.ErrPostNotFound
	}

	svc := New(repository, nil)
	audit := requesttrace.Anonymous("test")

	_, err := svc.CreateComment(context.Background(), audit, CreateCommentInput{
		PostID:   uuid.New(),
		AuthorID: uuid.New(),
		Body:     "hello",
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveCommentIdempotencyGuard(t *testing.T) {
	t.Parallel()

	removed := false
	repository := &mockRepository{}
	repository.removeCommentFn = func(ctx context.Context, id uuid.UUID) error {
		if removed {
			return persistence.ErrCommentNotFound
		}
		removed = true
		return nil
	}

	svc := New(repository, nil)
	audit := requesttrace.Anonymous("test")
	commentID := uuid.New()

	require.NoError(t, svc.RemoveComment(context.Background(), audit, commentID))
	require.ErrorIs(t, svc.RemoveComment(context.Background(), audit, commentID), ErrNotFound)
}

func TestReconcileCommentCounts(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.reconcileFn = func(ctx context.Context) (int64, error) {
		return 7, nil
	}

	svc := New(repository, nil)
	audit := requesttrace.System("test")

	repaired, err := svc.ReconcileCommentCounts(context.Background(), audit)
	require.NoError(t, err)
	require.EqualValues(t, 7, repaired)
}
