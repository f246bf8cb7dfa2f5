// Package service implements the community posting operations, including
// maintenance of the denormalized comment counters.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calmhaven/calmhaven-backend/domains/community/be/repo"
	"github.com/calmhaven/calmhaven-backend/platform/go/persistence"
	"github.com/calmhaven/calmhaven-backend/platform/go/requesttrace"
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// Domain sentinel errors.
var ErrNotFound = errors.New("resource not found")

const (
	maxTitleLength = 300
	maxBodyLength  = 20000
)

// CreatePostInput is the payload for creating a post.
type CreatePostInput struct {
	TenantID *uuid.UUID
	AuthorID uuid.UUID
	Title    string
	Body     string
}

// CreateCommentInput is the payload for creating a comment or reply.
type CreateCommentInput struct {
	PostID          uuid.UUID
	ParentCommentID *uuid.UUID
	AuthorID        uuid.UUID
	Body            string
}

// Service defines the business operations for the community domain.
type Service interface {
	CreatePost(ctx context.Context, audit requesttrace.AuditInfo, input CreatePostInput) (persistence.CommunityPost, error)
	GetPost(ctx context.Context, id uuid.UUID) (persistence.CommunityPost, error)
	CreateComment(ctx context.Context, audit requesttrace.AuditInfo, input CreateCommentInput) (persistence.CommunityComment, error)
	RemoveComment(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) error
	ReconcileCommentCounts(ctx context.Context, audit requesttrace.AuditInfo) (int64, error)
}

type service struct {
	repo   repo.Repository
	logger *zap.Logger
}

// New constructs a community Service backed by the provided repository.
func New(r repo.Repository, logger *zap.Logger) Service {
	if r == nil {
		panic("community repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{repo: r, logger: logger}
}

func (s *service) CreatePost(ctx context.Context, audit requesttrace.AuditInfo, input CreatePostInput) (persistence.CommunityPost, error) {
	fieldErrors := FieldErrors{}
	if input.AuthorID == uuid.Nil {
		fieldErrors.add("authorId", "authorId is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		fieldErrors.add("title", "title is required")
	} else if len(title) > maxTitleLength {
		fieldErrors.add("title", fmt.Sprintf("title must not exceed %d characters", maxTitleLength))
	}
	if strings.TrimSpace(input.Body) == "" {
		fieldErrors.add("body", "body is required")
	} else if len(input.Body) > maxBodyLength {
		fieldErrors.add("body", fmt.Sprintf("body must not exceed %d characters", maxBodyLength))
	}
	if len(fieldErrors) > 0 {
		return persistence.CommunityPost{}, &ValidationError{Fields: fieldErrors}
	}

	post, err := s.repo.CreatePost(ctx, persistence.CreatePostParams{
		TenantID: input.TenantID,
		AuthorID: input.AuthorID,
		Title:    title,
		Body:     input.Body,
	})
	if err != nil {
		return persistence.CommunityPost{}, fmt.Errorf("create post: %w", err)
	}

	s.logger.Info("community post created",
		zap.String("post_id", post.ID.String()),
		zap.String("author_id", post.AuthorID.String()))

	return post, nil
}

func (s *service) GetPost(ctx context.Context, id uuid.UUID) (persistence.CommunityPost, error) {
	if id == uuid.Nil {
		return persistence.CommunityPost{}, &ValidationError{Fields: FieldErrors{"postId": {"postId is required"}}}
	}

	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrPostNotFound) {
			return persistence.CommunityPost{}, ErrNotFound
		}
		return persistence.CommunityPost{}, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// CreateComment adds a comment and bumps the post's comment counter in the
// same transaction. Replies also bump the parent's reply counter; a parent
// belonging to a different post is rejected.
func (s *service) CreateComment(ctx context.Context, audit requesttrace.AuditInfo, input CreateCommentInput) (persistence.CommunityComment, error) {
	fieldErrors := FieldErrors{}
	if input.PostID == uuid.Nil {
		fieldErrors.add("postId", "postId is required")
	}
	if input.AuthorID == uuid.Nil {
		fieldErrors.add("authorId", "authorId is required")
	}
	if strings.TrimSpace(input.Body) == "" {
		fieldErrors.add("body", "body is required")
	} else if len(input.Body) > maxBodyLength {
		fieldErrors.add("body", fmt.Sprintf("body must not exceed %d characters", maxBodyLength))
	}
	if len(fieldErrors) > 0 {
		return persistence.CommunityComment{}, &ValidationError{Fields: fieldErrors}
	}

	comment, err := s.repo.CreateComment(ctx, persistence.CreateCommentParams{
		PostID:          input.PostID,
		ParentCommentID: input.ParentCommentID,
		AuthorID:        input.AuthorID,
		Body:            input.Body,
	})
	if err != nil {
		switch {
		case errors.Is(err, persistence.ErrPostNotFound):
			return persistence.CommunityComment{}, ErrNotFound
		case errors.Is(err, persistence.ErrCommentNotFound):
			return persistence.CommunityComment{}, &ValidationError{
				Fields: FieldErrors{"parentCommentId": {"parent comment does not exist on this post"}},
			}
		default:
			return persistence.CommunityComment{}, fmt.Errorf("create comment: %w", err)
		}
	}
	return comment, nil
}

// RemoveComment soft-deletes the comment and decrements the counters. The
// store reports an already-removed comment as missing, which keeps repeated
// removals from decrementing twice.
func (s *service) RemoveComment(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) error {
	if id == uuid.Nil {
		return &ValidationError{Fields: FieldErrors{"commentId": {"commentId is required"}}}
	}

	if err := s.repo.RemoveComment(ctx, id); err != nil {
		if errors.Is(err, persistence.ErrCommentNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("remove comment: %w", err)
	}
	return nil
}

// ReconcileCommentCounts recomputes every denormalized counter from the
// live comment rows. Intended for scheduled or operator-initiated repair.
func (s *service) ReconcileCommentCounts(ctx context.Context, audit requesttrace.AuditInfo) (int64, error) {
	repaired, err := s.repo.ReconcileCommentCounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile comment counts: %w", err)
	}

	s.logger.Info("comment counters reconciled", zap.Int64("rows_repaired", repaired))
	return repaired, nil
}

func (f FieldErrors) add(field, message string) {
	f[field] = append(f[field], message)
}
