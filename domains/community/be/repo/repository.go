// Package repo provides persistence access for the community domain.
package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/calmhaven/calmhaven-backend/platform/go/persistence"
)

// Repository describes the persistence operations the community service needs.
type Repository interface {
	CreatePost(ctx context.Context, params persistence.CreatePostParams) (persistence.CommunityPost, error)
	GetPost(ctx context.Context, id uuid.UUID) (persistence.CommunityPost, error)
	CreateComment(ctx context.Context, params persistence.CreateCommentParams) (persistence.CommunityComment, error)
	RemoveComment(ctx context.Context, id uuid.UUID) error
	ReconcileCommentCounts(ctx context.Context) (int64, error)
}

type postgresRepository struct {
	store *persistence.CommunityStore
}

// NewPostgresRepository builds the production Repository on top of the
// shared store.
func NewPostgresRepository(store *persistence.CommunityStore) Repository {
	if store == nil {
		panic("community store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) CreatePost(ctx context.Context, params persistence.CreatePostParams) (persistence.CommunityPost, error) {
	return r.store.CreatePost(ctx, params)
}

func (r *postgresRepository) GetPost(ctx context.Context, id uuid.UUID) (persistence.CommunityPost, error) {
	return r.store.GetPost(ctx, id)
}

func (r *postgresRepository) CreateComment(ctx context.Context, params persistence.CreateCommentParams) (persistence.CommunityComment, error) {
	return r.store.CreateComment(ctx, params)
}

func (r *postgresRepository) RemoveComment(ctx context.Context, id uuid.UUID) error {
	return r.store.RemoveComment(ctx, id)
}

func (r *postgresRepository) ReconcileCommentCounts(ctx context.Context) (int64, error) {
	return r.store.ReconcileCommentCounts(ctx)
}
