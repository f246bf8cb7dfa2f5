// Package repo provides persistence access for the sessions domain.
package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/calmhaven/calmhaven-backend/platform/go/persistence"
)

// Repository describes the persistence operations the sessions service needs.
type Repository interface {
	CreateCoachingSession(ctx context.Context, params persistence.CreateCoachingSessionParams) (persistence.CoachingSession, error)
	GetCoachingSession(ctx context.Context, id uuid.UUID) (persistence.CoachingSession, error)
	TransitionCoachingSession(ctx context.Context, id uuid.UUID, status string) (persistence.CoachingSession, error)
	ListCoachingSessions(ctx context.Context, params persistence.ListCoachingSessionsParams) ([]persistence.CoachingSession, error)

	StartTreatmentSession(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) (persistence.TreatmentSession, error)
	GetTreatmentSession(ctx context.Context, id uuid.UUID) (persistence.TreatmentSession, error)
	SetTreatmentStatus(ctx context.Context, id uuid.UUID, status string) (persistence.TreatmentSession, error)
	RecordResponse(ctx context.Context, id uuid.UUID, usedAssistedPath bool, responseTimeMs float64) (persistence.TreatmentSession, error)
}

type postgresRepository struct {
	coaching  *persistence.CoachingSessionStore
	treatment *persistence.TreatmentSessionStore
}

// NewPostgresRepository builds the production Repository on top of the
// shared stores.
func NewPostgresRepository(coaching *persistence.CoachingSessionStore, treatment *persistence.TreatmentSessionStore) Repository {
	if coaching == nil {
		panic("coaching session store is required")
	}
	if treatment == nil {
		panic("treatment session store is required")
	}

	return &postgresRepository{coaching: coaching, treatment: treatment}
}

func (r *postgresRepository) CreateCoachingSession(ctx context.Context, params persistence.CreateCoachingSessionParams) (persistence.CoachingSession, error) {
	return r.coaching.CreateCoachingSession(ctx, params)
}

func (r *postgresRepository) GetCoachingSession(ctx context.Context, id uuid.UUID) (persistence.CoachingSession, error) {
	return r.coaching.GetCoachingSession(ctx, id)
}

func (r *postgresRepository) TransitionCoachingSession(ctx context.Context, id uuid.UUID, status string) (persistence.CoachingSession, error) {
	return r.coaching.TransitionCoachingSession(ctx, id, status)
}

func (r *postgresRepository) ListCoachingSessions(ctx context.Context, params persistence.ListCoachingSessionsParams) ([]persistence.CoachingSession, error) {
	return r.coaching.ListCoachingSessions(ctx, params)
}

func (r *postgresRepository) StartTreatmentSession(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) (persistence.TreatmentSession, error) {
	return r.treatment.StartTreatmentSession(ctx, userID, tenantID)
}

func (r *postgresRepository) GetTreatmentSession(ctx context.Context, id uuid.UUID) (persistence.TreatmentSession, error) {
	return r.treatment.GetTreatmentSession(ctx, id)
}

func (r *postgresRepository) SetTreatmentStatus(ctx context.Context, id uuid.UUID, status string) (persistence.TreatmentSession, error) {
	return r.treatment.SetTreatmentStatus(ctx, id, status)
}

func (r *postgresRepository) RecordResponse(ctx context.Context, id uuid.UUID, usedAssistedPath bool, responseTimeMs float64) (persistence.TreatmentSession, error) {
	return r.treatment.RecordResponse(ctx, id, usedAssistedPath, responseTimeMs)
}
