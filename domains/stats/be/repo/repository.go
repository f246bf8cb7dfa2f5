// Package repo provides persistence access for the stats domain.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/calmhaven/calmhaven-backend/platform/go/persistence"
)

// Repository describes the persistence operations the stats service needs.
type Repository interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (persistence.Profile, error)
	SetStatsClearedAt(ctx context.Context, userID uuid.UUID, at time.Time) error
	AggregateCoachingStats(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.CoachingStats, error)
	AggregateTreatmentStats(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.TreatmentStats, error)
}

type postgresRepository struct {
	profiles  *persistence.ProfileStore
	coaching  *persistence.CoachingSessionStore
	treatment *persistence.TreatmentSessionStore
}

// NewPostgresRepository builds the production Repository on top of the
// shared stores.
func NewPostgresRepository(
	profiles *persistence.ProfileStore,
	coaching *persistence.CoachingSessionStore,
	treatment *persistence.TreatmentSessionStore,
) Repository {
	if profiles == nil {
		panic("profile store is required")
	}
	if coaching == nil {
		panic("coaching session store is required")
	}
	if treatment == nil {
		panic("treatment session store is required")
	}

	return &postgresRepository{profiles: profiles, coaching: coaching, treatment: treatment}
}

func (r *postgresRepository) GetProfile(ctx context.Context, userID uuid.UUID) (persistence.Profile, error) {
	return r.profiles.GetProfile(ctx, userID)
}

func (r *postgresRepository) SetStatsClearedAt(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return r.profiles.SetStatsClearedAt(ctx, userID, at)
}

func (r *postgresRepository) AggregateCoachingStats(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.CoachingStats, error) {
	return r.coaching.AggregateCoachingStats(ctx, filter)
}

func (r *postgresRepository) AggregateTreatmentStats(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.TreatmentStats, error) {
	return r.treatment.AggregateTreatmentStats(ctx, filter)
}
