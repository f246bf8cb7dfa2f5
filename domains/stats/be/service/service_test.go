package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/calmhaven/calmhaven-backend/platform/go/persistence"
	"github.com/calmhaven/calmhaven-backend/platform/go/requesttrace"
)

type mockRepository struct {
	getProfileFn func(ctx context.Context, userID uuid.UUID) (persistence.Profile, error)
	setClearedFn func(ctx context.Context, userID uuid.UUID, at time.Time) error
	coachingFn   func(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.CoachingStats, error)
	treatmentFn  func(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.TreatmentStats, error)
}

func (m *mockRepository) GetProfile(ctx context.Context, userID uuid.UUID) (persistence.Profile, error) {
	if m.getProfileFn == nil {
		panic("getProfileFn not configured")
	}
	return m.getProfileFn(ctx, userID)
}

func (m *mockRepository) SetStatsClearedAt(ctx context.Context, userID uuid.UUID, at time.Time) error {
	if m.setClearedFn == nil {
		panic("setClearedFn not configured")
	}
	return m.setClearedFn(ctx, userID, at)
}

func (m *mockRepository) AggregateCoachingStats(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.CoachingStats, error) {
	if m.coachingFn == nil {
		panic("coachingFn not configured")
	}
	return m.coachingFn(ctx, filter)
}

func (m *mockRepository) AggregateTreatmentStats(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.TreatmentStats, error) {
	if m.treatmentFn == nil {
		panic("treatmentFn not configured")
	}
	return m.treatmentFn(ctx, filter)
}

func fixedService(t *testing.T, repository *mockRepository, now time.Time) Service {
	t.Helper()
	svc := New(repository, nil).(*service)
	svc.now = func() time.Time { return now }
	return svc
}

func TestGetSessionStatsValidation(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, nil)
	audit := requesttrace.Anonymous("test")

	_, err := svc.GetSessionStats(context.Background(), audit, StatsInput{LookbackDays: 400})
	require.Error(t, err)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Contains(t, validationErr.Fields, "userId")
	require.Contains(t, validationErr.Fields, "lookbackDays")
}

func TestGetSessionStatsDefaultWindow(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	now := time.Date(2026, time.March, 18, 10, 30, 0, 0, time.UTC)

	repository := &mockRepository{}
	repository.getProfileFn = func(ctx context.Context, id uuid.UUID) (persistence.Profile, error) {
		return persistence.Profile{UserID: id, Role: persistence.RoleUser}, nil
	}
	repository.coachingFn = func(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.CoachingStats, error) {
		require.Equal(t, now.AddDate(0, 0, -30), filter.Since)
		require.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), filter.MonthStart)
		require.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), filter.MonthEnd)
		require.False(t, filter.SuperAdmin)
		require.Nil(t, filter.TenantID)
		return persistence.CoachingStats{Total: 4, Upcoming: 1, Completed: 2, Cancelled: 1, MinutesThisMonth: 90}, nil
	}
	repository.treatmentFn = func(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.TreatmentStats, error) {
		return persistence.TreatmentStats{Total: 3, Active: 1, Completed: 2, MinutesThisMonth: 30}, nil
	}

	svc := fixedService(t, repository, now)
	audit := requesttrace.Anonymous("test")

	stats, err := svc.GetSessionStats(context.Background(), audit, StatsInput{UserID: userID})
	require.NoError(t, err)
	require.Equal(t, 4, stats.TotalCoachingSessions)
	require.Equal(t, 1, stats.UpcomingCoachingSessions)
	require.Equal(t, 3, stats.TotalTreatmentSessions)
	require.InDelta(t, 2.0, stats.HoursThisMonth, 1e-9)
	require.Equal(t, 0, stats.AvailableSlots)
}

func TestGetSessionStatsWatermarkWins(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	now := time.Date(2026, time.March, 18, 10, 30, 0, 0, time.UTC)
	cleared := now.AddDate(0, 0, -3)

	repository := &mockRepository{}
	repository.getProfileFn = func(ctx context.Context, id uuid.UUID) (persistence.Profile, error) {
		return persistence.Profile{UserID: id, Role: persistence.RoleUser, StatsClearedAt: &cleared}, nil
	}
	repository.coachingFn = func(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.CoachingStats, error) {
		require.Equal(t, cleared, filter.Since)
		return persistence.CoachingStats{}, nil
	}
	repository.treatmentFn = func(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.TreatmentStats, error) {
		return persistence.TreatmentStats{}, nil
	}

	svc := fixedService(t, repository, now)
	audit := requesttrace.Anonymous("test")

	stats, err := svc.GetSessionStats(context.Background(), audit, StatsInput{UserID: userID, LookbackDays: 30})
	require.NoError(t, err)
	require.Equal(t, cleared, stats.WindowStart)
	require.Zero(t, stats.TotalCoachingSessions)
	require.Zero(t, stats.HoursThisMonth)
}

func TestGetSessionStatsRoleScoping(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	now := time.Date(2026, time.March, 18, 10, 30, 0, 0, time.UTC)

	cases := []struct {
		name       string
		role       persistence.Role
		wantSuper  bool
		wantTenant bool
	}{
		{name: "super admin sees everything", role: persistence.RoleSuperAdmin, wantSuper: true},
		{name: "tenant admin scoped to tenant", role: persistence.RoleTenantAdmin, wantTenant: true},
		{name: "manager scoped to tenant", role: persistence.RoleManager, wantTenant: true},
		{name: "coach sees own sessions only", role: persistence.RoleCoach},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repository := &mockRepository{}
			repository.getProfileFn = func(ctx context.Context, id uuid.UUID) (persistence.Profile, error) {
				return persistence.Profile{UserID: id, Role: tc.role, TenantID: &tenantID}, nil
			}
			repository.coachingFn = func(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.CoachingStats, error) {
				require.Equal(t, tc.wantSuper, filter.SuperAdmin)
				if tc.wantTenant {
					require.NotNil(t, filter.TenantID)
					require.Equal(t, tenantID, *filter.TenantID)
				} else {
					require.Nil(t, filter.TenantID)
				}
				return persistence.CoachingStats{}, nil
			}
			repository.treatmentFn = func(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.TreatmentStats, error) {
				return persistence.TreatmentStats{}, nil
			}

			svc := fixedService(t, repository, now)
			audit := requesttrace.Anonymous("test")

			_, err := svc.GetSessionStats(context.Background(), audit, StatsInput{UserID: uuid.New()})
			require.NoError(t, err)
		})
	}
}

func TestGetSessionStatsCallerSuppliedTenant(t *testing.T) {
	t.Parallel()

	ownTenant := uuid.New()
	otherTenant := uuid.New()
	now := time.Date(2026, time.March, 18, 10, 30, 0, 0, time.UTC)

	cases := []struct {
		name       string
		role       persistence.Role
		tenantID   uuid.UUID
		wantErr    error
		wantSuper  bool
		wantTenant *uuid.UUID
	}{
		{name: "super admin narrows to the tenant", role: persistence.RoleSuperAdmin, tenantID: otherTenant, wantTenant: &otherTenant},
		{name: "manager may scope to own tenant", role: persistence.RoleManager, tenantID: ownTenant, wantTenant: &ownTenant},
		{name: "manager may not scope to another tenant", role: persistence.RoleManager, tenantID: otherTenant, wantErr: ErrForbidden},
		{name: "regular user may not scope by tenant", role: persistence.RoleUser, tenantID: ownTenant, wantErr: ErrForbidden},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repository := &mockRepository{}
			repository.getProfileFn = func(ctx context.Context, id uuid.UUID) (persistence.Profile, error) {
				return persistence.Profile{UserID: id, Role: tc.role, TenantID: &ownTenant}, nil
			}
			repository.coachingFn = func(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.CoachingStats, error) {
				require.Equal(t, tc.wantSuper, filter.SuperAdmin)
				require.NotNil(t, filter.TenantID)
				require.Equal(t, *tc.wantTenant, *filter.TenantID)
				return persistence.CoachingStats{}, nil
			}
			repository.treatmentFn = func(ctx context.Context, filter persistence.SessionStatsFilter) (persistence.TreatmentStats, error) {
				return persistence.TreatmentStats{}, nil
			}

			svc := fixedService(t, repository, now)
			audit := requesttrace.Anonymous("test")

			_, err := svc.GetSessionStats(context.Background(), audit, StatsInput{
				UserID:   uuid.New(),
				TenantID: &tc.tenantID,
			})
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestGetSessionStatsUnknownProfile(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.getProfileFn = func(ctx context.Context, id uuid.UUID) (persistence.Profile, error) {
		return persistence.Profile{}, persistence.ErrProfileNotFound
	}

	svc := New(repository, nil)
	audit := requesttrace.Anonymous("test")

	_, err := svc.GetSessionStats(context.Background(), audit, StatsInput{UserID: uuid.New()})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResetStats(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	now := time.Date(2026, time.March, 18, 10, 30, 0, 0, time.UTC)

	repository := &mockRepository{}
	repository.setClearedFn = func(ctx context.Context, id uuid.UUID, at time.Time) error {
		require.Equal(t, userID, id)
		require.Equal(t, now, at)
		return nil
	}

	svc := fixedService(t, repository, now)
	audit := requesttrace.Anonymous("test")

	require.NoError(t, svc.ResetStats(context.Background(), audit, userID))

	repository.setClearedFn = func(ctx context.Context, id uuid.UUID, at time.Time) error {
		return persistence.ErrProfileNotFound
	}
	require.ErrorIs(t, svc.ResetStats(context.Background(), audit, userID), ErrNotFound)
}
