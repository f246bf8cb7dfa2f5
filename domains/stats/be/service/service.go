// Package service implements the session statistics operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calmhaven/calmhaven-backend/domains/stats/be/repo"
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
var (
	ErrNotFound  = errors.New("profile not found")
	ErrForbidden = errors.New("tenant scope not permitted")
)

const (
	defaultLookbackDays = 30
	maxLookbackDays     = 365
)

// StatsInput selects the subject, window, and optional tenant scope of a
// statistics query.
type StatsInput struct {
	UserID       uuid.UUID
	TenantID     *uuid.UUID
	LookbackDays int
}

// SessionStats is the aggregated dashboard payload. A user with no
// sessions in the window gets a fully zeroed value rather than an error.
type SessionStats struct {
	TotalCoachingSessions      int
	UpcomingCoachingSessions   int
	CompletedCoachingSessions  int
	CancelledCoachingSessions  int
	TotalTreatmentSessions     int
	ActiveTreatmentSessions    int
	CompletedTreatmentSessions int
	HoursThisMonth             float64
	AvailableSlots             int
	WindowStart                time.Time
	GeneratedAt                time.Time
}

// Service defines the business operations for the stats domain.
type Service interface {
	GetSessionStats(ctx context.Context, audit requesttrace.AuditInfo, input StatsInput) (SessionStats, error)
	ResetStats(ctx context.Context, audit requesttrace.AuditInfo, userID uuid.UUID) error
}

type service struct {
	repo   repo.Repository
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a stats Service backed by the provided repository.
func New(r repo.Repository, logger *zap.Logger) Service {
	if r == nil {
		panic("stats repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{repo: r, logger: logger, now: time.Now}
}

// GetSessionStats aggregates coaching and treatment activity for the user.
// Visibility follows the subject's role: super admins see every session,
// tenant-scoped roles additionally see their tenant's sessions, everyone
// else only their own. The window lower bound is the later of the lookback
// start and the user's stats watermark.
func (s *service) GetSessionStats(ctx context.Context, audit requesttrace.AuditInfo, input StatsInput) (SessionStats, error) {
	fieldErrors := FieldErrors{}
	if input.UserID == uuid.Nil {
		fieldErrors.add("userId", "userId is required")
	}
	if input.LookbackDays < 0 {
		fieldErrors.add("lookbackDays", "lookbackDays must not be negative")
	}
	if input.LookbackDays > maxLookbackDays {
		fieldErrors.add("lookbackDays", fmt.Sprintf("lookbackDays must not exceed %d", maxLookbackDays))
	}
	if len(fieldErrors) > 0 {
		return SessionStats{}, &ValidationError{Fields: fieldErrors}
	}

	lookback := input.LookbackDays
	if lookback == 0 {
		lookback = defaultLookbackDays
	}

	profile, err := s.repo.GetProfile(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrProfileNotFound) {
			return SessionStats{}, ErrNotFound
		}
		return SessionStats{}, fmt.Errorf("load profile: %w", err)
	}

	now := s.now().UTC()
	since := now.AddDate(0, 0, -lookback)
	if profile.StatsClearedAt != nil && profile.StatsClearedAt.After(since) {
		since = profile.StatsClearedAt.UTC()
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	filter := persistence.SessionStatsFilter{
		UserID:     profile.UserID,
		SuperAdmin: profile.Role == persistence.RoleSuperAdmin,
		Since:      since,
		MonthStart: monthStart,
		MonthEnd:   monthEnd,
	}
	if tenantScoped(profile.Role) {
		filter.TenantID = profile.TenantID
	}

	// A caller-supplied tenant narrows the scope instead of widening it:
	// super admins may pick any tenant, tenant-scoped roles only their own.
	if input.TenantID != nil {
		switch {
		case profile.Role == persistence.RoleSuperAdmin:
			filter.SuperAdmin = false
			filter.TenantID = input.TenantID
		case tenantScoped(profile.Role):
			if profile.TenantID == nil || *profile.TenantID != *input.TenantID {
				return SessionStats{}, ErrForbidden
			}
			filter.TenantID = input.TenantID
		default:
			return SessionStats{}, ErrForbidden
		}
	}

	coaching, err := s.repo.AggregateCoachingStats(ctx, filter)
	if err != nil {
		return SessionStats{}, fmt.Errorf("aggregate coaching stats: %w", err)
	}

	treatment, err := s.repo.AggregateTreatmentStats(ctx, filter)
	if err != nil {
		return SessionStats{}, fmt.Errorf("aggregate treatment stats: %w", err)
	}

	return SessionStats{
		TotalCoachingSessions:      coaching.Total,
		UpcomingCoachingSessions:   coaching.Upcoming,
		CompletedCoachingSessions:  coaching.Completed,
		CancelledCoachingSessions:  coaching.Cancelled,
		TotalTreatmentSessions:     treatment.Total,
		ActiveTreatmentSessions:    treatment.Active,
		CompletedTreatmentSessions: treatment.Completed,
		HoursThisMonth:             float64(coaching.MinutesThisMonth+treatment.MinutesThisMonth) / 60,
		AvailableSlots:             0,
		WindowStart:                since,
		GeneratedAt:                now,
	}, nil
}

// ResetStats moves the user's watermark to now, hiding all prior sessions
// from future aggregations without touching session rows.
func (s *service) ResetStats(ctx context.Context, audit requesttrace.AuditInfo, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return &ValidationError{Fields: FieldErrors{"userId": {"userId is required"}}}
	}

	if err := s.repo.SetStatsClearedAt(ctx, userID, s.now().UTC()); err != nil {
		if errors.Is(err, persistence.ErrProfileNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("reset stats watermark: %w", err)
	}

	s.logger.Info("stats watermark reset", zap.String("user_id", userID.String()))
	return nil
}

func tenantScoped(role persistence.Role) bool {
	switch role {
	case persistence.RoleManager, persistence.RoleTenantAdmin:
		return true
	default:
		return false
	}
}

func (f FieldErrors) add(field, message string) {
	f[field] = append(f[field], message)
}
