// Package service implements the coaching and treatment session lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calmhaven/calmhaven-backend/domains/sessions/be/repo"
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
	ErrNotFound = errors.New("session not found")
	ErrConflict = errors.New("session state conflict")
)

const maxResponseTimeMs = 10 * 60 * 1000

// ScheduleInput is the payload for scheduling a coaching session.
type ScheduleInput struct {
	TenantID        *uuid.UUID
	CoachID         uuid.UUID
	ClientID        uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
	MeetingType     string
	MeetingLink     *string
}

// ListInput scopes a coaching session listing.
type ListInput struct {
	UserID   uuid.UUID
	TenantID *uuid.UUID
	Limit    int
}

// RecordResponseInput is the payload for logging one treatment response.
type RecordResponseInput struct {
	SessionID        uuid.UUID
	UsedAssistedPath bool
	ResponseTimeMs   float64
}

// Service defines the business operations for the sessions domain.
type Service interface {
	Schedule(ctx context.Context, audit requesttrace.AuditInfo, input ScheduleInput) (persistence.CoachingSession, error)
	GetCoaching(ctx context.Context, id uuid.UUID) (persistence.CoachingSession, error)
	Complete(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) (persistence.CoachingSession, error)
	Cancel(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) (persistence.CoachingSession, error)
	List(ctx context.Context, input ListInput) ([]persistence.CoachingSession, error)

	StartTreatment(ctx context.Context, audit requesttrace.AuditInfo, userID uuid.UUID, tenantID *uuid.UUID) (persistence.TreatmentSession, error)
	GetTreatment(ctx context.Context, id uuid.UUID) (persistence.TreatmentSession, error)
	PauseTreatment(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) (persistence.TreatmentSession, error)
	ResumeTreatment(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) (persistence.TreatmentSession, error)
	CompleteTreatment(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) (persistence.TreatmentSession, error)
	RecordResponse(ctx context.Context, audit requesttrace.AuditInfo, input RecordResponseInput) (persistence.TreatmentSession, error)
}

type service struct {
	repo   repo.Repository
	logger *zap.Logger
	now    func() time.Time
}

// New constructs a sessions Service backed by the provided repository.
func New(r repo.Repository, logger *zap.Logger) Service {
	if r == nil {
		panic("sessions repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{repo: r, logger: logger, now: time.Now}
}

func (s *service) Schedule(ctx context.Context, audit requesttrace.AuditInfo, input ScheduleInput) (persistence.CoachingSession, error) {
	fieldErrors := FieldErrors{}
	if input.CoachID == uuid.Nil {
		fieldErrors.add("coachId", "coachId is required")
	}
	if input.ClientID == uuid.Nil {
		fieldErrors.add("clientId", "clientId is required")
	}
	if input.CoachID != uuid.Nil && input.CoachID == input.ClientID {
		fieldErrors.add("clientId", "client must differ from coach")
	}
	if input.ScheduledAt.IsZero() {
		fieldErrors.add("scheduledAt", "scheduledAt is required")
	} else if input.ScheduledAt.Before(s.now().Add(-time.Minute)) {
		fieldErrors.add("scheduledAt", "scheduledAt must be in the future")
	}
	if input.DurationMinutes < 0 || input.DurationMinutes > 480 {
		fieldErrors.add("durationMinutes", "durationMinutes must be between 0 and 480")
	}
	if len(fieldErrors) > 0 {
		return persistence.CoachingSession{}, &ValidationError{Fields: fieldErrors}
	}

	session, err := s.repo.CreateCoachingSession(ctx, persistence.CreateCoachingSessionParams{
		TenantID:        input.TenantID,
		CoachID:         input.CoachID,
		ClientID:        input.ClientID,
		ScheduledAt:     input.ScheduledAt,
		DurationMinutes: input.DurationMinutes,
		MeetingType:     input.MeetingType,
		MeetingLink:     input.MeetingLink,
	})
	if err != nil {
		return persistence.CoachingSession{}, fmt.Errorf("schedule coaching session: %w", err)
	}

	s.logger.Info("coaching session scheduled",
		zap.String("session_id", session.ID.String()),
		zap.String("coach_id", session.CoachID.String()),
		zap.Time("scheduled_at", session.ScheduledAt))

	return session, nil
}

func (s *service) GetCoaching(ctx context.Context, id uuid.UUID) (persistence.CoachingSession, error) {
	if id == uuid.Nil {
		return persistence.CoachingSession{}, &ValidationError{Fields: FieldErrors{"sessionId": {"sessionId is required"}}}
	}

	session, err := s.repo.GetCoachingSession(ctx, id)
	if err != nil {
		return persistence.CoachingSession{}, s.mapCoachingError(err)
	}
	return session, nil
}

// Complete marks a scheduled coaching session as completed. Sessions that
// already left the scheduled state report a conflict.
func (s *service) Complete(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) (persistence.CoachingSession, error) {
	return s.transition(ctx, id, persistence.CoachingStatusCompleted)
}

// Cancel marks a scheduled coaching session as cancelled.
func (s *service) Cancel(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) (persistence.CoachingSession, error) {
	return s.transition(ctx, id, persistence.CoachingStatusCancelled)
}

func (s *service) transition(ctx context.Context, id uuid.UUID, status string) (persistence.CoachingSession, error) {
	if id == uuid.Nil {
		return persistence.CoachingSession{}, &ValidationError{Fields: FieldErrors{"sessionId": {"sessionId is required"}}}
	}

	session, err := s.repo.TransitionCoachingSession(ctx, id, status)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, persistence.ErrCoachingSessionNotFound) {
		return persistence.CoachingSession{}, fmt.Errorf("transition coaching session: %w", err)
	}

	// The guarded update misses both unknown ids and sessions already in a
	// terminal state. Disambiguate with a direct read.
	existing, getErr := s.repo.GetCoachingSession(ctx, id)
	if getErr != nil {
		return persistence.CoachingSession{}, s.mapCoachingError(getErr)
	}
	if existing.Status == status {
		// Repeating the same transition is a no-op, not an error.
		return existing, nil
	}
	return persistence.CoachingSession{}, ErrConflict
}

func (s *service) List(ctx context.Context, input ListInput) ([]persistence.CoachingSession, error) {
	if input.UserID == uuid.Nil {
		return nil, &ValidationError{Fields: FieldErrors{"userId": {"userId is required"}}}
	}

	sessions, err := s.repo.ListCoachingSessions(ctx, persistence.ListCoachingSessionsParams{
		UserID:   input.UserID,
		TenantID: input.TenantID,
		Limit:    input.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list coaching sessions: %w", err)
	}
	return sessions, nil
}

func (s *service) StartTreatment(ctx context.Context, audit requesttrace.AuditInfo, userID uuid.UUID, tenantID *uuid.UUID) (persistence.TreatmentSession, error) {
	if userID == uuid.Nil {
		return persistence.TreatmentSession{}, &ValidationError{Fields: FieldErrors{"userId": {"userId is required"}}}
	}

	session, err := s.repo.StartTreatmentSession(ctx, userID, tenantID)
	if err != nil {
		return persistence.TreatmentSession{}, fmt.Errorf("start treatment session: %w", err)
	}

	s.logger.Info("treatment session started",
		zap.String("session_id", session.ID.String()),
		zap.String("user_id", userID.String()))

	return session, nil
}

func (s *service) GetTreatment(ctx context.Context, id uuid.UUID) (persistence.TreatmentSession, error) {
	if id == uuid.Nil {
		return persistence.TreatmentSession{}, &ValidationError{Fields: FieldErrors{"sessionId": {"sessionId is required"}}}
	}

	session, err := s.repo.GetTreatmentSession(ctx, id)
	if err != nil {
		return persistence.TreatmentSession{}, s.mapTreatmentError(err)
	}
	return session, nil
}

func (s *service) PauseTreatment(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) (persistence.TreatmentSession, error) {
	return s.setTreatmentStatus(ctx, id, persistence.TreatmentStatusPaused)
}

func (s *service) ResumeTreatment(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) (persistence.TreatmentSession, error) {
	return s.setTreatmentStatus(ctx, id, persistence.TreatmentStatusActive)
}

// CompleteTreatment finishes the session and stamps its duration. Completed
// sessions are terminal.
func (s *service) CompleteTreatment(ctx context.Context, audit requesttrace.AuditInfo, id uuid.UUID) (persistence.TreatmentSession, error) {
	return s.setTreatmentStatus(ctx, id, persistence.TreatmentStatusCompleted)
}

func (s *service) setTreatmentStatus(ctx context.Context, id uuid.UUID, status string) (persistence.TreatmentSession, error) {
	if id == uuid.Nil {
		return persistence.TreatmentSession{}, &ValidationError{Fields: FieldErrors{"sessionId": {"sessionId is required"}}}
	}

	session, err := s.repo.SetTreatmentStatus(ctx, id, status)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, persistence.ErrTreatmentSessionNotFound) {
		return persistence.TreatmentSession{}, fmt.Errorf("set treatment status: %w", err)
	}

	existing, getErr := s.repo.GetTreatmentSession(ctx, id)
	if getErr != nil {
		return persistence.TreatmentSession{}, s.mapTreatmentError(getErr)
	}
	if existing.Status == status {
		return existing, nil
	}
	return persistence.TreatmentSession{}, ErrConflict
}

// RecordResponse logs a single client response and folds its latency into
// the running average in one atomic statement.
func (s *service) RecordResponse(ctx context.Context, audit requesttrace.AuditInfo, input RecordResponseInput) (persistence.TreatmentSession, error) {
	fieldErrors := FieldErrors{}
	if input.SessionID == uuid.Nil {
		fieldErrors.add("sessionId", "sessionId is required")
	}
	if input.ResponseTimeMs < 0 {
		fieldErrors.add("responseTimeMs", "responseTimeMs must not be negative")
	}
	if input.ResponseTimeMs > maxResponseTimeMs {
		fieldErrors.add("responseTimeMs", "responseTimeMs is out of range")
	}
	if len(fieldErrors) > 0 {
		return persistence.TreatmentSession{}, &ValidationError{Fields: fieldErrors}
	}

	session, err := s.repo.RecordResponse(ctx, input.SessionID, input.UsedAssistedPath, input.ResponseTimeMs)
	if err != nil {
		return persistence.TreatmentSession{}, s.mapTreatmentError(err)
	}
	return session, nil
}

func (s *service) mapCoachingError(err error) error {
	if errors.Is(err, persistence.ErrCoachingSessionNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("coaching session persistence: %w", err)
}

func (s *service) mapTreatmentError(err error) error {
	if errors.Is(err, persistence.ErrTreatmentSessionNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("treatment session persistence: %w", err)
}

func (f FieldErrors) add(field, message string) {
	f[field] = append(f[field], message)
}
