package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const CoachingSessionsTable = "coaching_sessions"

// Coaching session statuses. Lifecycle: scheduled -> completed | cancelled.
const (
	CoachingStatusScheduled = "scheduled"
	CoachingStatusCompleted = "completed"
	CoachingStatusCancelled = "cancelled"
)

// CoachingSession represents a scheduled meeting between a coach and client.
type CoachingSession struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	TenantID        *uuid.UUID `db:"tenant_id" json:"tenantId,omitempty"`
	CoachID         uuid.UUID  `db:"coach_id" json:"coachId"`
	ClientID        uuid.UUID  `db:"client_id" json:"clientId"`
	Status          string     `db:"status" json:"status"`
	ScheduledAt     time.Time  `db:"scheduled_at" json:"scheduledAt"`
	DurationMinutes int        `db:"duration_minutes" json:"durationMinutes"`
	MeetingType     string     `db:"meeting_type" json:"meetingType"`
	MeetingLink     *string    `db:"meeting_link" json:"meetingLink,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

// ErrCoachingSessionNotFound indicates a missing coaching session record.
var ErrCoachingSessionNotFound = errors.New("coaching session not found")

// CoachingSessionStore exposes persistence helpers for coaching sessions.
type CoachingSessionStore struct {
	pool *pgxpool.Pool
}

// NewCoachingSessionStore returns a store bound to the shared pool.
func NewCoachingSessionStore(pool *pgxpool.Pool) (*CoachingSessionStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &CoachingSessionStore{pool: pool}, nil
}

// CreateCoachingSessionParams captures the fields required to schedule a session.
type CreateCoachingSessionParams struct {
	TenantID        *uuid.UUID
	CoachID         uuid.UUID
	ClientID        uuid.UUID
	ScheduledAt     time.Time
	DurationMinutes int
	MeetingType     string
	MeetingLink     *string
}

// CreateCoachingSession inserts a new scheduled session.
func (s *CoachingSessionStore) CreateCoachingSession(ctx context.Context, params CreateCoachingSessionParams) (CoachingSession, error) {
	if params.CoachID == uuid.Nil || params.ClientID == uuid.Nil {
		return CoachingSession{}, errors.New("coach and client ids are required")
	}

	duration := params.DurationMinutes
	if duration <= 0 {
		duration = 60
	}
	meetingType := params.MeetingType
	if meetingType == "" {
		meetingType = "video"
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, tenant_id, coach_id, client_id, scheduled_at, duration_minutes, meeting_type, meeting_link)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, tenant_id, coach_id, client_id, status, scheduled_at,
                  duration_minutes, meeting_type, meeting_link, created_at, updated_at
    `, CoachingSessionsTable),
		uuid.New(), params.TenantID, params.CoachID, params.ClientID,
		params.ScheduledAt.UTC(), duration, meetingType, params.MeetingLink,
	)

	session, err := scanCoachingSession(row)
	if err != nil {
		return CoachingSession{}, fmt.Errorf("create coaching session: %w", err)
	}
	return session, nil
}

// GetCoachingSession returns a single session by identifier.
func (s *CoachingSessionStore) GetCoachingSession(ctx context.Context, id uuid.UUID) (CoachingSession, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT id, tenant_id, coach_id, client_id, status, scheduled_at,
               duration_minutes, meeting_type, meeting_link, created_at, updated_at
        FROM %s WHERE id = $1
    `, CoachingSessionsTable), id)

	session, err := scanCoachingSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CoachingSession{}, ErrCoachingSessionNotFound
		}
		return CoachingSession{}, err
	}
	return session, nil
}

// TransitionCoachingSession moves a scheduled session to a terminal status.
// Sessions already in a terminal status are left untouched and reported as
// not found, matching the zero-rows no-op contract.
func (s *CoachingSessionStore) TransitionCoachingSession(ctx context.Context, id uuid.UUID, status string) (CoachingSession, error) {
	if status != CoachingStatusCompleted && status != CoachingStatusCancelled {
		return CoachingSession{}, fmt.Errorf("invalid target status %q", status)
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET status = $1, updated_at = NOW()
        WHERE id = $2 AND status = $3
        RETURNING id, tenant_id, coach_id, client_id, status, scheduled_at,
                  duration_minutes, meeting_type, meeting_link, created_at, updated_at
    `, CoachingSessionsTable), status, id, CoachingStatusScheduled)

	session, err := scanCoachingSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CoachingSession{}, ErrCoachingSessionNotFound
		}
		return CoachingSession{}, err
	}
	return session, nil
}

// ListCoachingSessionsParams filters ListCoachingSessions.
type ListCoachingSessionsParams struct {
	UserID   uuid.UUID // matches either coach or client
	TenantID *uuid.UUID
	Limit    int
}

// ListCoachingSessions returns sessions visible to the user, newest first.
func (s *CoachingSessionStore) ListCoachingSessions(ctx context.Context, params ListCoachingSessionsParams) ([]CoachingSession, error) {
	limit := params.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := fmt.Sprintf(`
        SELECT id, tenant_id, coach_id, client_id, status, scheduled_at,
               duration_minutes, meeting_type, meeting_link, created_at, updated_at
        FROM %s
        WHERE (coach_id = $1 OR client_id = $1`, CoachingSessionsTable)
	args := []any{params.UserID}
	if params.TenantID != nil {
		args = append(args, *params.TenantID)
		query += fmt.Sprintf(" OR tenant_id = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(") ORDER BY scheduled_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list coaching sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]CoachingSession, 0)
	for rows.Next() {
		session, scanErr := scanCoachingSession(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan coaching session: %w", scanErr)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coaching sessions: %w", err)
	}

	return sessions, nil
}

// CoachingStats aggregates coaching sessions for one user scope.
type CoachingStats struct {
	Total            int
	Upcoming         int
	Completed        int
	Cancelled        int
	MinutesThisMonth int
}

// SessionStatsFilter scopes both session aggregations. Since is the
// effective lower bound (the later of the lookback window start and the
// user's stats watermark); MonthStart/MonthEnd bound the current calendar
// month for duration sums.
type SessionStatsFilter struct {
	UserID     uuid.UUID
	TenantID   *uuid.UUID
	SuperAdmin bool
	Since      time.Time
	MonthStart time.Time
	MonthEnd   time.Time
}

// AggregateCoachingStats computes the coaching-side counters in one query.
func (s *CoachingSessionStore) AggregateCoachingStats(ctx context.Context, filter SessionStatsFilter) (CoachingStats, error) {
	// Bind only the parameters the visibility branch references; Postgres
	// rejects a statement whose bound params include a never-used $n.
	args := []any{filter.Since.UTC(), filter.MonthStart.UTC(), filter.MonthEnd.UTC()}
	visibility := "TRUE"
	if !filter.SuperAdmin {
		args = append(args, filter.UserID)
		visibility = "(coach_id = $4 OR client_id = $4)"
		if filter.TenantID != nil {
			args = append(args, *filter.TenantID)
			visibility = "(coach_id = $4 OR client_id = $4 OR tenant_id = $5)"
		}
	}

	query := fmt.Sprintf(`
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status = '%s'),
               COUNT(*) FILTER (WHERE status = '%s'),
               COUNT(*) FILTER (WHERE status = '%s'),
               COALESCE(SUM(duration_minutes) FILTER (
                   WHERE status = '%s' AND scheduled_at >= $2 AND scheduled_at < $3
               ), 0)
        FROM %s
        WHERE created_at >= $1 AND %s
    `, CoachingStatusScheduled, CoachingStatusCompleted, CoachingStatusCancelled,
		CoachingStatusCompleted, CoachingSessionsTable, visibility)

	var stats CoachingStats
	if err := s.pool.QueryRow(ctx, query, args...).Scan(
		&stats.Total, &stats.Upcoming, &stats.Completed, &stats.Cancelled, &stats.MinutesThisMonth,
	); err != nil {
		return CoachingStats{}, fmt.Errorf("aggregate coaching stats: %w", err)
	}

	return stats, nil
}

func scanCoachingSession(row pgx.Row) (CoachingSession, error) {
	var session CoachingSession
	if err := row.Scan(
		&session.ID, &session.TenantID, &session.CoachID, &session.ClientID,
		&session.Status, &session.ScheduledAt, &session.DurationMinutes,
		&session.MeetingType, &session.MeetingLink, &session.CreatedAt, &session.UpdatedAt,
	); err != nil {
		return CoachingSession{}, err
	}
	return session, nil
}
