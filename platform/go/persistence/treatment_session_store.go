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

const TreatmentSessionsTable = "treatment_sessions"

// Treatment session statuses. Lifecycle: active <-> paused -> completed.
const (
	TreatmentStatusActive    = "active"
	TreatmentStatusPaused    = "paused"
	TreatmentStatusCompleted = "completed"
)

// TreatmentSession is a long-lived interactive session with running response
// counters and an incrementally maintained average response time.
type TreatmentSession struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	TenantID          *uuid.UUID `db:"tenant_id" json:"tenantId,omitempty"`
	UserID            uuid.UUID  `db:"user_id" json:"userId"`
	Status            string     `db:"status" json:"status"`
	ScriptedResponses int        `db:"scripted_responses" json:"scriptedResponses"`
	AIResponses       int        `db:"ai_responses" json:"aiResponses"`
	AvgResponseTimeMs float64    `db:"avg_response_time_ms" json:"avgResponseTimeMs"`
	DurationMinutes   int        `db:"duration_minutes" json:"durationMinutes"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

// ErrTreatmentSessionNotFound indicates a missing treatment session record.
var ErrTreatmentSessionNotFound = errors.New("treatment session not found")

// TreatmentSessionStore exposes persistence helpers for treatment sessions.
type TreatmentSessionStore struct {
	pool *pgxpool.Pool
}

// NewTreatmentSessionStore returns a store bound to the shared pool.
func NewTreatmentSessionStore(pool *pgxpool.Pool) (*TreatmentSessionStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TreatmentSessionStore{pool: pool}, nil
}

// StartTreatmentSession inserts a new active session for the user.
func (s *TreatmentSessionStore) StartTreatmentSession(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) (TreatmentSession, error) {
	if userID == uuid.Nil {
		return TreatmentSession{}, errors.New("user id is required")
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, tenant_id, user_id)
        VALUES ($1, $2, $3)
        RETURNING id, tenant_id, user_id, status, scripted_responses, ai_responses,
                  avg_response_time_ms, duration_minutes, created_at, updated_at
    `, TreatmentSessionsTable), uuid.New(), tenantID, userID)

	session, err := scanTreatmentSession(row)
	if err != nil {
		return TreatmentSession{}, fmt.Errorf("start treatment session: %w", err)
	}
	return session, nil
}

// GetTreatmentSession returns a single session by identifier.
func (s *TreatmentSessionStore) GetTreatmentSession(ctx context.Context, id uuid.UUID) (TreatmentSession, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT id, tenant_id, user_id, status, scripted_responses, ai_responses,
               avg_response_time_ms, duration_minutes, created_at, updated_at
        FROM %s WHERE id = $1
    `, TreatmentSessionsTable), id)

	session, err := scanTreatmentSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TreatmentSession{}, ErrTreatmentSessionNotFound
		}
		return TreatmentSession{}, err
	}
	return session, nil
}

// SetTreatmentStatus transitions the session status. Completion also stamps
// the accumulated duration from the session's age.
func (s *TreatmentSessionStore) SetTreatmentStatus(ctx context.Context, id uuid.UUID, status string) (TreatmentSession, error) {
	switch status {
	case TreatmentStatusActive, TreatmentStatusPaused, TreatmentStatusCompleted:
	default:
		return TreatmentSession{}, fmt.Errorf("invalid target status %q", status)
	}

	durationExpr := "duration_minutes"
	if status == TreatmentStatusCompleted {
		durationExpr = "GREATEST(duration_minutes, CEIL(EXTRACT(EPOCH FROM (NOW() - created_at)) / 60)::int)"
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET status = $1, duration_minutes = %s, updated_at = NOW()
        WHERE id = $2 AND status <> '%s'
        RETURNING id, tenant_id, user_id, status, scripted_responses, ai_responses,
                  avg_response_time_ms, duration_minutes, created_at, updated_at
    `, TreatmentSessionsTable, durationExpr, TreatmentStatusCompleted), status, id)

	session, err := scanTreatmentSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TreatmentSession{}, ErrTreatmentSessionNotFound
		}
		return TreatmentSession{}, err
	}
	return session, nil
}

// RecordResponse applies one response sample as a single atomic
// read-modify-write. The UPDATE references the pre-update counters, so the
// incremental mean uses the count before this response is added:
//
//	new_avg = (old_avg*old_count + sample) / (old_count + 1)
//
// Row-level atomicity in Postgres prevents lost updates under concurrent
// calls for the same session; no application-level locking is needed.
func (s *TreatmentSessionStore) RecordResponse(ctx context.Context, id uuid.UUID, usedAssistedPath bool, responseTimeMs float64) (TreatmentSession, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET ai_responses = ai_responses + CASE WHEN $2 THEN 1 ELSE 0 END,
            scripted_responses = scripted_responses + CASE WHEN $2 THEN 0 ELSE 1 END,
            avg_response_time_ms = (avg_response_time_ms * (ai_responses + scripted_responses) + $3)
                                   / (ai_responses + scripted_responses + 1),
            updated_at = NOW()
        WHERE id = $1
        RETURNING id, tenant_id, user_id, status, scripted_responses, ai_responses,
                  avg_response_time_ms, duration_minutes, created_at, updated_at
    `, TreatmentSessionsTable), id, usedAssistedPath, responseTimeMs)

	session, err := scanTreatmentSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TreatmentSession{}, ErrTreatmentSessionNotFound
		}
		return TreatmentSession{}, fmt.Errorf("record response: %w", err)
	}
	return session, nil
}

// TreatmentStats aggregates treatment sessions for one user scope.
type TreatmentStats struct {
	Total            int
	Active           int
	Completed        int
	MinutesThisMonth int
}

// AggregateTreatmentStats computes the treatment-side counters in one query.
func (s *TreatmentSessionStore) AggregateTreatmentStats(ctx context.Context, filter SessionStatsFilter) (TreatmentStats, error) {
	// Bind only the parameters the visibility branch references; Postgres
	// rejects a statement whose bound params include a never-used $n.
	args := []any{filter.Since.UTC(), filter.MonthStart.UTC(), filter.MonthEnd.UTC()}
	visibility := "TRUE"
	if !filter.SuperAdmin {
		args = append(args, filter.UserID)
		visibility = "user_id = $4"
		if filter.TenantID != nil {
			args = append(args, *filter.TenantID)
			visibility = "(user_id = $4 OR tenant_id = $5)"
		}
	}

	query := fmt.Sprintf(`
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status IN ('%s', '%s')),
               COUNT(*) FILTER (WHERE status = '%s'),
               COALESCE(SUM(duration_minutes) FILTER (
                   WHERE status = '%s' AND updated_at >= $2 AND updated_at < $3
               ), 0)
        FROM %s
        WHERE created_at >= $1 AND %s
    `, TreatmentStatusActive, TreatmentStatusPaused, TreatmentStatusCompleted,
		TreatmentStatusCompleted, TreatmentSessionsTable, visibility)

	var stats TreatmentStats
	if err := s.pool.QueryRow(ctx, query, args...).Scan(
		&stats.Total, &stats.Active, &stats.Completed, &stats.MinutesThisMonth,
	); err != nil {
		return TreatmentStats{}, fmt.Errorf("aggregate treatment stats: %w", err)
	}

	return stats, nil
}

func scanTreatmentSession(row pgx.Row) (TreatmentSession, error) {
	var session TreatmentSession
	if err := row.Scan(
		&session.ID, &session.TenantID, &session.UserID, &session.Status,
		&session.ScriptedResponses, &session.AIResponses, &session.AvgResponseTimeMs,
		&session.DurationMinutes, &session.CreatedAt, &session.UpdatedAt,
	); err != nil {
		return TreatmentSession{}, err
	}
	return session, nil
}
