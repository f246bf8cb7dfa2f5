package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const AuditLogsTable = "audit_logs"

// AuditLogEntry is an immutable record of a provisioning action.
type AuditLogEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"userId"`
	Action    string    `db:"action" json:"action"`
	Role      *string   `db:"role" json:"role,omitempty"`
	Reason    *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// AuditLogStore exposes append/read helpers for the audit_logs table.
// Entries are never updated or deleted.
type AuditLogStore struct {
	pool *pgxpool.Pool
}

// NewAuditLogStore returns a store bound to the shared pool.
func NewAuditLogStore(pool *pgxpool.Pool) (*AuditLogStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &AuditLogStore{pool: pool}, nil
}

// Append writes one audit entry.
func (s *AuditLogStore) Append(ctx context.Context, entry AuditLogEntry) error {
	if entry.UserID == uuid.Nil {
		return errors.New("user id is required")
	}
	if entry.Action == "" {
		return errors.New("action is required")
	}

	id := entry.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, user_id, action, role, reason)
        VALUES ($1, $2, $3, $4, $5)
    `, AuditLogsTable), id, entry.UserID, entry.Action, entry.Role, entry.Reason); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}

	return nil
}

// ListForUser returns audit entries for one user, newest first.
func (s *AuditLogStore) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]AuditLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT id, user_id, action, role, reason, created_at
        FROM %s WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `, AuditLogsTable), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]AuditLogEntry, 0)
	for rows.Next() {
		var entry AuditLogEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &entry.Role, &entry.Reason, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}

	return entries, nil
}
