package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const AuthUsersTable = "auth_users"

// AuthUser mirrors the hosted auth provider's user record. The provisioner
// reads this table instead of reaching into the provider's private schema.
type AuthUser struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Email            string     `db:"email" json:"email"`
	EmailConfirmedAt *time.Time `db:"email_confirmed_at" json:"emailConfirmedAt,omitempty"`
	RawMetadata      []byte     `db:"raw_metadata" json:"rawMetadata"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
}

// AuthUserStore exposes persistence helpers for the auth_users mirror table.
type AuthUserStore struct {
	pool *pgxpool.Pool
}

// NewAuthUserStore returns a store bound to the shared pool.
func NewAuthUserStore(pool *pgxpool.Pool) (*AuthUserStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &AuthUserStore{pool: pool}, nil
}

// UpsertAuthUser records or refreshes the mirror entry for an auth user.
func (s *AuthUserStore) UpsertAuthUser(ctx context.Context, user AuthUser) error {
	if user.ID == uuid.Nil {
		return errors.New("auth user id is required")
	}

	metadata := user.RawMetadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, email, email_confirmed_at, raw_metadata)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO UPDATE SET
            email = EXCLUDED.email,
            email_confirmed_at = EXCLUDED.email_confirmed_at,
            raw_metadata = EXCLUDED.raw_metadata
    `, AuthUsersTable), user.ID, strings.TrimSpace(user.Email), user.EmailConfirmedAt, metadata)
	if err != nil {
		return fmt.Errorf("upsert auth user: %w", err)
	}
	return nil
}

// CountConfirmedExcluding counts confirmed auth users other than the given
// one. The provisioner uses a zero result as the "first user" signal.
func (s *AuthUserStore) CountConfirmedExcluding(ctx context.Context, userID uuid.UUID) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT COUNT(*) FROM %s
        WHERE email_confirmed_at IS NOT NULL AND id <> $1
    `, AuthUsersTable), userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count confirmed users: %w", err)
	}
	return total, nil
}

// ListConfirmedWithoutProfile returns confirmed auth users that have no
// profile row yet, oldest first.
func (s *AuthUserStore) ListConfirmedWithoutProfile(ctx context.Context) ([]AuthUser, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
        SELECT u.id, u.email, u.email_confirmed_at, u.raw_metadata, u.created_at
        FROM %s u
        LEFT JOIN %s p ON p.user_id = u.id
        WHERE u.email_confirmed_at IS NOT NULL AND p.user_id IS NULL
        ORDER BY u.created_at ASC
    `, AuthUsersTable, ProfilesTable))
	if err != nil {
		return nil, fmt.Errorf("list users without profile: %w", err)
	}
	defer rows.Close()

	users := make([]AuthUser, 0)
	for rows.Next() {
		var user AuthUser
		if err := rows.Scan(&user.ID, &user.Email, &user.EmailConfirmedAt, &user.RawMetadata, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan auth user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auth users: %w", err)
	}

	return users, nil
}
