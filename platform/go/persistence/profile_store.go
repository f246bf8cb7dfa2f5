package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ProfilesTable = "profiles"

// Role enumerates the platform roles carried on a profile.
type Role string

const (
	RoleUser        Role = "user"
	RoleCoach       Role = "coach"
	RoleManager     Role = "manager"
	RoleTenantAdmin Role = "tenant_admin"
	RoleSuperAdmin  Role = "super_admin"
)

// ValidRole reports whether the value is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleCoach, RoleManager, RoleTenantAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Profile represents a row in the profiles table. There is exactly one
// profile per auth user id.
type Profile struct {
	UserID         uuid.UUID  `db:"user_id" json:"userId"`
	TenantID       *uuid.UUID `db:"tenant_id" json:"tenantId,omitempty"`
	Email          string     `db:"email" json:"email"`
	FirstName      string     `db:"first_name" json:"firstName"`
	LastName       string     `db:"last_name" json:"lastName"`
	Role           Role       `db:"role" json:"role"`
	IsActive       bool       `db:"is_active" json:"isActive"`
	Settings       []byte     `db:"settings" json:"settings"`
	StatsClearedAt *time.Time `db:"stats_cleared_at" json:"statsClearedAt,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

var (
	// ErrProfileNotFound indicates a missing profile record.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileConflict indicates a uniqueness violation on the profile row.
	ErrProfileConflict = errors.New("profile conflict")
)

// ProfileStore exposes persistence helpers for the profiles table.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore returns a store bound to the shared pool.
func NewProfileStore(pool *pgxpool.Pool) (*ProfileStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &ProfileStore{pool: pool}, nil
}

// UpsertProfileParams captures the fields used by UpsertProfile. Role and
// TenantID only apply on first insert; an existing row keeps its assignment.
type UpsertProfileParams struct {
	UserID    uuid.UUID
	TenantID  *uuid.UUID
	Email     string
	FirstName string
	LastName  string
	Role      Role
}

// UpsertProfile inserts the profile or, when the row already exists, updates
// only the email and name fields. The second return value reports whether a
// new row was inserted.
func (s *ProfileStore) UpsertProfile(ctx context.Context, params UpsertProfileParams) (Profile, bool, error) {
	if params.UserID == uuid.Nil {
		return Profile{}, false, errors.New("user id is required")
	}
	if !ValidRole(params.Role) {
		return Profile{}, false, fmt.Errorf("invalid role %q", params.Role)
	}

	// xmax = 0 only holds for freshly inserted rows, which distinguishes the
	// insert path from the conflict-update path in a single round trip.
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (user_id, tenant_id, email, first_name, last_name, role)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id) DO UPDATE SET
            email = EXCLUDED.email,
            first_name = EXCLUDED.first_name,
            last_name = EXCLUDED.last_name,
            updated_at = NOW()
        RETURNING user_id, tenant_id, email, first_name, last_name, role,
                  is_active, settings, stats_cleared_at, created_at, updated_at,
                  (xmax = 0) AS inserted
    `, ProfilesTable),
		params.UserID,
		params.TenantID,
		strings.TrimSpace(params.Email),
		strings.TrimSpace(params.FirstName),
		strings.TrimSpace(params.LastName),
		params.Role,
	)

	var profile Profile
	var inserted bool
	if err := row.Scan(
		&profile.UserID, &profile.TenantID, &profile.Email, &profile.FirstName,
		&profile.LastName, &profile.Role, &profile.IsActive, &profile.Settings,
		&profile.StatsClearedAt, &profile.CreatedAt, &profile.UpdatedAt, &inserted,
	); err != nil {
		if isUniqueViolation(err) {
			return Profile{}, false, ErrProfileConflict
		}
		return Profile{}, false, fmt.Errorf("upsert profile: %w", err)
	}

	return profile, inserted, nil
}

// InsertProfileIfAbsent inserts a minimal profile, doing nothing when one
// already exists. It reports whether a row was created.
func (s *ProfileStore) InsertProfileIfAbsent(ctx context.Context, params UpsertProfileParams) (bool, error) {
	if params.UserID == uuid.Nil {
		return false, errors.New("user id is required")
	}
	if !ValidRole(params.Role) {
		return false, fmt.Errorf("invalid role %q", params.Role)
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (user_id, tenant_id, email, first_name, last_name, role)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id) DO NOTHING
    `, ProfilesTable),
		params.UserID,
		params.TenantID,
		strings.TrimSpace(params.Email),
		strings.TrimSpace(params.FirstName),
		strings.TrimSpace(params.LastName),
		params.Role,
	)
	if err != nil {
		return false, fmt.Errorf("insert profile: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// GetProfile returns a single profile by user identifier.
func (s *ProfileStore) GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT user_id, tenant_id, email, first_name, last_name, role,
               is_active, settings, stats_cleared_at, created_at, updated_at
        FROM %s WHERE user_id = $1
    `, ProfilesTable), userID)

	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, err
	}

	return profile, nil
}

// UpdateSettings replaces the free-form settings document for the user.
func (s *ProfileStore) UpdateSettings(ctx context.Context, userID uuid.UUID, settings []byte) (Profile, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET settings = $1, updated_at = NOW()
        WHERE user_id = $2
        RETURNING user_id, tenant_id, email, first_name, last_name, role,
                  is_active, settings, stats_cleared_at, created_at, updated_at
    `, ProfilesTable), settings, userID)

	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, err
	}

	return profile, nil
}

// SetStatsClearedAt moves the user's statistics watermark. Records created
// before the watermark are excluded from aggregation without being deleted.
func (s *ProfileStore) SetStatsClearedAt(ctx context.Context, userID uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET stats_cleared_at = $1, updated_at = NOW() WHERE user_id = $2
    `, ProfilesTable), at.UTC(), userID)
	if err != nil {
		return fmt.Errorf("set stats watermark: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// CountProfiles returns the number of profile rows, optionally restricted to
// a role.
func (s *ProfileStore) CountProfiles(ctx context.Context, role *Role) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", ProfilesTable)
	args := []any{}
	if role != nil {
		query += " WHERE role = $1"
		args = append(args, *role)
	}

	var total int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return total, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var profile Profile
	if err := row.Scan(
		&profile.UserID, &profile.TenantID, &profile.Email, &profile.FirstName,
		&profile.LastName, &profile.Role, &profile.IsActive, &profile.Settings,
		&profile.StatsClearedAt, &profile.CreatedAt, &profile.UpdatedAt,
	); err != nil {
		return Profile{}, err
	}
	return profile, nil
}
