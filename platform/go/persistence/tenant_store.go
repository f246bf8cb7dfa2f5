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

const TenantsTable = "tenants"

// Tenant represents a row in the tenants table.
type Tenant struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	Slug               string     `db:"slug" json:"slug"`
	Name               string     `db:"name" json:"name"`
	Status             string     `db:"status" json:"status"`
	SubscriptionStatus string     `db:"subscription_status" json:"subscriptionStatus"`
	TrialEndsAt        *time.Time `db:"trial_ends_at" json:"trialEndsAt,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt"`
}

var (
	// ErrTenantNotFound indicates a missing tenant record.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrTenantConflict indicates a duplicate tenant slug.
	ErrTenantConflict = errors.New("tenant conflict")
)

// TenantStore exposes persistence helpers for the tenants table.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore returns a store bound to the shared pool.
func NewTenantStore(pool *pgxpool.Pool) (*TenantStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TenantStore{pool: pool}, nil
}

// EnsureTenantParams captures the fields used when lazily creating a tenant.
type EnsureTenantParams struct {
	Slug        string
	Name        string
	TrialEndsAt *time.Time
}

// EnsureTenant creates the tenant when missing and returns the existing row
// otherwise. The unique slug constraint is the correctness backstop for
// concurrent callers racing to create the same tenant: ON CONFLICT DO
// NOTHING loses the race silently and the follow-up lookup wins.
func (s *TenantStore) EnsureTenant(ctx context.Context, params EnsureTenantParams) (Tenant, error) {
	slug, err := NormalizeSlug(params.Slug)
	if err != nil {
		return Tenant{}, err
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		name = slug
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, slug, name, trial_ends_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (slug) DO NOTHING
        RETURNING id, slug, name, status, subscription_status, trial_ends_at, created_at, updated_at
    `, TenantsTable), uuid.New(), slug, name, params.TrialEndsAt)

	tenant, err := scanTenant(row)
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, fmt.Errorf("ensure tenant: %w", err)
	}

	return s.GetTenantBySlug(ctx, slug)
}

// GetTenant returns a single tenant by identifier.
func (s *TenantStore) GetTenant(ctx context.Context, id uuid.UUID) (Tenant, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT id, slug, name, status, subscription_status, trial_ends_at, created_at, updated_at
        FROM %s WHERE id = $1
    `, TenantsTable), id)

	tenant, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrTenantNotFound
		}
		return Tenant{}, err
	}
	return tenant, nil
}

// GetTenantBySlug returns a single tenant by its unique slug.
func (s *TenantStore) GetTenantBySlug(ctx context.Context, slug string) (Tenant, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT id, slug, name, status, subscription_status, trial_ends_at, created_at, updated_at
        FROM %s WHERE slug = $1
    `, TenantsTable), slug)

	tenant, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrTenantNotFound
		}
		return Tenant{}, err
	}
	return tenant, nil
}

func scanTenant(row pgx.Row) (Tenant, error) {
	var tenant Tenant
	if err := row.Scan(
		&tenant.ID, &tenant.Slug, &tenant.Name, &tenant.Status,
		&tenant.SubscriptionStatus, &tenant.TrialEndsAt, &tenant.CreatedAt, &tenant.UpdatedAt,
	); err != nil {
		return Tenant{}, err
	}
	return tenant, nil
}
