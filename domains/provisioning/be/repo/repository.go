package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/calmhaven/calmhaven-backend/platform/go/persistence"
)

// Repository defines the persistence operations required by the
// provisioning service.
type Repository interface {
	CountConfirmedExcluding(ctx context.Context, userID uuid.UUID) (int, error)
	ListConfirmedWithoutProfile(ctx context.Context) ([]persistence.AuthUser, error)
	EnsureTenant(ctx context.Context, params persistence.EnsureTenantParams) (persistence.Tenant, error)
	UpsertProfile(ctx context.Context, params persistence.UpsertProfileParams) (persistence.Profile, bool, error)
	InsertProfileIfAbsent(ctx context.Context, params persistence.UpsertProfileParams) (bool, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (persistence.Profile, error)
	UpdateSettings(ctx context.Context, userID uuid.UUID, settings []byte) (persistence.Profile, error)
	AppendAudit(ctx context.Context, entry persistence.AuditLogEntry) error
	ListAudit(ctx context.Context, userID uuid.UUID, limit int) ([]persistence.AuditLogEntry, error)
}

type postgresRepository struct {
	profiles  *persistence.ProfileStore
	tenants   *persistence.TenantStore
	authUsers *persistence.AuthUserStore
	audit     *persistence.AuditLogStore
}

// NewPostgresRepository constructs a repository backed by the shared
// persistence layer.
func NewPostgresRepository(
	profiles *persistence.ProfileStore,
	tenants *persistence.TenantStore,
	authUsers *persistence.AuthUserStore,
	audit *persistence.AuditLogStore,
) Repository {
	if profiles == nil || tenants == nil || authUsers == nil || audit == nil {
		panic("provisioning repository requires all stores")
	}
	return &postgresRepository{
		profiles:  profiles,
		tenants:   tenants,
		authUsers: authUsers,
		audit:     audit,
	}
}

func (r *postgresRepository) CountConfirmedExcluding(ctx context.Context, userID uuid.UUID) (int, error) {
	return r.authUsers.CountConfirmedExcluding(ctx, userID)
}

func (r *postgresRepository) ListConfirmedWithoutProfile(ctx context.Context) ([]persistence.AuthUser, error) {
	return r.authUsers.ListConfirmedWithoutProfile(ctx)
}

func (r *postgresRepository) EnsureTenant(ctx context.Context, params persistence.EnsureTenantParams) (persistence.Tenant, error) {
	return r.tenants.EnsureTenant(ctx, params)
}

func (r *postgresRepository) UpsertProfile(ctx context.Context, params persistence.UpsertProfileParams) (persistence.Profile, bool, error) {
	return r.profiles.UpsertProfile(ctx, params)
}

func (r *postgresRepository) InsertProfileIfAbsent(ctx context.Context, params persistence.UpsertProfileParams) (bool, error) {
	return r.profiles.InsertProfileIfAbsent(ctx, params)
}

func (r *postgresRepository) GetProfile(ctx context.Context, userID uuid.UUID) (persistence.Profile, error) {
	return r.profiles.GetProfile(ctx, userID)
}

func (r *postgresRepository) UpdateSettings(ctx context.Context, userID uuid.UUID, settings []byte) (persistence.Profile, error) {
	return r.profiles.UpdateSettings(ctx, userID, settings)
}

func (r *postgresRepository) AppendAudit(ctx context.Context, entry persistence.AuditLogEntry) error {
	return r.audit.Append(ctx, entry)
}

func (r *postgresRepository) ListAudit(ctx context.Context, userID uuid.UUID, limit int) ([]persistence.AuditLogEntry, error) {
	return r.audit.ListForUser(ctx, userID, limit)
}
