package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestProfileStoreUpsertLifecycle(t *testing.T) {
	t.Parallel()

	if testing.Short() {
		t.Skip("skipping profile store integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("calmhaven"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString})
	require.NoError(t, err)
	t.Cleanup(func() { ClosePool(pool) })

	require.NoError(t, ApplyCoreSchema(ctx, pool))

	store, err := NewProfileStore(pool)
	require.NoError(t, err)
	tenants, err := NewTenantStore(pool)
	require.NoError(t, err)

	tenant, err := tenants.EnsureTenant(ctx, EnsureTenantParams{Slug: "default", Name: "Default Organization"})
	require.NoError(t, err)
	require.Equal(t, "trialing", tenant.SubscriptionStatus)
	require.Equal(t, "active", tenant.Status)

	// Ensuring again must return the same row, not a duplicate.
	again, err := tenants.EnsureTenant(ctx, EnsureTenantParams{Slug: "default", Name: "Different Name"})
	require.NoError(t, err)
	require.Equal(t, tenant.ID, again.ID)

	userID := uuid.New()
	profile, inserted, err := store.UpsertProfile(ctx, UpsertProfileParams{
		UserID:    userID,
		TenantID:  &tenant.ID,
		Email:     "first@example.com",
		FirstName: "First",
		LastName:  "User",
		Role:      RoleSuperAdmin,
	})
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, RoleSuperAdmin, profile.Role)
	require.NotNil(t, profile.TenantID)

	// Second upsert updates identity fields only; role and tenant stay fixed.
	updated, inserted, err := store.UpsertProfile(ctx, UpsertProfileParams{
		UserID:    userID,
		TenantID:  nil,
		Email:     "renamed@example.com",
		FirstName: "Renamed",
		LastName:  "User",
		Role:      RoleUser,
	})
	require.NoError(t, err)
	require.False(t, inserted)
	require.Equal(t, "renamed@example.com", updated.Email)
	require.Equal(t, RoleSuperAdmin, updated.Role)
	require.NotNil(t, updated.TenantID)
	require.Equal(t, tenant.ID, *updated.TenantID)

	count, err := store.CountProfiles(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	created, err := store.InsertProfileIfAbsent(ctx, UpsertProfileParams{
		UserID: userID,
		Email:  "dup@example.com",
		Role:   RoleUser,
	})
	require.NoError(t, err)
	require.False(t, created)

	now := time.Now().UTC()
	require.NoError(t, store.SetStatsClearedAt(ctx, userID, now))
	fetched, err := store.GetProfile(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, fetched.StatsClearedAt)
	require.WithinDuration(t, now, *fetched.StatsClearedAt, time.Second)

	require.ErrorIs(t, store.SetStatsClearedAt(ctx, uuid.New(), now), ErrProfileNotFound)
}
