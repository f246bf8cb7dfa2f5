package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/calmhaven/calmhaven-backend/platform/go/persistence"
	"github.com/calmhaven/calmhaven-backend/platform/go/requesttrace"
)

type mockRepository struct {
	countFn        func(ctx context.Context, userID uuid.UUID) (int, error)
	listMissingFn  func(ctx context.Context) ([]persistence.AuthUser, error)
	ensureTenantFn func(ctx context.Context, params persistence.EnsureTenantParams) (persistence.Tenant, error)
	upsertFn       func(ctx context.Context, params persistence.UpsertProfileParams) (persistence.Profile, bool, error)
	insertAbsentFn func(ctx context.Context, params persistence.UpsertProfileParams) (bool, error)
	getFn          func(ctx context.Context, userID uuid.UUID) (persistence.Profile, error)
	settingsFn     func(ctx context.Context, userID uuid.UUID, settings []byte) (persistence.Profile, error)
	auditFn        func(ctx context.Context, entry persistence.AuditLogEntry) error
	listAuditFn    func(ctx context.Context, userID uuid.UUID, limit int) ([]persistence.AuditLogEntry, error)
}

func (m *mockRepository) CountConfirmedExcluding(ctx context.Context, userID uuid.UUID) (int, error) {
	if m.countFn == nil {
		panic("countFn not configured")
	}
	return m.countFn(ctx, userID)
}

func (m *mockRepository) ListConfirmedWithoutProfile(ctx context.Context) ([]persistence.AuthUser, error) {
	if m.listMissingFn == nil {
		panic("listMissingFn not configured")
	}
	return m.listMissingFn(ctx)
}

func (m *mockRepository) EnsureTenant(ctx context.Context, params persistence.EnsureTenantParams) (persistence.Tenant, error) {
	if m.ensureTenantFn == nil {
		panic("ensureTenantFn not configured")
	}
	return m.ensureTenantFn(ctx, params)
}

func (m *mockRepository) UpsertProfile(ctx context.Context, params persistence.UpsertProfileParams) (persistence.Profile, bool, error) {
	if m.upsertFn == nil {
		panic("upsertFn not configured")
	}
	return m.upsertFn(ctx, params)
}

func (m *mockRepository) InsertProfileIfAbsent(ctx context.Context, params persistence.UpsertProfileParams) (bool, error) {
	if m.insertAbsentFn == nil {
		panic("insertAbsentFn not configured")
	}
	return m.insertAbsentFn(ctx, params)
}

func (m *mockRepository) GetProfile(ctx context.Context, userID uuid.UUID) (persistence.Profile, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, userID)
}

func (m *mockRepository) UpdateSettings(ctx context.Context, userID uuid.UUID, settings []byte) (persistence.Profile, error) {
	if m.settingsFn == nil {
		panic("settingsFn not configured")
	}
	return m.settingsFn(ctx, userID, settings)
}

func (m *mockRepository) AppendAudit(ctx context.Context, entry persistence.AuditLogEntry) error {
	if m.auditFn == nil {
		panic("auditFn not configured")
	}
	return m.auditFn(ctx, entry)
}

func (m *mockRepository) ListAudit(ctx context.Context, userID uuid.UUID, limit int) ([]persistence.AuditLogEntry, error) {
	if m.listAuditFn == nil {
		panic("listAuditFn not configured")
	}
	return m.listAuditFn(ctx, userID, limit)
}

func profileFromParams(params persistence.UpsertProfileParams) persistence.Profile {
	now := time.Now().UTC()
	return persistence.Profile{
		UserID:    params.UserID,
		TenantID:  params.TenantID,
		Email:     params.Email,
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Role:      params.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestProvisionValidation(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, Config{}, nil)
	audit := requesttrace.Anonymous("test")

	_, err := svc.Provision(context.Background(), audit, ProvisionInput{})
	require.Error(t, err)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Contains(t, validationErr.Fields, "userId")
	require.Contains(t, validationErr.Fields, "email")
}

func TestProvisionFirstUserBecomesSuperAdmin(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	tenantID := uuid.New()
	repository := &mockRepository{}
	auditEntries := 0

	repository.countFn = func(ctx context.Context, id uuid.UUID) (int, error) {
		require.Equal(t, userID, id)
		return 0, nil
	}
	repository.ensureTenantFn = func(ctx context.Context, params persistence.EnsureTenantParams) (persistence.Tenant, error) {
		require.Equal(t, "default", params.Slug)
		require.NotNil(t, params.TrialEndsAt)
		return persistence.Tenant{ID: tenantID, Slug: params.Slug, Name: params.Name}, nil
	}
	repository.upsertFn = func(ctx context.Context, params persistence.UpsertProfileParams) (persistence.Profile, bool, error) {
		require.Equal(t, persistence.RoleSuperAdmin, params.Role)
		require.NotNil(t, params.TenantID)
		require.Equal(t, tenantID, *params.TenantID)
		require.Equal(t, "founder@example.com", params.Email)
		require.Equal(t, "Ada", params.FirstName)
		require.Equal(t, "Lovelace", params.LastName)
		return profileFromParams(params), true, nil
	}
	repository.auditFn = func(ctx context.Context, entry persistence.AuditLogEntry) error {
		auditEntries++
		require.Equal(t, userID, entry.UserID)
		require.NotNil(t, entry.Role)
		require.Equal(t, "super_admin", *entry.Role)
		return nil
	}

	svc := New(repository, Config{}, nil)
	audit := requesttrace.Anonymous("test")

	profile, err := svc.Provision(context.Background(), audit, ProvisionInput{
		UserID:   userID,
		Email:    " Founder@Example.com ",
		Metadata: map[string]any{"full_name": "Ada Lovelace"},
	})
	require.NoError(t, err)
	require.Equal(t, "super_admin", profile.Role)
	require.NotNil(t, profile.TenantID)
	require.Equal(t, 1, auditEntries)
}

func TestProvisionSecondUserGetsStandardRole(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.countFn = func(ctx context.Context, id uuid.UUID) (int, error) {
		return 1, nil
	}
	repository.upsertFn = func(ctx context.Context, params persistence.UpsertProfileParams) (persistence.Profile, bool, error) {
		require.Equal(t, persistence.RoleUser, params.Role)
		require.Nil(t, params.TenantID)
		return profileFromParams(params), true, nil
	}

	svc := New(repository, Config{}, nil)
	audit := requesttrace.Anonymous("test")

	profile, err := svc.Provision(context.Background(), audit, ProvisionInput{
		UserID: uuid.New(),
		Email:  "second@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "user", profile.Role)
	require.Nil(t, profile.TenantID)
}

func TestProvisionIdempotentSkipsAudit(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	tenantID := uuid.New()
	repository := &mockRepository{}

	repository.countFn = func(ctx context.Context, id uuid.UUID) (int, error) {
		return 0, nil
	}
	repository.ensureTenantFn = func(ctx context.Context, params persistence.EnsureTenantParams) (persistence.Tenant, error) {
		return persistence.Tenant{ID: tenantID, Slug: params.Slug}, nil
	}
	repository.upsertFn = func(ctx context.Context, params persistence.UpsertProfileParams) (persistence.Profile, bool, error) {
		// Existing row: the update path keeps the stored role/tenant and
		// reports inserted=false.
		record := profileFromParams(params)
		record.Role = persistence.RoleSuperAdmin
		record.TenantID = &tenantID
		return record, false, nil
	}
	repository.auditFn = func(ctx context.Context, entry persistence.AuditLogEntry) error {
		t.Fatal("audit must not be appended on idempotent re-invocation")
		return nil
	}

	svc := New(repository, Config{}, nil)
	audit := requesttrace.Anonymous("test")

	profile, err := svc.Provision(context.Background(), audit, ProvisionInput{
		UserID: userID,
		Email:  "founder@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "super_admin", profile.Role)
}

func TestProvisionTenantFailureAborts(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.countFn = func(ctx context.Context, id uuid.UUID) (int, error) {
		return 0, nil
	}
	repository.ensureTenantFn = func(ctx context.Context, params persistence.EnsureTenantParams) (persistence.Tenant, error) {
		return persistence.Tenant{}, errors.New("connection reset")
	}
	repository.upsertFn = func(ctx context.Context, params persistence.UpsertProfileParams) (persistence.Profile, bool, error) {
		t.Fatal("profile must not be written when tenant creation fails")
		return persistence.Profile{}, false, nil
	}

	svc := New(repository, Config{}, nil)
	audit := requesttrace.Anonymous("test")

	_, err := svc.Provision(context.Background(), audit, ProvisionInput{
		UserID: uuid.New(),
		Email:  "founder@example.com",
	})
	require.Error(t, err)
}

func TestProvisionMissingBestEffort(t *testing.T) {
	t.Parallel()

	broken := uuid.New()
	users := []persistence.AuthUser{
		{ID: uuid.New(), Email: "a@example.com"},
		{ID: broken, Email: "b@example.com"},
		{ID: uuid.New(), Email: "c@example.com"},
	}

	repository := &mockRepository{}
	repository.listMissingFn = func(ctx context.Context) ([]persistence.AuthUser, error) {
		return users, nil
	}
	repository.insertAbsentFn = func(ctx context.Context, params persistence.UpsertProfileParams) (bool, error) {
		if params.UserID == broken {
			return false, errors.New("row failure")
		}
		require.Equal(t, persistence.RoleUser, params.Role)
		return true, nil
	}

	svc := New(repository, Config{}, nil)
	audit := requesttrace.System("test")

	result, err := svc.ProvisionMissing(context.Background(), audit)
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)
	require.Equal(t, 1, result.Skipped)
}

func TestUpdateSettingsValid(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	payload := []byte(`{"timezone":"Europe/Madrid","theme":"dark","notifications":{"email":true}}`)

	repository := &mockRepository{}
	repository.settingsFn = func(ctx context.Context, gotID uuid.UUID, settings []byte) (persistence.Profile, error) {
		require.Equal(t, userID, gotID)
		require.Equal(t, payload, settings)
		return persistence.Profile{UserID: userID, Settings: settings}, nil
	}

	svc := New(repository, Config{}, nil)
	audit := requesttrace.System("test")

	profile, err := svc.UpdateSettings(context.Background(), audit, userID, payload)
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(profile.Settings))
}

func TestUpdateSettingsRejectsSchemaViolation(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, Config{}, nil)
	audit := requesttrace.System("test")

	// theme is an enum; "neon" is outside it.
	_, err := svc.UpdateSettings(context.Background(), audit, uuid.New(), []byte(`{"theme":"neon"}`))

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Fields, "settings")
}

func TestUpdateSettingsRejectsEmptyPayload(t *testing.T) {
	t.Parallel()

	svc := New(&mockRepository{}, Config{}, nil)
	audit := requesttrace.System("test")

	_, err := svc.UpdateSettings(context.Background(), audit, uuid.New(), nil)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Fields, "settings")
}

func TestGetAuditTrail(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	role := "super_admin"

	repository := &mockRepository{}
	repository.getFn = func(ctx context.Context, gotID uuid.UUID) (persistence.Profile, error) {
		require.Equal(t, userID, gotID)
		return persistence.Profile{UserID: userID}, nil
	}
	repository.listAuditFn = func(ctx context.Context, gotID uuid.UUID, limit int) ([]persistence.AuditLogEntry, error) {
		require.Equal(t, userID, gotID)
		require.Equal(t, 10, limit)
		return []persistence.AuditLogEntry{
			{UserID: userID, Action: "profile.provisioned", Role: &role},
		}, nil
	}

	svc := New(repository, Config{}, nil)
	audit := requesttrace.System("test")

	entries, err := svc.GetAuditTrail(context.Background(), audit, userID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "profile.provisioned", entries[0].Action)
}

func TestGetAuditTrailUnknownProfile(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.getFn = func(ctx context.Context, userID uuid.UUID) (persistence.Profile, error) {
		return persistence.Profile{}, persistence.ErrProfileNotFound
	}

	svc := New(repository, Config{}, nil)
	audit := requesttrace.System("test")

	_, err := svc.GetAuditTrail(context.Background(), audit, uuid.New(), 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSettingsUnknownProfile(t *testing.T) {
	t.Parallel()

	repository := &mockRepository{}
	repository.settingsFn = func(ctx context.Context, userID uuid.UUID, settings []byte) (persistence.Profile, error) {
		return persistence.Profile{}, persistence.ErrProfileNotFound
	}

	svc := New(repository, Config{}, nil)
	audit := requesttrace.System("test")

	_, err := svc.UpdateSettings(context.Background(), audit, uuid.New(), []byte(`{}`))
	require.ErrorIs(t, err, ErrNotFound)
}
