package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calmhaven/calmhaven-backend/domains/provisioning/be/repo"
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
	ErrNotFound = errors.New("profile not found")
	ErrConflict = errors.New("profile conflict")
)

const auditActionProvisioned = "profile.provisioned"

// Profile represents the domain view of a provisioned profile.
type Profile struct {
	UserID    uuid.UUID
	TenantID  *uuid.UUID
	Email     string
	FirstName string
	LastName  string
	Role      string
	IsActive  bool
	Settings  json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProvisionInput is the payload for a single profile provisioning call,
// typically assembled from a "user confirmed" event or a login-time
// fallback.
type ProvisionInput struct {
	UserID   uuid.UUID
	Email    string
	Metadata map[string]any
}

// ProvisionMissingResult summarizes a bulk remediation pass.
type ProvisionMissingResult struct {
	Created int
	Skipped int
}

// Config carries the tenant defaults applied when the first confirmed user
// is promoted.
type Config struct {
	DefaultTenantSlug string
	DefaultTenantName string
	TrialPeriod       time.Duration
}

// Service defines the business operations for the provisioning domain.
type Service interface {
	Provision(ctx context.Context, audit requesttrace.AuditInfo, input ProvisionInput) (Profile, error)
	ProvisionMissing(ctx context.Context, audit requesttrace.AuditInfo) (ProvisionMissingResult, error)
	UpdateSettings(ctx context.Context, audit requesttrace.AuditInfo, userID uuid.UUID, settings json.RawMessage) (Profile, error)
	GetAuditTrail(ctx context.Context, audit requesttrace.AuditInfo, userID uuid.UUID, limit int) ([]persistence.AuditLogEntry, error)
}

type service struct {
	repo     repo.Repository
	cfg      Config
	settings *persistence.SettingsValidator
	logger   *zap.Logger
}

// New constructs a provisioning Service backed by the provided repository.
func New(r repo.Repository, cfg Config, logger *zap.Logger) Service {
	if r == nil {
		panic("provisioning repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTenantSlug == "" {
		cfg.DefaultTenantSlug = "default"
	}
	if cfg.DefaultTenantName == "" {
		cfg.DefaultTenantName = "Default Organization"
	}
	if cfg.TrialPeriod <= 0 {
		cfg.TrialPeriod = 14 * 24 * time.Hour
	}
	validator, err := persistence.NewSettingsValidator()
	if err != nil {
		panic(fmt.Sprintf("compile settings schema: %v", err))
	}
	return &service{repo: r, cfg: cfg, settings: validator, logger: logger}
}

// Provision ensures an idempotent profile exists for the user. The first
// confirmed user becomes super_admin and anchors the default tenant; every
// later user gets the standard role with no tenant. Re-invocations refresh
// only email and name fields.
func (s *service) Provision(ctx context.Context, audit requesttrace.AuditInfo, input ProvisionInput) (Profile, error) {
	fieldErrors := FieldErrors{}

	if input.UserID == uuid.Nil {
		fieldErrors.add("userId", "userId is required")
	}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		fieldErrors.add("email", "email is required")
	} else if !strings.Contains(email, "@") {
		fieldErrors.add("email", "email must contain '@'")
	}
	if len(fieldErrors) > 0 {
		return Profile{}, &ValidationError{Fields: fieldErrors}
	}

	others, err := s.repo.CountConfirmedExcluding(ctx, input.UserID)
	if err != nil {
		return Profile{}, fmt.Errorf("count confirmed users: %w", err)
	}

	role := persistence.RoleUser
	var tenantID *uuid.UUID
	if others == 0 {
		role = persistence.RoleSuperAdmin

		trialEnds := time.Now().UTC().Add(s.cfg.TrialPeriod)
		tenant, err := s.repo.EnsureTenant(ctx, persistence.EnsureTenantParams{
			Slug:        s.cfg.DefaultTenantSlug,
			Name:        s.cfg.DefaultTenantName,
			TrialEndsAt: &trialEnds,
		})
		if err != nil {
			return Profile{}, fmt.Errorf("ensure default tenant: %w", err)
		}
		tenantID = &tenant.ID
	}

	firstName, lastName := splitNameMetadata(input.Metadata)

	record, inserted, err := s.repo.UpsertProfile(ctx, persistence.UpsertProfileParams{
		UserID:    input.UserID,
		TenantID:  tenantID,
		Email:     strings.ToLower(email),
		FirstName: firstName,
		LastName:  lastName,
		Role:      role,
	})
	if err != nil {
		return Profile{}, mapPersistenceError(err)
	}

	// The audit entry is written once, when the promotion actually happens.
	// Idempotent re-invocations hit the update path and skip it.
	if inserted && record.Role == persistence.RoleSuperAdmin {
		roleStr := string(record.Role)
		reason := "first confirmed user promoted to super_admin"
		if err := s.repo.AppendAudit(ctx, persistence.AuditLogEntry{
			UserID: record.UserID,
			Action: auditActionProvisioned,
			Role:   &roleStr,
			Reason: &reason,
		}); err != nil {
			return Profile{}, fmt.Errorf("append audit log: %w", err)
		}
	}

	return mapProfile(record), nil
}

// ProvisionMissing repairs confirmed users that have no profile row.
// Per-row failures are logged and counted, never propagated: a partial
// failure leaves already-fixed rows fixed.
func (s *service) ProvisionMissing(ctx context.Context, audit requesttrace.AuditInfo) (ProvisionMissingResult, error) {
	users, err := s.repo.ListConfirmedWithoutProfile(ctx)
	if err != nil {
		return ProvisionMissingResult{}, fmt.Errorf("list users without profile: %w", err)
	}

	result := ProvisionMissingResult{}
	for _, user := range users {
		created, err := s.repo.InsertProfileIfAbsent(ctx, persistence.UpsertProfileParams{
			UserID: user.ID,
			Email:  strings.ToLower(strings.TrimSpace(user.Email)),
			Role:   persistence.RoleUser,
		})
		if err != nil {
			s.logger.Warn("skip profile repair",
				zap.String("user_id", user.ID.String()),
				zap.Error(err),
			)
			result.Skipped++
			continue
		}
		if created {
			result.Created++
		} else {
			result.Skipped++
		}
	}

	return result, nil
}

// UpdateSettings replaces the user's settings document after checking it
// against the settings schema.
func (s *service) UpdateSettings(ctx context.Context, audit requesttrace.AuditInfo, userID uuid.UUID, settings json.RawMessage) (Profile, error) {
	fieldErrors := FieldErrors{}

	if userID == uuid.Nil {
		fieldErrors.add("userId", "userId is required")
	}
	if err := s.settings.Validate(settings); err != nil {
		fieldErrors.add("settings", err.Error())
	}
	if len(fieldErrors) > 0 {
		return Profile{}, &ValidationError{Fields: fieldErrors}
	}

	record, err := s.repo.UpdateSettings(ctx, userID, settings)
	if err != nil {
		return Profile{}, mapPersistenceError(err)
	}

	return mapProfile(record), nil
}

// GetAuditTrail returns provisioning audit entries for one user, newest
// first. The profile must exist so a typo'd id reads as NotFound instead
// of an empty trail.
func (s *service) GetAuditTrail(ctx context.Context, audit requesttrace.AuditInfo, userID uuid.UUID, limit int) ([]persistence.AuditLogEntry, error) {
	if userID == uuid.Nil {
		return nil, &ValidationError{Fields: FieldErrors{"userId": {"userId is required"}}}
	}

	if _, err := s.repo.GetProfile(ctx, userID); err != nil {
		return nil, mapPersistenceError(err)
	}

	entries, err := s.repo.ListAudit(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit trail: %w", err)
	}

	return entries, nil
}

// splitNameMetadata pulls name fields out of the raw auth metadata. The
// hosted provider sends either first_name/last_name or a single full_name.
func splitNameMetadata(metadata map[string]any) (string, string) {
	first := stringField(metadata, "first_name")
	last := stringField(metadata, "last_name")
	if first != "" || last != "" {
		return first, last
	}

	full := stringField(metadata, "full_name")
	if full == "" {
		full = stringField(metadata, "name")
	}
	if full == "" {
		return "", ""
	}

	parts := strings.Fields(full)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func stringField(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if v, ok := metadata[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func mapProfile(record persistence.Profile) Profile {
	return Profile{
		UserID:    record.UserID,
		TenantID:  record.TenantID,
		Email:     record.Email,
		FirstName: record.FirstName,
		LastName:  record.LastName,
		Role:      string(record.Role),
		IsActive:  record.IsActive,
		Settings:  record.Settings,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrProfileNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrProfileConflict):
		return ErrConflict
	default:
		return err
	}
}

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}
