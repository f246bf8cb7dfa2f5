// Package bootstrap groups operator commands that prepare or repair the
// platform database.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	communityrepo "github.com/calmhaven/calmhaven-backend/domains/community/be/repo"
	communityservice "github.com/calmhaven/calmhaven-backend/domains/community/be/service"
	provisioningrepo "github.com/calmhaven/calmhaven-backend/domains/provisioning/be/repo"
	provisioningservice "github.com/calmhaven/calmhaven-backend/domains/provisioning/be/service"
	platformlogging "github.com/calmhaven/calmhaven-backend/platform/go/logging"
	"github.com/calmhaven/calmhaven-backend/platform/go/persistence"
	"github.com/calmhaven/calmhaven-backend/platform/go/requesttrace"
)

// Command groups the bootstrap subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap and repair platform resources",
		Long:  "Apply the core schema, create profiles for confirmed users that lack one, and reconcile denormalized counters.",
	}

	cmd.AddCommand(schemaCommand())
	cmd.AddCommand(seedUserCommand())
	cmd.AddCommand(provisionMissingCommand())
	cmd.AddCommand(reconcileCommentsCommand())
	return cmd
}

func databaseURLFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string (defaults to DATABASE_URL)")
}

func schemaCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "schema",
		Short: "Apply the core database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			if err := persistence.ApplyCoreSchema(ctx, pool); err != nil {
				return fmt.Errorf("apply core schema: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "core schema applied")
			return nil
		},
	}

	databaseURLFlag(c, &databaseURL)
	return c
}

func seedUserCommand() *cobra.Command {
	var (
		databaseURL string
		userID      string
		email       string
		firstName   string
		lastName    string
		unconfirmed bool
		tenantSlug  string
		tenantName  string
	)

	c := &cobra.Command{
		Use:   "seed-user",
		Short: "Mirror an auth user and provision its profile",
		Long:  "Writes the auth_users mirror row and runs the provisioning flow for it, the same path a confirmation webhook takes. Meant for local and CI databases.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			id, err := uuid.Parse(userID)
			if err != nil {
				return fmt.Errorf("parse user id: %w", err)
			}

			logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli-bootstrap"})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			profileStore, err := persistence.NewProfileStore(pool)
			if err != nil {
				return fmt.Errorf("init profile store: %w", err)
			}
			tenantStore, err := persistence.NewTenantStore(pool)
			if err != nil {
				return fmt.Errorf("init tenant store: %w", err)
			}
			authUserStore, err := persistence.NewAuthUserStore(pool)
			if err != nil {
				return fmt.Errorf("init auth user store: %w", err)
			}
			auditStore, err := persistence.NewAuditLogStore(pool)
			if err != nil {
				return fmt.Errorf("init audit log store: %w", err)
			}

			user := persistence.AuthUser{ID: id, Email: email}
			if !unconfirmed {
				now := time.Now().UTC()
				user.EmailConfirmedAt = &now
			}
			if err := authUserStore.UpsertAuthUser(ctx, user); err != nil {
				return fmt.Errorf("mirror auth user: %w", err)
			}

			if unconfirmed {
				fmt.Fprintln(cmd.OutOrStdout(), "auth user mirrored; profile skipped (unconfirmed)")
				return nil
			}

			repository := provisioningrepo.NewPostgresRepository(profileStore, tenantStore, authUserStore, auditStore)
			svc := provisioningservice.New(repository, provisioningservice.Config{
				DefaultTenantSlug: tenantSlug,
				DefaultTenantName: tenantName,
			}, logger)

			profile, err := svc.Provision(ctx, requesttrace.System("cli-bootstrap"), provisioningservice.ProvisionInput{
				UserID: id,
				Email:  email,
				Metadata: map[string]any{
					"first_name": firstName,
					"last_name":  lastName,
				},
			})
			if err != nil {
				return fmt.Errorf("provision profile: %w", err)
			}

			if profile.TenantID != nil {
				tenant, err := tenantStore.GetTenant(ctx, *profile.TenantID)
				if err != nil {
					return fmt.Errorf("load tenant: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "profile %s role=%s tenant=%s\n", profile.UserID, profile.Role, tenant.Slug)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "profile %s role=%s\n", profile.UserID, profile.Role)
			return nil
		},
	}

	databaseURLFlag(c, &databaseURL)
	c.Flags().StringVar(&userID, "user-id", "", "auth user id (UUID)")
	c.Flags().StringVar(&email, "email", "", "user email")
	c.Flags().StringVar(&firstName, "first-name", "", "first name")
	c.Flags().StringVar(&lastName, "last-name", "", "last name")
	c.Flags().BoolVar(&unconfirmed, "unconfirmed", false, "mirror the user without a confirmation timestamp")
	c.Flags().StringVar(&tenantSlug, "tenant-slug", "default", "slug for the default tenant")
	c.Flags().StringVar(&tenantName, "tenant-name", "Default Organization", "display name for the default tenant")
	_ = c.MarkFlagRequired("user-id")
	_ = c.MarkFlagRequired("email")
	return c
}

func provisionMissingCommand() *cobra.Command {
	var (
		databaseURL string
		tenantSlug  string
		tenantName  string
	)

	c := &cobra.Command{
		Use:   "provision-missing",
		Short: "Create profiles for confirmed users that lack one",
		Long:  "Best-effort repair pass: every confirmed user without a profile gets one with the standard role. Failed rows are skipped and reported.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli-bootstrap"})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			profileStore, err := persistence.NewProfileStore(pool)
			if err != nil {
				return fmt.Errorf("init profile store: %w", err)
			}
			tenantStore, err := persistence.NewTenantStore(pool)
			if err != nil {
				return fmt.Errorf("init tenant store: %w", err)
			}
			authUserStore, err := persistence.NewAuthUserStore(pool)
			if err != nil {
				return fmt.Errorf("init auth user store: %w", err)
			}
			auditStore, err := persistence.NewAuditLogStore(pool)
			if err != nil {
				return fmt.Errorf("init audit log store: %w", err)
			}

			repository := provisioningrepo.NewPostgresRepository(profileStore, tenantStore, authUserStore, auditStore)
			svc := provisioningservice.New(repository, provisioningservice.Config{
				DefaultTenantSlug: tenantSlug,
				DefaultTenantName: tenantName,
			}, logger)

			result, err := svc.ProvisionMissing(ctx, requesttrace.System("cli-bootstrap"))
			if err != nil {
				return fmt.Errorf("provision missing profiles: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created=%d skipped=%d\n", result.Created, result.Skipped)
			return nil
		},
	}

	databaseURLFlag(c, &databaseURL)
	c.Flags().StringVar(&tenantSlug, "tenant-slug", "default", "slug for the default tenant")
	c.Flags().StringVar(&tenantName, "tenant-name", "Default Organization", "display name for the default tenant")
	return c
}

func reconcileCommentsCommand() *cobra.Command {
	var databaseURL string

	c := &cobra.Command{
		Use:   "reconcile-comments",
		Short: "Recompute denormalized comment counters",
		Long:  "Recomputes comment_count on posts and reply_count on comments from the live comment rows. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			logger, err := platformlogging.NewLogger(platformlogging.Config{Component: "cli-bootstrap"})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			communityStore, err := persistence.NewCommunityStore(pool)
			if err != nil {
				return fmt.Errorf("init community store: %w", err)
			}

			svc := communityservice.New(communityrepo.NewPostgresRepository(communityStore), logger)

			repaired, err := svc.ReconcileCommentCounts(ctx, requesttrace.System("cli-bootstrap"))
			if err != nil {
				return fmt.Errorf("reconcile comment counters: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "rows repaired=%d\n", repaired)
			return nil
		},
	}

	databaseURLFlag(c, &databaseURL)
	return c
}
