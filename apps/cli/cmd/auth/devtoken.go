package auth

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/calmhaven/calmhaven-backend/platform/go/auth/devtoken"
)

func devTokenCommand() *cobra.Command {
	var params devtoken.Params
	var secret string

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Generate a signed JWT for dev/local use",
		Long:  "Generates an HS256 token accepted by the API server when AUTH_PROVIDER=dev with the same secret.",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := devtoken.BuildDevToken(params, secret, time.Now().UTC())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&params.UserID, "user-id", "", "sub/user_id claim")
	cmd.Flags().StringVar(&params.Email, "email", "", "email claim")
	cmd.Flags().StringVar(&params.Name, "name", "", "display name")
	cmd.Flags().BoolVar(&params.EmailVerified, "email-verified", true, "email_verified claim")
	cmd.Flags().StringVar(&params.Role, "role", "user", "platform role claim")
	cmd.Flags().StringVar(&params.TenantID, "tenant-id", "", "tenant_id claim")
	cmd.Flags().DurationVar(&params.ExpiresIn, "expires-in", time.Hour, "token lifetime (e.g. 30m, 2h)")
	cmd.Flags().StringVar(&params.Issuer, "issuer", "", "override iss claim")
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("DEV_TOKEN_SECRET"), "HS256 signing secret (defaults to DEV_TOKEN_SECRET)")

	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
