package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	platformauth "github.com/calmhaven/calmhaven-backend/platform/go/auth"
	"github.com/calmhaven/calmhaven-backend/platform/go/gcp"
)

// buildAuthMiddleware constructs the JWT middleware for the configured
// provider. Requests without a token pass through anonymously; handlers
// that need an identity reject them.
func buildAuthMiddleware(ctx context.Context, cfg config, logger *zap.Logger) func(http.Handler) http.Handler {
	var verify platformauth.VerifyFunc
	switch cfg.AuthProvider {
	case "firebase":
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx, cfg.FirebaseCreds)
		if err != nil {
			logger.Fatal("init firebase auth", zap.Error(err))
		}
		verify = platformauth.FirebaseTokenVerifier(fbAuth)
	case "dev":
		if cfg.DevTokenSecret == "" {
			logger.Fatal("DEV_TOKEN_SECRET required when AUTH_PROVIDER=dev")
		}
		logger.Warn("using dev auth middleware; do not use in production")
		verify = platformauth.DevTokenVerifier(cfg.DevTokenSecret)
	default:
		logger.Fatal("unsupported auth provider", zap.String("provider", cfg.AuthProvider))
	}

	return platformauth.JWT(verify, platformauth.DefaultCredentialExtractor)
}
