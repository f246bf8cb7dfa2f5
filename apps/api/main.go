package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/calmhaven/calmhaven-backend/contracts"
	communityhandler "github.com/calmhaven/calmhaven-backend/domains/community/be/handler"
	communityrepo "github.com/calmhaven/calmhaven-backend/domains/community/be/repo"
	communityservice "github.com/calmhaven/calmhaven-backend/domains/community/be/service"
	provisioninghandler "github.com/calmhaven/calmhaven-backend/domains/provisioning/be/handler"
	provisioningrepo "github.com/calmhaven/calmhaven-backend/domains/provisioning/be/repo"
	provisioningservice "github.com/calmhaven/calmhaven-backend/domains/provisioning/be/service"
	sessionshandler "github.com/calmhaven/calmhaven-backend/domains/sessions/be/handler"
	sessionsrepo "github.com/calmhaven/calmhaven-backend/domains/sessions/be/repo"
	sessionsservice "github.com/calmhaven/calmhaven-backend/domains/sessions/be/service"
	statshandler "github.com/calmhaven/calmhaven-backend/domains/stats/be/handler"
	statsrepo "github.com/calmhaven/calmhaven-backend/domains/stats/be/repo"
	statsservice "github.com/calmhaven/calmhaven-backend/domains/stats/be/service"
	platformlogging "github.com/calmhaven/calmhaven-backend/platform/go/logging"
	platformmiddleware "github.com/calmhaven/calmhaven-backend/platform/go/middleware"
	"github.com/calmhaven/calmhaven-backend/platform/go/persistence"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	ApplySchema     bool          `env:"APPLY_SCHEMA" envDefault:"false"`
	AuthProvider    string        `env:"AUTH_PROVIDER" envDefault:"firebase"`
	FirebaseCreds   string        `env:"FIREBASE_CREDENTIALS_FILE"`
	DevTokenSecret  string        `env:"DEV_TOKEN_SECRET"`
	TenantSlug      string        `env:"DEFAULT_TENANT_SLUG" envDefault:"default"`
	TenantName      string        `env:"DEFAULT_TENANT_NAME" envDefault:"Default Organization"`
}

func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if cfg.ApplySchema {
		if err := persistence.ApplyCoreSchema(ctx, pool); err != nil {
			logger.Fatal("apply core schema", zap.Error(err))
		}
	}

	profileStore, err := persistence.NewProfileStore(pool)
	if err != nil {
		logger.Fatal("init profile store", zap.Error(err))
	}
	tenantStore, err := persistence.NewTenantStore(pool)
	if err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}
	authUserStore, err := persistence.NewAuthUserStore(pool)
	if err != nil {
		logger.Fatal("init auth user store", zap.Error(err))
	}
	auditStore, err := persistence.NewAuditLogStore(pool)
	if err != nil {
		logger.Fatal("init audit log store", zap.Error(err))
	}
	coachingStore, err := persistence.NewCoachingSessionStore(pool)
	if err != nil {
		logger.Fatal("init coaching session store", zap.Error(err))
	}
	treatmentStore, err := persistence.NewTreatmentSessionStore(pool)
	if err != nil {
		logger.Fatal("init treatment session store", zap.Error(err))
	}
	communityStore, err := persistence.NewCommunityStore(pool)
	if err != nil {
		logger.Fatal("init community store", zap.Error(err))
	}

	provisioningRepo := provisioningrepo.NewPostgresRepository(profileStore, tenantStore, authUserStore, auditStore)
	provisioningService := provisioningservice.New(provisioningRepo, provisioningservice.Config{
		DefaultTenantSlug: cfg.TenantSlug,
		DefaultTenantName: cfg.TenantName,
	}, logger)
	provisioningHTTPHandler := provisioninghandler.New(provisioningService, logger)

	statsRepo := statsrepo.NewPostgresRepository(profileStore, coachingStore, treatmentStore)
	statsService := statsservice.New(statsRepo, logger)
	statsHTTPHandler := statshandler.New(statsService, logger)

	sessionsRepo := sessionsrepo.NewPostgresRepository(coachingStore, treatmentStore)
	sessionsService := sessionsservice.New(sessionsRepo, logger)
	sessionsHTTPHandler := sessionshandler.New(sessionsService, logger)

	communityRepo := communityrepo.NewPostgresRepository(communityStore)
	communityService := communityservice.New(communityRepo, logger)
	communityHTTPHandler := communityhandler.New(communityService, logger)

	authMiddleware := buildAuthMiddleware(ctx, cfg, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))
	rootRouter.Use(platformmiddleware.Metrics)

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", promhttp.Handler())

	registerDocsRoutes(rootRouter, logger)

	apiRouter := chi.NewRouter()
	apiRouter.Use(authMiddleware)
	apiRouter.Use(platformmiddleware.RequestTrace)

	apiRouter.Route("/provisioning", func(r chi.Router) {
		r.Use(mustNewSpecValidator(logger, "provisioning"))
		provisioningHTTPHandler.Routes(r)
	})
	apiRouter.Route("/stats", func(r chi.Router) {
		r.Use(mustNewSpecValidator(logger, "stats"))
		statsHTTPHandler.Routes(r)
	})
	apiRouter.Route("/sessions", func(r chi.Router) {
		r.Use(mustNewSpecValidator(logger, "sessions"))
		sessionsHTTPHandler.Routes(r)
	})
	apiRouter.Route("/community", func(r chi.Router) {
		r.Use(mustNewSpecValidator(logger, "community"))
		communityHTTPHandler.Routes(r)
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// mustNewSpecValidator builds request-validation middleware from an
// embedded contract. Validation runs after auth so the middleware only
// checks shape, not identity.
func mustNewSpecValidator(logger *zap.Logger, name string) func(http.Handler) http.Handler {
	doc, err := contracts.Load(name)
	if err != nil {
		logger.Fatal("load contract", zap.String("contract", name), zap.Error(err))
	}

	return oapimiddleware.OapiRequestValidatorWithOptions(doc, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: platformmiddleware.ValidateAuthenticationViaContract,
		},
		SilenceServersWarning: true,
	})
}
