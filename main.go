package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chitbox-dev/chitfund-portal/config"
	"github.com/chitbox-dev/chitfund-portal/monitoring"
	"github.com/chitbox-dev/chitfund-portal/shared/audit"
	sharedredis "github.com/chitbox-dev/chitfund-portal/shared/redis"
	"github.com/chitbox-dev/chitfund-portal/shared/utils"
	"github.com/chitbox-dev/chitfund-portal/storage"
	v1 "github.com/chitbox-dev/chitfund-portal/v1"
	v1handlers "github.com/chitbox-dev/chitfund-portal/v1/handlers"
	v1middleware "github.com/chitbox-dev/chitfund-portal/v1/middleware"
	v1models "github.com/chitbox-dev/chitfund-portal/v1/models"
	v1services "github.com/chitbox-dev/chitfund-portal/v1/services"
	authutils "github.com/chitbox-dev/chitfund-portal/v1/utils"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	// Load .env file if it exists (optional - fails silently if not found)
	_ = godotenv.Load()

	cfg, err := config.Load(utils.GetEnvOrDefault("PORTAL_CONFIG_FILE", ""))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     utils.ParseLogLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	if err := cfg.ValidateSecrets(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting Chit Fund Portal initialization")

	gormDB, err := v1.ConnectGormDB(cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to GORM database", "error", err)
		os.Exit(1)
	}

	catalog, err := config.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		slog.Error("Failed to load catalog", "path", cfg.Catalog.Path, "error", err)
		os.Exit(1)
	}

	blobs, err := storage.NewOsBlobStore(cfg.Storage.DocumentsDir)
	if err != nil {
		slog.Error("Failed to initialize document storage", "dir", cfg.Storage.DocumentsDir, "error", err)
		os.Exit(1)
	}

	// Redis is optional; without it scores are not cached, logins are not
	// throttled and outbox events are only logged
	var (
		redisClient  *sharedredis.RedisClient
		scoreCache   v1services.ScoreCache
		loginLimiter v1middleware.RateLimiter
		publisher    v1services.EventPublisher = v1services.LogPublisher{}
	)
	if cfg.Redis.Enabled {
		redisClient, err = sharedredis.NewClient(&sharedredis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			slog.Error("Failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		scoreCache = redisClient
		loginLimiter = redisClient
		publisher = v1services.NewRedisStreamPublisher(redisClient, cfg.Redis.EventStream)
		slog.Info("Redis connected", "addr", cfg.Redis.Addr, "stream", cfg.Redis.EventStream)
	}

	// Audit events go to the remote audit service when configured, otherwise
	// to the portal database where the audit log endpoint can read them
	var auditLogs v1handlers.AuditLogLister
	if cfg.Audit.ServiceURL != "" {
		v1middleware.SetAuditor(audit.NewClient(cfg.Audit.ServiceURL))
	} else {
		dbAuditor := audit.NewDatabaseAuditor(gormDB)
		auditLogs = dbAuditor
		v1middleware.SetAuditor(dbAuditor)
	}

	tokens := authutils.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	v1Handler := v1handlers.NewV1Handler(gormDB, v1handlers.Options{
		Catalog:      catalog,
		Tokens:       tokens,
		Blobs:        blobs,
		ScoreCache:   scoreCache,
		AuditLogs:    auditLogs,
		Auth:         cfg.Auth,
		Storage:      cfg.Storage,
		ScoreTTL:     cfg.Redis.CacheTTL,
		LoginLimiter: loginLimiter,
		RateLimit:    cfg.RateLimit,
	})

	apiMux := http.NewServeMux()
	v1Handler.SetupV1Routes(apiMux)

	authMode, ok := v1models.ParseAuthorizationMode(cfg.Authorization.Mode)
	if !ok {
		slog.Error("Invalid authorization mode. Valid options: fail_closed, fail_open_admin, fail_open_admin_system", "mode", cfg.Authorization.Mode)
		os.Exit(1)
	}
	authorizationMiddleware := v1middleware.NewAuthorizationMiddlewareWithConfig(v1middleware.AuthorizationConfig{
		Mode:       authMode,
		StrictMode: cfg.Authorization.Strict,
	})
	jwtAuthMiddleware := v1middleware.NewJWTAuthMiddleware(tokens, cfg.Auth.CookieName)
	corsMiddleware := v1middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins)
	trustedProxies, err := authutils.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		slog.Error("Invalid server.trusted_proxies", "error", err)
		os.Exit(1)
	}

	// Apply middleware chain (Client IP -> CORS -> JWT Auth -> Authorization) to the API mux
	protectedAPIHandler := v1middleware.ClientIP(trustedProxies)(
		corsMiddleware(
			jwtAuthMiddleware.AuthenticateJWT(
				authorizationMiddleware.AuthorizeRequest(apiMux),
			),
		),
	)

	topLevelMux := http.NewServeMux()
	topLevelMux.Handle("/health", utils.PanicRecoveryMiddleware(healthHandler(gormDB, redisClient)))
	topLevelMux.Handle("/metrics", monitoring.Handler())
	topLevelMux.Handle("/api/v1/", protectedAPIHandler)

	monitoring.RegisterRoutes(v1handlers.RouteTemplates())

	addr := ":" + cfg.Server.Port
	server := &http.Server{
		Addr:         addr,
		Handler:      monitoring.HTTPMetricsMiddleware(topLevelMux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Chit Fund Portal starting", "port", cfg.Server.Port, "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Worker.Enabled {
		worker := v1services.NewOutboxWorker(gormDB, publisher, cfg.Worker.PollInterval, cfg.Worker.BatchSize)
		g.Go(func() error {
			worker.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down Chit Fund Portal...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Chit Fund Portal stopped with error", "error", err)
	}

	v1middleware.FlushAuditor()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Error("Failed to close Redis connection", "error", err)
		}
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}

	slog.Info("Chit Fund Portal exited")
}

// healthHandler reports database and redis connectivity
func healthHandler(db *gorm.DB, redisClient *sharedredis.RedisClient) http.Handler {
	type dependencyHealth struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}
	type healthStatus struct {
		Status       string                      `json:"status"`
		Service      string                      `json:"service"`
		Dependencies map[string]dependencyHealth `json:"dependencies"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := healthStatus{
			Status:       "healthy",
			Service:      "chitfund-portal",
			Dependencies: map[string]dependencyHealth{},
		}

		if sqlDB, err := db.DB(); err != nil {
			status.Dependencies["database"] = dependencyHealth{Status: "unhealthy", Error: err.Error()}
		} else if err := sqlDB.PingContext(ctx); err != nil {
			status.Dependencies["database"] = dependencyHealth{Status: "unhealthy", Error: err.Error()}
		} else {
			status.Dependencies["database"] = dependencyHealth{Status: "healthy"}
		}

		if redisClient != nil {
			if err := redisClient.HealthCheck(ctx); err != nil {
				status.Dependencies["redis"] = dependencyHealth{Status: "unhealthy", Error: err.Error()}
			} else {
				status.Dependencies["redis"] = dependencyHealth{Status: "healthy"}
			}
		}

		for _, dep := range status.Dependencies {
			if dep.Status != "healthy" {
				status.Status = "unhealthy"
			}
		}

		statusCode := http.StatusOK
		if status.Status != "healthy" {
			statusCode = http.StatusServiceUnavailable
		}
		utils.RespondWithJSON(w, statusCode, status)
	})
}
