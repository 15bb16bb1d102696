package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/featureflags"
	"github.com/yourorg/credvault/internal/handler"
	"github.com/yourorg/credvault/internal/infrastructure/redis"
	"github.com/yourorg/credvault/internal/observability/metrics"
	"github.com/yourorg/credvault/internal/observability/tracing"
	"github.com/yourorg/credvault/internal/repository"
	"github.com/yourorg/credvault/internal/security"
	"github.com/yourorg/credvault/internal/security/auth"
	"github.com/yourorg/credvault/internal/security/cipher"
	"github.com/yourorg/credvault/internal/security/middleware"
	"github.com/yourorg/credvault/internal/security/ratelimit"
	"github.com/yourorg/credvault/internal/service"
	"github.com/yourorg/credvault/internal/worker"
	"github.com/yourorg/credvault/pkg/config"
	"github.com/yourorg/credvault/pkg/database"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting credvault server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize tracing
	shutdownTracing, err := tracing.Init(ctx, log, "credvault", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Initialize storage
	var (
		users       domain.UserRepository
		groups      domain.GroupRepository
		credentials domain.CredentialRepository
		checks      []handler.ReadinessCheck
	)
	switch cfg.Storage {
	case "postgres":
		pool, err := database.NewConnectionPool(ctx, &database.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Database: cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		}, log)
		if err != nil {
			log.Error("failed to connect to database", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()

		users = repository.NewPostgresUserRepository(pool.GetDB(), log)
		groups = repository.NewPostgresGroupRepository(pool.GetDB(), log)
		credentials = repository.NewPostgresCredentialRepository(pool.GetDB(), log)
		checks = append(checks, handler.ReadinessCheck{Name: "database", Check: pool.Health})
	case "memory":
		log.Warn("using in-memory storage, all data is lost on restart")
		memGroups := repository.NewMemoryGroupRepository()
		users = repository.NewMemoryUserRepository()
		groups = memGroups
		credentials = repository.NewMemoryCredentialRepository(memGroups)
	}

	// 5. Initialize the scope cache: Redis when configured, in-process
	// otherwise.
	memoryScopes := service.NewMemoryScopeCache()
	var scopes service.ScopeCache = memoryScopes
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		scopes = service.NewRedisScopeCache(redisClient, log)
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: redisClient.Ping})
	} else {
		janitor := worker.NewCacheJanitor(memoryScopes, log, time.Minute)
		go janitor.Start(ctx)
	}

	// 6. Initialize the secret codec
	var codec cipher.SecretCodec = cipher.PlaintextCodec{}
	if featureflags.Enabled("encrypt_at_rest") {
		key, err := hex.DecodeString(cfg.EncryptionKey)
		if err != nil {
			log.Error("ENCRYPTION_KEY is not valid hex", slog.String("error", err.Error()))
			os.Exit(1)
		}
		codec, err = cipher.NewAESGCMCodec(key)
		if err != nil {
			log.Error("failed to initialize secret codec", slog.String("error", err.Error()))
			os.Exit(1)
		}
		log.Info("secret encryption at rest enabled")
	}

	// 7. Initialize security components and services
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "credvault", time.Duration(cfg.TokenTTLMinutes)*time.Minute)
	engine := security.NewEngine(log)
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)

	authService := service.NewAuthService(users, tokenManager, cfg.BcryptCost, log)
	directoryService := service.NewDirectoryService(groups, engine, scopes, log)
	credentialService := service.NewCredentialService(credentials, engine, codec, log)
	membershipService := service.NewMembershipService(users, groups, engine, scopes, log)

	// 8. Initialize handlers
	authHandler := handler.NewAuthHandler(authService, log)
	divisionsHandler := handler.NewDivisionsHandler(directoryService, log)
	credentialsHandler := handler.NewCredentialsHandler(credentialService, log)
	adminHandler := handler.NewAdminHandler(membershipService, directoryService, log)
	healthHandler := handler.NewHealthHandler(log, checks...)

	// 9. Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/divisions", divisionsHandler.List)
	mux.HandleFunc("GET /api/credentials/{divisionID}", credentialsHandler.List)
	mux.HandleFunc("POST /api/credentials", credentialsHandler.Create)
	mux.HandleFunc("PUT /api/credentials/{id}", credentialsHandler.Update)
	mux.HandleFunc("GET /api/admin/users", adminHandler.ListUsers)
	mux.HandleFunc("PUT /api/admin/users/{id}/role", adminHandler.SetRole)
	mux.HandleFunc("POST /api/admin/users/{id}/divisions", adminHandler.AddDivision)
	mux.HandleFunc("DELETE /api/admin/users/{id}/divisions/{divisionID}", adminHandler.RemoveDivision)
	mux.HandleFunc("POST /api/admin/users/{id}/units", adminHandler.AddUnit)
	mux.HandleFunc("DELETE /api/admin/users/{id}/units/{unitID}", adminHandler.RemoveUnit)
	mux.HandleFunc("GET /api/admin/units", adminHandler.ListUnits)
	mux.HandleFunc("POST /api/admin/units", adminHandler.CreateUnit)
	mux.HandleFunc("POST /api/admin/divisions", adminHandler.CreateDivision)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", healthHandler.Live)
	mux.HandleFunc("GET /readyz", healthHandler.Ready)

	if featureflags.Enabled("seed") {
		seedService := service.NewSeedService(users, groups, cfg.BcryptCost, log)
		mux.Handle("POST /api/seed", handler.NewSeedHandler(seedService, log))
		log.Warn("seed endpoint enabled")
	}

	// CORS middleware honoring configured origins
	handlerWithCORS := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(cfg.CORSAllowedOrigins, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else if len(cfg.CORSAllowedOrigins) > 0 {
			w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowedOrigins[0])
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		mux.ServeHTTP(w, r)
	})

	// Chain middleware: request ID -> metrics -> tracing -> content type -> principal -> rate limit -> CORS.
	// The principal must resolve before the rate limiter so it can key buckets by user ID.
	rootHandler := withRequestID(
		metrics.HTTPMetricsMiddleware(
			otelhttp.NewHandler(
				middleware.ValidateJSONContentType(log)(
					middleware.PrincipalMiddleware(tokenManager, users, log)(
						middleware.RateLimitMiddleware(rateLimiter, log)(handlerWithCORS),
					),
				),
				"credvault",
			),
		),
		log,
	)

	// 10. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("storage", cfg.Storage),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.String("rate_limit_window", "1m"),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	rateLimiter.Stop()
	log.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

type requestIDKey struct{}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := generateRequestID()
		w.Header().Set("X-Request-ID", reqID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration_ms", time.Since(start)),
		)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
