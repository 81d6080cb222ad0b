package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/quill/internal/auth"
	"github.com/BradenHooton/quill/internal/background"
	"github.com/BradenHooton/quill/internal/cache"
	"github.com/BradenHooton/quill/internal/config"
	"github.com/BradenHooton/quill/internal/database"
	"github.com/BradenHooton/quill/internal/handlers"
	"github.com/BradenHooton/quill/internal/metrics"
	middlewareCustom "github.com/BradenHooton/quill/internal/middleware"
	"github.com/BradenHooton/quill/internal/models"
	"github.com/BradenHooton/quill/internal/repositories"
	"github.com/BradenHooton/quill/internal/routes"
	"github.com/BradenHooton/quill/internal/services"
	pkgauth "github.com/BradenHooton/quill/pkg/auth"
	pkghttp "github.com/BradenHooton/quill/pkg/http"
	pkglogger "github.com/BradenHooton/quill/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := pkglogger.New(os.Stdout, os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = pkglogger.New(os.Stdout, cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(migrateCtx)
		cancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Cache is optional; without it sessions are read from the database and
	// the shared login throttle is disabled.
	var sessionCache cache.Cache = cache.Nop{}
	healthChecks := map[string]handlers.Pinger{"database": db}
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(context.Background(), &cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", slog.Any("error", err))
		} else {
			defer client.Close()
			sessionCache = cache.NewRedisCache(client, "quill:")
			healthChecks["cache"] = handlers.PingFunc(func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			})
		}
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	roleRepo := repositories.NewRoleRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	blacklistRepo := repositories.NewTokenBlacklistRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	auditLogRepo := repositories.NewAuditLogRepository(db)

	// Session tokens
	sessionManager := auth.NewSessionManager(sessionRepo, blacklistRepo, auth.SessionConfig{
		TTL:          cfg.Auth.SessionTTL,
		StoreTimeout: cfg.Auth.StoreTimeout,
	}, logger, auth.WithSessionCache(sessionCache))
	gate := auth.NewGate(sessionManager, userRepo)

	hasher, err := pkgauth.NewPasswordHasher(cfg.Auth.BcryptCost)
	if err != nil {
		logger.Error("failed to initialize password hasher", slog.Any("error", err))
		os.Exit(1)
	}

	// Timing delay for auth security
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   cfg.Auth.TimingDelayBase,
		RandomDelay: cfg.Auth.TimingDelayJitter,
	})

	throttle := services.NewLoginThrottle(sessionCache, cfg.Auth.LoginThrottleLimit, cfg.Auth.LoginThrottleWindow, logger)

	var notifier services.PasswordResetNotifier
	if cfg.Email.Provider == "ses" {
		sesCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		notifier, err = services.NewAWSSESEmailService(sesCtx, cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Email.ResetURL, logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		notifier = services.NewLogEmailService(logger)
	}

	// Initialize services
	auditService := services.NewAuditService(auditLogRepo, pkglogger.NewAuditLogger(logger), logger)
	authService := services.NewAuthService(services.AuthServiceDeps{
		Users:    userRepo,
		Roles:    roleRepo,
		Attempts: loginAttemptRepo,
		Sessions: sessionManager,
		Tx:       db,
		Hasher:   hasher,
		Throttle: throttle,
		Timing:   timingDelay,
		Notifier: notifier,
		Audit:    auditService,
	}, services.AuthConfig{
		SessionTTL:       cfg.Auth.SessionTTL,
		PasswordResetTTL: cfg.Auth.PasswordResetTTL,
		LockoutThreshold: cfg.Auth.LockoutThreshold,
		LockoutDuration:  cfg.Auth.LockoutDuration,
	}, logger)
	userService := services.NewUserService(userRepo, auditService, logger)
	adminService := services.NewAdminService(userRepo, roleRepo, sessionManager, db, auditService, logger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, ipConfig, logger)
	userHandler := handlers.NewUserHandler(userService, adminService, ipConfig, logger)
	auditHandler := handlers.NewAuditHandler(auditService, logger)
	healthHandler := handlers.NewHealthHandler(healthChecks, logger)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, cfg.Admin, db, userRepo, roleRepo, hasher, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.CORSConfig{AllowedOrigins: cfg.Server.AllowedOrigins}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(metrics.Middleware)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	routes.RegisterRoutes(router, routes.Handlers{
		Auth:   authHandler,
		Users:  userHandler,
		Audit:  auditHandler,
		Health: healthHandler,
	}, gate, middlewareCustom.RateLimitConfig{
		Requests: cfg.Auth.RouteRateLimit,
		Window:   cfg.Auth.RouteRateWindow,
	}, logger)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(sessionManager, logger, cfg.Auth.CleanupInterval,
		background.Retention{Name: "login_attempts", MaxAge: cfg.Auth.AttemptRetention, Pruner: loginAttemptRepo},
		background.Retention{Name: "audit_logs", MaxAge: cfg.Auth.AuditRetention, Pruner: auditLogRepo},
	)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupManager.Stop()
	cleanupCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(
	ctx context.Context,
	cfg config.AdminConfig,
	db *database.DB,
	userRepo *repositories.UserRepository,
	roleRepo *repositories.RoleRepository,
	hasher *pkgauth.PasswordHasher,
	logger *slog.Logger,
) error {
	if cfg.Email == "" || cfg.Password == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	email := strings.ToLower(strings.TrimSpace(cfg.Email))

	// Check if admin already exists
	_, err := userRepo.GetByEmail(ctx, email)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(cfg.Password); err != nil {
		return fmt.Errorf("ADMIN_PASSWORD rejected: %w", err)
	}

	hashedPassword, err := hasher.Hash(cfg.Password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	return db.WithTransaction(ctx, func(ctx context.Context) error {
		admin, err := userRepo.Create(ctx, &models.User{
			Username:      cfg.Username,
			Email:         email,
			PasswordHash:  hashedPassword,
			IsActive:      true,
			EmailVerified: true,
		})
		if err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}

		for _, name := range []string{models.RoleAdmin, models.RoleReader} {
			role, err := roleRepo.GetByName(ctx, name)
			if err != nil {
				return fmt.Errorf("failed to load role %s: %w", name, err)
			}
			if err := roleRepo.AssignToUser(ctx, admin.ID, role.ID); err != nil {
				return fmt.Errorf("failed to assign role %s: %w", name, err)
			}
		}

		logger.Info("admin user created successfully", slog.String("user_id", admin.ID))
		return nil
	})
}
