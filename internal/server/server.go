package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anhbaysgalan1/potledger/internal/auth"
	"github.com/anhbaysgalan1/potledger/internal/config"
	"github.com/anhbaysgalan1/potledger/internal/database"
	"github.com/anhbaysgalan1/potledger/internal/engine/repositories"
	"github.com/anhbaysgalan1/potledger/internal/handlers"
	custommiddleware "github.com/anhbaysgalan1/potledger/internal/middleware"
	"github.com/anhbaysgalan1/potledger/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
)

type LedgerServer struct {
	config          *config.Config
	db              *database.DB
	redisClient     *redis.Client
	jwtManager      *auth.JWTManager
	authMiddleware  *auth.AuthMiddleware
	authService     *services.AuthService
	sessionService  *services.SessionService
	apiRateLimiter  *custommiddleware.RateLimiter
	authRateLimiter *custommiddleware.RateLimiter
	server          *http.Server
}

func NewLedgerServer() (*LedgerServer, error) {
	// Load configuration
	cfg := config.Load()

	// Setup database
	db, err := database.NewConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run migrations
	if err := db.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Setup Redis for settlement caching
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		redisOpts.Password = cfg.RedisPassword
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	// Setup JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, "potledger")
	authMiddleware := auth.NewAuthMiddleware(jwtManager)

	// Setup services
	authService := services.NewAuthService(db, jwtManager)
	sessionStore := repositories.NewSessionRepository(db)
	settlementCache := repositories.NewSettlementCache(redisClient)
	sessionService := services.NewSessionService(sessionStore, settlementCache)

	// Setup rate limiters
	apiRateLimiter := custommiddleware.NewAPIRateLimiter()
	authRateLimiter := custommiddleware.NewAuthRateLimiter()

	return &LedgerServer{
		config:          cfg,
		db:              db,
		redisClient:     redisClient,
		jwtManager:      jwtManager,
		authMiddleware:  authMiddleware,
		authService:     authService,
		sessionService:  sessionService,
		apiRateLimiter:  apiRateLimiter,
		authRateLimiter: authRateLimiter,
	}, nil
}

func (s *LedgerServer) Start() error {
	// Setup router
	router := s.setupRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:    ":" + s.config.Port,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Starting potledger server", "port", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	return s.Shutdown()
}

func (s *LedgerServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// Close database connection
	if err := s.db.Close(); err != nil {
		slog.Error("Failed to close database connection", "error", err)
	}

	// Close Redis connection
	if err := s.redisClient.Close(); err != nil {
		slog.Error("Failed to close Redis connection", "error", err)
	}

	// Close rate limiters
	s.apiRateLimiter.Close()
	s.authRateLimiter.Close()

	slog.Info("Server shutdown complete")
	return nil
}

func (s *LedgerServer) setupRouter() chi.Router {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(auth.SecurityHeaders)
	r.Use(s.apiRateLimiter.RateLimit) // Apply global rate limiting

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure properly for production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		authHandler := handlers.NewAuthHandler(s.authService)

		// Public auth routes with stricter rate limiting
		r.Group(func(r chi.Router) {
			r.Use(s.authRateLimiter.RateLimit)
			r.Mount("/auth", authHandler.Routes())
		})

		// Protected routes group
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware.RequireAuth)

			r.Mount("/user", authHandler.ProtectedRoutes())

			sessionHandler := handlers.NewSessionHandler(s.sessionService, s.authService)
			r.Mount("/sessions", sessionHandler.Routes())
		})
	})

	return r
}
