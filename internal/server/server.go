// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"biblio/internal/accesscode"
	"biblio/internal/cache"
	"biblio/internal/config"
	"biblio/internal/database"
	"biblio/internal/eventbus"
	"biblio/internal/middleware"
	"biblio/internal/models"
	"biblio/internal/notifications"
	"biblio/internal/repository"
	"biblio/internal/service"
	"biblio/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	promMiddleware *fiberprometheus.FiberPrometheus

	userRepo        repository.UserRepository
	requestRepo     repository.RequestRepository
	publicationRepo repository.PublicationRepository
	authorRepo      repository.AuthorRepository
	categoryRepo    repository.CategoryRepository

	bus            *eventbus.Bus
	codes          *accesscode.Store
	files          *storage.FileStore
	feed           *notifications.Feed
	recorder       *notifications.RecordingMailer
	requestService *service.RequestService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()
	if redisClient == nil {
		return nil, fmt.Errorf("redis connection failed: access codes need a volatile store")
	}

	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	publicationRepo := repository.NewPublicationRepository(db)
	authorRepo := repository.NewAuthorRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)

	files, err := storage.NewFileStore(cfg.FileStorageDir)
	if err != nil {
		return nil, err
	}

	catalog, err := notifications.LoadTemplates()
	if err != nil {
		return nil, err
	}

	server := &Server{
		config:          cfg,
		db:              db,
		redis:           redisClient,
		promMiddleware:  middleware.InitMetrics("biblio-api"),
		userRepo:        userRepo,
		requestRepo:     requestRepo,
		publicationRepo: publicationRepo,
		authorRepo:      authorRepo,
		categoryRepo:    categoryRepo,
		codes:           accesscode.New(redisClient, cfg.AccessCodeTTL()),
		files:           files,
		bus:             eventbus.New(),
		feed:            notifications.NewFeed(),
	}

	server.bus.OnError(func(event eventbus.Event, err error) {
		middleware.Logger.Error("event handler failed",
			"event", event.String(), "error", err.Error())
	})

	var mailer notifications.Mailer
	if cfg.IsTest() {
		server.recorder = &notifications.RecordingMailer{}
		mailer = server.recorder
	} else {
		mailer = &notifications.SMTPMailer{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.EmailFrom,
			FromName: cfg.EmailFromName,
			Enabled:  cfg.EmailEnabled,
		}
	}
	notifications.NewDispatcher(mailer, catalog, cfg.AdminEmail).Subscribe(server.bus)
	server.feed.Subscribe(server.bus)

	server.requestService = service.NewRequestService(
		requestRepo, userRepo, publicationRepo, server.codes, server.bus, cfg.BaseURL)

	return server, nil
}

// Bus exposes the event bus as the server's integration point for further
// subscribers.
func (s *Server) Bus() *eventbus.Bus {
	return s.bus
}

// SentEmails returns the recording mailer, non-nil only in the test profile.
func (s *Server) SentEmails() *notifications.RecordingMailer {
	return s.recorder
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Client-Id, X-Client-Secret, Upgrade, Connection",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	// Workflow request routes. Submission needs only client credentials so
	// anonymous visitors can apply; everything else is admin territory.
	requests := api.Group("/requests")
	requests.Post("/", s.ClientCredentialsRequired(), middleware.RateLimit(
		s.redis, 10, 10*time.Minute, "create_request"), s.CreateRequest)
	requests.Get("/", s.AuthRequired(), s.AdminRequired(), s.GetRequests)
	requests.Get("/:id", s.AuthRequired(), s.AdminRequired(), s.GetRequest)
	requests.Post("/:id/:action", s.AuthRequired(), s.AdminRequired(), s.DecideRequest)

	// Catalog routes - public browse
	authors := api.Group("/authors")
	authors.Get("/", s.GetAuthors)
	authors.Get("/:id", s.GetAuthor)
	authors.Post("/", s.AuthRequired(), s.AdminRequired(), s.CreateAuthor)
	authors.Put("/:id", s.AuthRequired(), s.AdminRequired(), s.UpdateAuthor)
	authors.Delete("/:id", s.AuthRequired(), s.AdminRequired(), s.DeleteAuthor)

	categories := api.Group("/categories")
	categories.Get("/", s.GetCategories)
	categories.Get("/:id", s.GetCategory)
	categories.Post("/", s.AuthRequired(), s.AdminRequired(), s.CreateCategory)
	categories.Put("/:id", s.AuthRequired(), s.AdminRequired(), s.UpdateCategory)
	categories.Delete("/:id", s.AuthRequired(), s.AdminRequired(), s.DeleteCategory)

	publications := api.Group("/publications")
	publications.Get("/", s.GetPublications)
	// Anonymous code-gated download must be matched before the bearer route.
	publications.Get("/:id/file/download/:requester/:code", s.DownloadWithCode)
	publications.Get("/:id/file", s.AuthRequired(), s.GetPublicationFile)
	publications.Put("/:id/file", s.AuthRequired(), s.AdminRequired(), s.UploadPublicationFile)
	publications.Get("/:id", s.GetPublication)
	publications.Post("/", s.AuthRequired(), s.AdminRequired(), s.CreatePublication)
	publications.Put("/:id", s.AuthRequired(), s.AdminRequired(), s.UpdatePublication)
	publications.Delete("/:id", s.AuthRequired(), s.AdminRequired(), s.DeletePublication)

	// Password restoration is anonymous by nature; these must be registered
	// ahead of the authenticated users group so its middleware never runs.
	api.Post("/users/forgot", middleware.RateLimit(
		s.redis, 5, 15*time.Minute, "forgot_password"), s.ForgotPassword)
	api.Post("/users/reset/:token", middleware.RateLimit(
		s.redis, 10, 15*time.Minute, "reset_password"), s.ResetPassword)

	// User routes
	users := api.Group("/users", s.AuthRequired())
	users.Get("/me", s.GetMyProfile)
	users.Get("/", s.AdminRequired(), s.GetAllUsers)
	users.Post("/:id/promote-admin", s.AdminRequired(), s.PromoteToAdmin)
	users.Post("/:id/demote-admin", s.AdminRequired(), s.DemoteFromAdmin)

	// Admin live event feed
	api.Get("/ws/events", s.AuthRequired(), s.AdminRequired(), s.EventFeedUpgrade(), s.EventFeedHandler())

	// Test-only introspection
	if s.config.IsTest() {
		testing := api.Group("/testing")
		testing.Get("/sent-emails", s.GetSentEmails)
		testing.Delete("/sent-emails", s.ResetSentEmails)
	}
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		// Redis holds the access codes, so readiness requires it
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// ClientCredentialsRequired gates endpoints open to registered API clients
// rather than authenticated users. Credentials arrive either in the
// X-Client-Id/X-Client-Secret headers or as HTTP Basic auth.
func (s *Server) ClientCredentialsRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := c.Get("X-Client-Id")
		clientSecret := c.Get("X-Client-Secret")

		if clientID == "" {
			if auth := c.Get("Authorization"); strings.HasPrefix(auth, "Basic ") {
				if decoded, err := base64.StdEncoding.DecodeString(auth[len("Basic "):]); err == nil {
					if id, secret, found := strings.Cut(string(decoded), ":"); found {
						clientID, clientSecret = id, secret
					}
				}
			}
		}

		if clientID != s.config.ClientID || clientSecret != s.config.ClientSecret {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid client credentials"))
		}
		return c.Next()
	}
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(uint)

		admin, err := s.isAdminByUserID(c.Context(), userID)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
		if !admin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewUnauthorizedError("Admin access required"))
		}

		return c.Next()
	}
}

// AuthRequired returns the authentication middleware
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		tokenString := ""
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		// WebSocket clients cannot set headers from the browser API
		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
			}
			return []byte(s.config.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token claims"))
		}

		if issuer, issuerOk := claims["iss"].(string); !issuerOk || issuer != "biblio-api" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token issuer"))
		}
		if audience, audienceOk := claims["aud"].(string); !audienceOk || audience != "biblio-client" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid token audience"))
		}

		sub, ok := claims["sub"].(string)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid subject claim"))
		}
		userID, err := strconv.ParseUint(sub, 10, 32)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid user ID in token"))
		}

		// Check JTI for revocation
		if jti, exists := claims["jti"].(string); exists && jti != "" {
			if s.redis != nil {
				isBlacklisted, err := s.redis.Exists(c.Context(), "blacklist:"+jti).Result()
				if err == nil && isBlacklisted > 0 {
					return models.RespondWithError(c, fiber.StatusUnauthorized,
						models.NewUnauthorizedError("Token has been revoked"))
				}
			}
		}

		c.Locals("userID", uint(userID))
		// Sync to UserContext for logging and downstream services
		ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, uint(userID))
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// Shutdown releases the server's resources. The caller owns the Fiber app
// and stops it first, so no requests are in flight here.
func (s *Server) Shutdown(ctx context.Context) error {
	// Close feed sockets, then drain the bus so in-flight notifications land.
	s.feed.Shutdown()
	s.bus.Close()

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
