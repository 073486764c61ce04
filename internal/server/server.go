package server

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lino-backend/internal/ai"
	"lino-backend/internal/common"
	"lino-backend/internal/config"
	"lino-backend/internal/handlers"
	"lino-backend/internal/models"
	"lino-backend/internal/notifications"
	"lino-backend/internal/review"
	"lino-backend/internal/workflow"
)

// CustomValidator Source: https://echo.labstack.com/docs/request#validate-data
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		// Optionally, you could return the error to give each route more control over the status code
		return err
	}
	return nil
}

type SentryLogger struct {
	echo.Logger
}

func (l *SentryLogger) Error(i ...interface{}) {
	// Capture in Sentry
	if err, ok := i[0].(error); ok {
		handlers.CaptureError(err)
	} else {
		handlers.CaptureError(fmt.Errorf("%v", i...))
	}
	// Call original logger
	l.Logger.Error(i...)
}

type Server struct {
	common.ServerState
}

func New(cfg *config.Config) *Server {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}
	e.Logger = &SentryLogger{Logger: e.Logger}
	e.Logger.SetLevel(log.DEBUG)

	return &Server{
		common.ServerState{
			Echo:   e,
			Config: cfg,
		},
	}
}

func (s *Server) Initialize() error {
	// Initialize database
	s.setupDatabase()

	s.setupRedis()

	// Initialize JWT
	s.JwtIssuer = handlers.NewJwtAuth(s.Config.Auth.SessionSecret)

	// Initialize AI collaborators
	s.setupAI()

	// Initialize the leader notifier
	s.setupNotifier()

	// Wire the feedback pipeline on top of the collaborators
	s.setupWorkflow()

	// Setup routes
	s.setupRoutes()

	// Run Migrations
	s.runMigrations()

	s.setupMetrics()

	// Setup middleware -
	// Keep last to avoid Recover middleware and panic if something goes wrong on init
	s.setupMiddleware()

	return nil
}

func (s *Server) setupDatabase() {
	dsn := s.Config.Database.DSN
	if dsn == "" {
		s.Echo.Logger.Fatal("DATABASE_DSN environment variable is required")
	}

	var db *gorm.DB
	var err error

	// Detect database driver from DSN
	// SQLite DSNs typically start with "file:"
	if strings.HasPrefix(dsn, "file:") {
		// Use SQLite driver for testing
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)})
	} else {
		// Use PostgreSQL driver for production
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)})
	}

	if err != nil {
		s.Echo.Logger.Fatal(err)
	}
	s.DB = db
}

func (s *Server) setupRedis() {
	url := s.Config.Database.RedisURI

	// Make Redis optional - if URI is empty, skip Redis setup
	if url == "" {
		s.Echo.Logger.Warn("REDIS_URI not configured, draft sessions will be kept in memory")
		s.Redis = nil
		return
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		s.Echo.Logger.Warnf("Failed to parse Redis URL: %v, draft sessions will be kept in memory", err)
		s.Redis = nil
		return
	}

	s.Redis = redis.NewClient(opts)

	// Validate proper connection, but don't panic on failure
	ctx := context.Background()
	result := s.Redis.Ping(ctx)
	if result.Err() != nil {
		s.Echo.Logger.Warnf("Redis connection failed: %v, draft sessions will be kept in memory", result.Err())
		s.Redis = nil
		return
	}
}

func (s *Server) setupAI() {
	if s.Config.OpenAI.APIKey == "" {
		s.Echo.Logger.Warn("OPENAI_API_KEY not configured, summarization requests will fail")
	}

	client := ai.NewClient(s.Config.OpenAI.APIKey, s.Config.OpenAI.ChatModel, s.Config.OpenAI.SystemPrompt)
	s.Summarizer = client
	s.Transcriber = client
	s.Synthesizer = client
}

func (s *Server) setupNotifier() {
	if s.Config.Slack.BotToken == "" || s.Config.Slack.LeaderID == "" {
		s.Echo.Logger.Warn("Slack not configured, leader notifications will be disabled")
		return
	}

	s.Notifier = notifications.NewSlackNotifier(s.Config.Slack.BotToken, s.Config.Slack.LeaderID)
}

func (s *Server) setupWorkflow() {
	s.Workflow = workflow.New(s.DB, s.Config, s.Summarizer, s.Synthesizer, s.Notifier, s.Echo.Logger)

	var store review.Store
	if s.Redis != nil {
		store = review.NewRedisStore(s.Redis, 24*time.Hour)
	} else {
		store = review.NewMemoryStore()
	}
	s.Drafts = review.NewManager(store, s.Summarizer, s.Workflow)
}

func (s *Server) runMigrations() {
	err := s.DB.AutoMigrate(
		&models.User{},
		&models.Enterprise{},
		&models.Team{},
		&models.Feedback{},
	)
	if err != nil {
		s.Echo.Logger.Fatal(err)
	}
}

func (s *Server) setupMiddleware() {
	s.Echo.Use(middleware.CORS())
	s.Echo.Use(middleware.Recover())
	// Try to add prometheus middleware, but don't panic if already registered (e.g., in tests)
	// This allows multiple test runs without panicking
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok && err.Error() == "duplicate metrics collector registration attempted" {
				s.Echo.Logger.Warn("Prometheus middleware already registered, skipping")
			} else {
				panic(r)
			}
		}
	}()
	s.Echo.Use(echoprometheus.NewMiddleware("lino_backend"))
}

func (s *Server) setupMetrics() {
	// Workflow counters are registered by the workflow package itself. The
	// Redis gauge only makes sense when the draft store is backed by Redis.
	if s.Redis == nil {
		return
	}

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Subsystem: "redis",
			Name:      "connected_clients",
			Help:      "The number of clients currently connected to Redis",
		},
		func() float64 {
			ctx := context.Background()
			connectedClientsRaw := s.Redis.InfoMap(ctx).Item("Clients", "connected_clients")

			connectedClients, err := strconv.ParseFloat(connectedClientsRaw, 64)
			if err != nil {
				return math.NaN()
			}

			return connectedClients
		},
	))
}

func (s *Server) setupRoutes() {
	handlers.SetupSentry(s.Echo, s.Config)

	// Initialize handlers
	auth := handlers.NewAuthHandler(s.DB, s.Config, s.JwtIssuer, s.Redis)
	feedback := handlers.NewFeedbackHandler(s.ServerState)

	// API routes group
	api := s.Echo.Group("/api")

	// Public API endpoints
	api.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	api.GET("/metrics", echoprometheus.NewHandler())

	// Authentication endpoints
	api.POST("/auth/login", auth.Login)
	api.POST("/user", auth.CreateUser)

	// Protected API routes group
	protectedAPI := api.Group("/auth", s.JwtIssuer.Middleware())

	protectedAPI.GET("/user/:id", auth.GetUser)
	protectedAPI.PATCH("/user/:id/password", auth.UpdatePassword)

	protectedAPI.POST("/enterprise", auth.CreateEnterprise)
	protectedAPI.GET("/enterprise", auth.GetEnterprises)
	protectedAPI.GET("/enterprise/:id", auth.GetEnterprise)
	protectedAPI.DELETE("/enterprise/:id", auth.DeleteEnterprise)

	protectedAPI.POST("/team", auth.CreateTeam)
	protectedAPI.GET("/team/list", auth.GetTeams)
	protectedAPI.GET("/team/leader/:id", auth.GetTeamLeader)
	protectedAPI.GET("/team/:id", auth.GetTeam)
	protectedAPI.DELETE("/team/:id", auth.DeleteTeam)

	// Feedback pipeline
	protectedAPI.POST("/feedback/send", feedback.SendFeedback)
	protectedAPI.GET("/feedback", feedback.ListFeedback)
	protectedAPI.GET("/feedback/:id", feedback.GetFeedback)
	protectedAPI.DELETE("/feedback/:id", feedback.DeleteFeedback)

	// Draft review loop
	protectedAPI.POST("/feedback/draft", feedback.StartDraft)
	protectedAPI.GET("/feedback/draft/:id", feedback.GetDraft)
	protectedAPI.POST("/feedback/draft/:id/refine", feedback.RefineDraft)
	protectedAPI.POST("/feedback/draft/:id/accept", feedback.AcceptDraft)

	// Voice capture
	protectedAPI.POST("/feedback/transcribe", feedback.Transcribe)
}

func (s *Server) Start() error {
	serverURL := s.Config.Server.Host + ":" + s.Config.Server.Port

	if s.Config.Server.TLS.Enabled {
		if _, err := os.Stat(s.Config.Server.TLS.CertFile); os.IsNotExist(err) {
			s.Echo.Logger.Warn("TLS certificate file not found, falling back to HTTP")
			return s.Echo.Start(serverURL)
		}
		if _, err := os.Stat(s.Config.Server.TLS.KeyFile); os.IsNotExist(err) {
			s.Echo.Logger.Warn("TLS key file not found, falling back to HTTP")
			return s.Echo.Start(serverURL)
		}
		return s.Echo.StartTLS(serverURL, s.Config.Server.TLS.CertFile, s.Config.Server.TLS.KeyFile)
	}

	return s.Echo.Start(serverURL)
}
