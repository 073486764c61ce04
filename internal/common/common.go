package common

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"lino-backend/internal/ai"
	"lino-backend/internal/config"
	"lino-backend/internal/notifications"
	"lino-backend/internal/review"
	"lino-backend/internal/workflow"
)

type JwtCustomClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

type JWTIssuer interface {
	GenerateToken(userID, email string) (string, error)
	Middleware() echo.MiddlewareFunc
	GetUserEmail(c echo.Context) (string, error)
}

type ServerState struct {
	Echo   *echo.Echo
	Config *config.Config
	DB     *gorm.DB

	JwtIssuer JWTIssuer
	Redis     *redis.Client

	Summarizer  ai.Summarizer
	Transcriber ai.Transcriber
	Synthesizer ai.Synthesizer
	Notifier    notifications.Notifier

	Workflow *workflow.Controller
	Drafts   *review.Manager
}
