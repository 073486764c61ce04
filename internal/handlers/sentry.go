package handlers

import (
	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"

	"lino-backend/internal/config"
)

// SetupSentry initializes Sentry and attaches its Echo middleware.
// A missing DSN disables error reporting without failing startup.
func SetupSentry(e *echo.Echo, cfg *config.Config) {
	if cfg.Sentry.DSN == "" {
		return
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn: cfg.Sentry.DSN,
	}); err != nil {
		e.Logger.Warnf("Sentry initialization failed: %v", err)
		return
	}

	e.Use(sentryecho.New(sentryecho.Options{
		Repanic: true,
	}))
}

// CaptureError reports an error to Sentry if it is configured.
func CaptureError(err error) {
	sentry.CaptureException(err)
}
