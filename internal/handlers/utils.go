package handlers

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"lino-backend/internal/common"
	"lino-backend/internal/models"
)

// getAuthenticatedUser resolves the user behind the request's JWT.
func getAuthenticatedUser(c echo.Context, jwtIssuer common.JWTIssuer, db *gorm.DB) (*models.User, error) {
	email, err := jwtIssuer.GetUserEmail(c)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT claims: %w", err)
	}

	user, err := models.GetUserByEmail(db, email)
	if err != nil {
		return nil, fmt.Errorf("failed to load user for %s: %w", email, err)
	}

	return user, nil
}
