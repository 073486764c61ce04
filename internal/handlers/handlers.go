package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lindell/go-burner-email-providers/burner"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"lino-backend/internal/common"
	"lino-backend/internal/config"
	"lino-backend/internal/models"
	"lino-backend/internal/notifications"
)

type AuthHandler struct {
	common.ServerState
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdatePasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config, jwt common.JWTIssuer, redis *redis.Client) *AuthHandler {
	return &AuthHandler{
		ServerState: common.ServerState{
			DB:        db,
			Config:    cfg,
			JwtIssuer: jwt,
			Redis:     redis,
		},
	}
}

// Login authenticates by email and password and issues a JWT.
// Unknown emails are 404, wrong passwords 401.
func (h *AuthHandler) Login(c echo.Context) error {
	c.Logger().Info("Received login request")
	req := &SignInRequest{}

	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	u := &models.User{}
	result := h.DB.Where("email = ?", req.Email).First(u)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("No user found for email: %s", req.Email))
	}

	if !u.CheckPassword(req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid password")
	}

	token, err := h.JwtIssuer.GenerateToken(u.ID, u.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	_ = notifications.SendTelegramNotification(fmt.Sprintf("New sign-in: %s", u.ID), h.Config)

	return c.JSON(http.StatusOK, map[string]string{
		"accessToken": token,
		"userId":      u.ID,
	})
}

func (h *AuthHandler) CreateUser(c echo.Context) error {
	c.Logger().Info("Received create user request")

	u := new(models.User)
	if err := c.Bind(u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if burner.IsBurnerEmail(u.Email) {
		return echo.NewHTTPError(http.StatusBadRequest, "Temporary email addresses are not allowed")
	}

	result := h.DB.Create(u)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return echo.NewHTTPError(http.StatusConflict, "user with this email already exists")
	}
	if result.Error != nil {
		c.Logger().Errorf("Failed to create user: %v", result.Error)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create user")
	}

	return c.JSON(http.StatusCreated, u)
}

// GetUser returns a user by ID. The credential hash is never serialized.
func (h *AuthHandler) GetUser(c echo.Context) error {
	user, err := models.GetUserByID(h.DB, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "User not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load user")
	}

	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) UpdatePassword(c echo.Context) error {
	req := &UpdatePasswordRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	user, err := models.GetUserByID(h.DB, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "User not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load user")
	}

	// Only the account owner may change their password
	authUser, err := getAuthenticatedUser(c, h.JwtIssuer, h.DB)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Failed to identify user")
	}
	if authUser.ID != user.ID {
		return echo.NewHTTPError(http.StatusForbidden, "You can only change your own password")
	}

	if err := user.SetPassword(h.DB, req.Password); err != nil {
		c.Logger().Errorf("Failed to update password: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update password")
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Password updated"})
}

type CreateTeamRequest struct {
	Name         string   `json:"name" validate:"required"`
	LeaderID     string   `json:"leader_id" validate:"required"`
	EnterpriseID *string  `json:"enterprise_id"`
	MemberIDs    []string `json:"member_ids"`
}

// CreateTeam validates the leader exists, creates the team, and seeds the
// member set with the leader plus any requested members.
func (h *AuthHandler) CreateTeam(c echo.Context) error {
	req := new(CreateTeamRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	leader, err := models.GetUserByID(h.DB, req.LeaderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Leader not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load leader")
	}

	team := models.Team{
		Name:         req.Name,
		LeaderID:     leader.ID,
		EnterpriseID: req.EnterpriseID,
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&team).Error; err != nil {
			return fmt.Errorf("failed to create team: %w", err)
		}

		if err := team.AddMember(tx, leader); err != nil {
			return fmt.Errorf("failed to add leader to team: %w", err)
		}

		for _, memberID := range req.MemberIDs {
			if memberID == leader.ID {
				continue
			}
			member, err := models.GetUserByID(tx, memberID)
			if err != nil {
				return fmt.Errorf("member %s: %w", memberID, err)
			}
			if err := team.AddMember(tx, member); err != nil {
				return fmt.Errorf("failed to add member %s: %w", memberID, err)
			}
		}

		return nil
	})
	if err != nil {
		c.Logger().Errorf("Failed to create team: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create team")
	}

	return c.JSON(http.StatusCreated, team)
}

func (h *AuthHandler) GetTeam(c echo.Context) error {
	var team models.Team
	result := h.DB.Preload("Leader").Preload("Members").Where("id = ?", c.Param("id")).First(&team)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Team not found")
	}
	if result.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load team")
	}

	return c.JSON(http.StatusOK, team)
}

func (h *AuthHandler) GetTeams(c echo.Context) error {
	var teams []models.Team
	if err := h.DB.Find(&teams).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load teams")
	}

	return c.JSON(http.StatusOK, teams)
}

// GetTeamLeader returns the leader of a team.
func (h *AuthHandler) GetTeamLeader(c echo.Context) error {
	team, err := models.GetTeamByID(h.DB, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Team not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load team")
	}

	leader, err := models.GetUserByID(h.DB, team.LeaderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Leader not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load leader")
	}

	return c.JSON(http.StatusOK, leader)
}

func (h *AuthHandler) DeleteTeam(c echo.Context) error {
	var team models.Team
	result := h.DB.Where("id = ?", c.Param("id")).First(&team)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Team not found")
	}

	if err := h.DB.Select("Members").Delete(&team).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete team")
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) CreateEnterprise(c echo.Context) error {
	enterprise := new(models.Enterprise)
	if err := c.Bind(enterprise); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(enterprise); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if _, err := models.GetUserByID(h.DB, enterprise.AdminUserID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Admin user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load admin user")
	}

	if err := h.DB.Create(enterprise).Error; err != nil {
		c.Logger().Errorf("Failed to create enterprise: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create enterprise")
	}

	return c.JSON(http.StatusCreated, enterprise)
}

func (h *AuthHandler) GetEnterprise(c echo.Context) error {
	enterprise, err := models.GetEnterpriseByID(h.DB, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Enterprise not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load enterprise")
	}

	return c.JSON(http.StatusOK, enterprise)
}

func (h *AuthHandler) GetEnterprises(c echo.Context) error {
	var enterprises []models.Enterprise
	if err := h.DB.Find(&enterprises).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load enterprises")
	}

	return c.JSON(http.StatusOK, enterprises)
}

func (h *AuthHandler) DeleteEnterprise(c echo.Context) error {
	var enterprise models.Enterprise
	result := h.DB.Where("id = ?", c.Param("id")).First(&enterprise)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Enterprise not found")
	}

	if err := h.DB.Delete(&enterprise).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete enterprise")
	}

	return c.NoContent(http.StatusNoContent)
}
