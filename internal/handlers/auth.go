package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/huangang/scanboard/internal/config"
	"github.com/huangang/scanboard/internal/middleware"
	"github.com/huangang/scanboard/internal/services"
	"github.com/huangang/scanboard/pkg/response"
	"gorm.io/gorm"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(db *gorm.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authService: services.NewAuthService(db, &cfg.JWT),
	}
}

// Login handles user login
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) || errors.Is(err, services.ErrUserDisabled) {
			services.LogWarning("auth", "login", "login failed for "+req.Username, nil, c.ClientIP(), c.Request.UserAgent(), nil)
			response.Unauthorized(c, err.Error())
			return
		}
		writeError(c, err)
		return
	}

	services.LogInfo("auth", "login", "user logged in", &resp.User.ID, c.ClientIP(), c.Request.UserAgent(), nil)
	response.Success(c, resp)
}

// GetCurrentUser returns the current logged-in user
// GET /api/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	user, err := h.authService.GetUserByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, user)
}

// Logout handles user logout (client-side token removal)
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	response.Success(c, gin.H{"message": "logged out successfully"})
}

// ChangePassword
// POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req services.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err := h.authService.ChangePassword(c.Request.Context(), middleware.GetUserID(c), &req)
	if errors.Is(err, services.ErrWrongPassword) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "password changed"})
}

// CreateAdminIfNotExists seeds the first admin account.
func (h *AuthHandler) CreateAdminIfNotExists(ctx context.Context) error {
	return h.authService.CreateAdminIfNotExists(ctx)
}
