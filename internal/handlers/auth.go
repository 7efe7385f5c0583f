package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/lifetravel/cartguard/internal/middleware"
	"github.com/lifetravel/cartguard/internal/services"
	"github.com/lifetravel/cartguard/pkg/response"
)

type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "username and password required")
		return
	}

	result, err := h.auth.Login(req.Username, req.Password, c.ClientIP(), c.Request.UserAgent())
	if err == services.ErrInvalidCredentials {
		response.Unauthorized(c, "invalid username or password")
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		response.Unauthorized(c, "not authenticated")
		return
	}

	user, err := h.auth.GetUser(userID)
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	response.Success(c, user)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	// Stateless JWT: the client discards the token.
	response.Success(c, nil)
}
