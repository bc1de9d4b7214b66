package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"peermarket/internal/service/auth"
	"peermarket/pkg/utils"
)

// AuthHandler operator authentication handler
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler creates an authentication handler
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Login operator login
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters: "+err.Error())
		return
	}

	tokenResp, err := h.authService.Login(c.Request.Context(), &req, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, tokenResp)
}

// respondError maps a service error to the standard response envelope
func respondError(c *gin.Context, err error) {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		utils.ErrorFromApp(c, appErr)
		return
	}
	utils.ErrorResponse(c, http.StatusInternalServerError, err.Error())
}
