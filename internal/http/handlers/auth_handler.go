package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"user-admin-server/internal/http/middleware"
	"user-admin-server/internal/services"
	"user-admin-server/internal/utils"
)

type AuthHandler struct {
	users *services.UserService
}

type LoginRequest struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

func NewAuthHandler(users *services.UserService) *AuthHandler {
	return &AuthHandler{users: users}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.RespondValidationError(c, utils.BindingDetails(err))
		return
	}

	res, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		utils.RespondError(c, mapServiceError(err))
		return
	}

	utils.RespondOK(c, AuthResponse{UserResponse: userToResponse(*res.User), Token: res.Token})
}

func (h *AuthHandler) Profile(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		utils.RespondError(c, utils.NewAppError(http.StatusUnauthorized, "UNAUTHORIZED", "not authorized", nil))
		return
	}

	user, err := h.users.GetProfile(c.Request.Context(), userID)
	if err != nil {
		utils.RespondError(c, mapServiceError(err))
		return
	}

	utils.RespondOK(c, userToResponse(*user))
}
