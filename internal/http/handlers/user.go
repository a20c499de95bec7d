package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-sync/internal/http/response"
	"github.com/yungbote/neurobridge-sync/internal/services"
)

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GET /api/users/:id
func (uh *UserHandler) GetUser(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}
	u, err := uh.userService.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, u)
}
