package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/http/response"
)

var errInvalidUserID = errors.New("invalid user id")

// pathUserID reads :id. On failure the 400 has already been written.
func pathUserID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_user_id", errInvalidUserID)
		return uuid.Nil, false
	}
	return id, true
}
