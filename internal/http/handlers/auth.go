package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/http/response"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
	"github.com/yungbote/neurobridge-sync/internal/services"
)

// AuthHandler mints development tokens. It is only routed when the dev server
// runs with DEV_AUTH enabled.
type AuthHandler struct {
	log         *logger.Logger
	authService services.AuthService
	userService services.UserService
}

func NewAuthHandler(log *logger.Logger, authService services.AuthService, userService services.UserService) *AuthHandler {
	return &AuthHandler{
		log:         log.With("handler", "AuthHandler"),
		authService: authService,
		userService: userService,
	}
}

type devTokenRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	CohortID    string `json:"cohort_id"`
}

type devTokenResponse struct {
	Token     string             `json:"token"`
	UserID    uuid.UUID          `json:"user_id"`
	ExpiresAt time.Time          `json:"expires_at"`
	User      domain.UserProfile `json:"user"`
}

// POST /api/dev/token
// body (all optional): { "user_id", "display_name", "email", "cohort_id" }
func (ah *AuthHandler) IssueDevToken(c *gin.Context) {
	var req devTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	id := uuid.New()
	if req.UserID != "" {
		parsed, err := uuid.Parse(req.UserID)
		if err != nil || parsed == uuid.Nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_user_id", errInvalidUserID)
			return
		}
		id = parsed
	}
	user, err := ah.userService.Ensure(c.Request.Context(), domain.UserProfile{
		ID:          id,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		CohortID:    req.CohortID,
	})
	if err != nil {
		ah.log.Error("IssueDevToken failed (ensure user)", "error", err, "user_id", id)
		response.RespondAPIError(c, err)
		return
	}
	token, exp, err := ah.authService.IssueToken(c.Request.Context(), user.ID)
	if err != nil {
		ah.log.Error("IssueDevToken failed (sign)", "error", err, "user_id", id)
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, devTokenResponse{Token: token, UserID: user.ID, ExpiresAt: exp, User: user})
}
