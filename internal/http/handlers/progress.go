package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/http/response"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
	"github.com/yungbote/neurobridge-sync/internal/services"
)

type ProgressHandler struct {
	log      *logger.Logger
	progress services.ProgressService
}

func NewProgressHandler(log *logger.Logger, progress services.ProgressService) *ProgressHandler {
	return &ProgressHandler{log: log.With("handler", "ProgressHandler"), progress: progress}
}

// GET /api/users/:id/progress-summary?range=7d|30d|90d|all
func (h *ProgressHandler) GetSummary(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}
	rng, err := domain.ParseSummaryRange(c.Query("range"))
	if err != nil {
		response.RespondAPIError(c, apierr.Validation("range", err))
		return
	}
	out, err := h.progress.Summary(c.Request.Context(), id, rng)
	if err != nil {
		h.respond(c, "GetSummary", err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/users/:id/milestones
func (h *ProgressHandler) GetMilestones(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}
	out, err := h.progress.Milestones(c.Request.Context(), id)
	if err != nil {
		h.respond(c, "GetMilestones", err)
		return
	}
	if out == nil {
		out = []domain.Milestone{}
	}
	response.RespondOK(c, out)
}

// GET /api/users/:id/peer-stats
func (h *ProgressHandler) GetPeerStats(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}
	out, err := h.progress.PeerStats(c.Request.Context(), id)
	if err != nil {
		h.respond(c, "GetPeerStats", err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/users/:id/predictions
// 404 when the user has no mastery data yet.
func (h *ProgressHandler) GetPredictions(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}
	out, err := h.progress.Insights(c.Request.Context(), id)
	if err != nil {
		h.respond(c, "GetPredictions", err)
		return
	}
	response.RespondOK(c, out)
}

func (h *ProgressHandler) respond(c *gin.Context, op string, err error) {
	if k := apierr.KindOf(err); k != apierr.KindNotFound && k != apierr.KindValidation {
		h.log.Error(op+" failed", "error", err, "user_id", c.Param("id"))
	}
	response.RespondAPIError(c, err)
}
