package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/http/response"
	"github.com/yungbote/neurobridge-sync/internal/observability"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
	"github.com/yungbote/neurobridge-sync/internal/services"
)

type ActivityHandler struct {
	log        *logger.Logger
	activities services.ActivityService
	metrics    *observability.Metrics
}

func NewActivityHandler(log *logger.Logger, activities services.ActivityService, metrics *observability.Metrics) *ActivityHandler {
	return &ActivityHandler{
		log:        log.With("handler", "ActivityHandler"),
		activities: activities,
		metrics:    metrics,
	}
}

// GET /api/users/:id/activities?cursor=&limit=&q=
func (h *ActivityHandler) ListActivities(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}
	q := services.ActivityQuery{
		Cursor: c.Query("cursor"),
		Query:  strings.TrimSpace(c.Query("q")),
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.RespondAPIError(c, apierr.Validation("limit", errors.New("limit must be an integer")))
			return
		}
		q.Limit = n
	}
	page, err := h.activities.List(c.Request.Context(), id, q)
	if err != nil {
		h.respond(c, "ListActivities", err)
		return
	}
	if page.Items == nil {
		page.Items = []domain.ActivityRecord{}
	}
	response.RespondOK(c, page)
}

// POST /api/users/:id/activities
// The path id wins over any user_id in the body.
func (h *ActivityHandler) RecordActivity(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}
	var rec domain.ActivityRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		response.RespondAPIError(c, apierr.New(apierr.KindValidation, 400, "invalid_request", err))
		return
	}
	rec.UserID = id
	out, err := h.activities.Record(c.Request.Context(), rec)
	if err != nil {
		h.respond(c, "RecordActivity", err)
		return
	}
	h.metrics.IncActivityRecorded(string(out.Type))
	response.RespondCreated(c, out)
}

// GET /api/users/:id/activity-summary?start=<RFC3339>&end=<RFC3339>
func (h *ActivityHandler) GetActivitySummary(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		response.RespondAPIError(c, apierr.Validation("start", errors.New("start must be RFC3339")))
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		response.RespondAPIError(c, apierr.Validation("end", errors.New("end must be RFC3339")))
		return
	}
	out, err := h.activities.Summarize(c.Request.Context(), id, domain.DateRange{Start: start.UTC(), End: end.UTC()})
	if err != nil {
		h.respond(c, "GetActivitySummary", err)
		return
	}
	response.RespondOK(c, out)
}

func (h *ActivityHandler) respond(c *gin.Context, op string, err error) {
	if k := apierr.KindOf(err); k != apierr.KindNotFound && k != apierr.KindValidation {
		h.log.Error(op+" failed", "error", err, "user_id", c.Param("id"))
	}
	response.RespondAPIError(c, err)
}
