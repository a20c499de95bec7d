package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/http/response"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/services"
)

type PreferencesHandler struct {
	prefs services.PreferencesService
}

func NewPreferencesHandler(prefs services.PreferencesService) *PreferencesHandler {
	return &PreferencesHandler{prefs: prefs}
}

// GET /api/users/:id/preferences
func (h *PreferencesHandler) GetPreferences(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}
	out, err := h.prefs.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// PATCH /api/users/:id/preferences
// body: any subset of the preference fields; omitted fields are unchanged.
func (h *PreferencesHandler) UpdatePreferences(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}
	var patch domain.PreferencesPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.RespondAPIError(c, apierr.New(apierr.KindValidation, 400, "invalid_request", err))
		return
	}
	out, err := h.prefs.Update(c.Request.Context(), id, patch)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}
