package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/http/response"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/services"
)

type ConsentHandler struct {
	consent services.ConsentService
}

func NewConsentHandler(consent services.ConsentService) *ConsentHandler {
	return &ConsentHandler{consent: consent}
}

// GET /api/users/:id/consent
func (h *ConsentHandler) GetConsent(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}
	out, err := h.consent.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if out.History == nil {
		out.History = []domain.ConsentHistoryEntry{}
	}
	response.RespondOK(c, out)
}

// POST /api/users/:id/consent
// body: { "consent_type", "granted", "purpose", "legal_basis"? }
func (h *ConsentHandler) RecordConsent(c *gin.Context) {
	id, ok := pathUserID(c)
	if !ok {
		return
	}
	var req domain.ConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, apierr.New(apierr.KindValidation, 400, "invalid_request", err))
		return
	}
	out, err := h.consent.Record(c.Request.Context(), id, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, out)
}
