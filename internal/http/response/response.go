package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/platform/ctxutil"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`

	// RequestID matches the X-Request-Id response header.
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message:   msg,
			Code:      code,
			RequestID: requestID(c),
		},
	})
}

// RespondAPIError writes err using its apierr classification. Errors without
// one are reported as 500 internal_error.
func RespondAPIError(c *gin.Context, err error) {
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
		return
	}
	status := StatusFor(ae)
	msg := http.StatusText(status)
	if ae.Err != nil {
		msg = ae.Err.Error()
	}
	code := ae.Code
	if code == "" {
		code = string(ae.Kind)
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message:   msg,
			Code:      code,
			Field:     ae.Field,
			RequestID: requestID(c),
		},
	})
}

func requestID(c *gin.Context) string {
	if c.Request == nil {
		return ""
	}
	return ctxutil.TraceFrom(c.Request.Context()).RequestID
}

// StatusFor picks the HTTP status for a typed error, preferring an explicit one.
func StatusFor(ae *apierr.Error) int {
	if ae.Status >= 400 {
		return ae.Status
	}
	switch ae.Kind {
	case apierr.KindValidation:
		return http.StatusUnprocessableEntity
	case apierr.KindAuthorization:
		return http.StatusUnauthorized
	case apierr.KindNotFound:
		return http.StatusNotFound
	case apierr.KindCanceled:
		return 499
	case apierr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
