package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuthorization},
		{http.StatusForbidden, KindAuthorization},
		{http.StatusNotFound, KindNotFound},
		{http.StatusBadRequest, KindValidation},
		{http.StatusUnprocessableEntity, KindValidation},
		{http.StatusTooManyRequests, KindTransient},
		{http.StatusBadGateway, KindTransient},
		{http.StatusTeapot, KindUnknown},
	}
	for _, tc := range cases {
		if got := FromStatus(tc.status, "", nil).Kind; got != tc.want {
			t.Fatalf("status %d: want=%s got=%s", tc.status, tc.want, got)
		}
	}
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	base := FromStatus(http.StatusForbidden, "forbidden", nil)
	wrapped := fmt.Errorf("record consent: %w", base)
	if !IsTerminal(wrapped) {
		t.Fatalf("expected wrapped 403 to be terminal")
	}
	if IsRetryable(wrapped) {
		t.Fatalf("403 must not be retryable")
	}
	if KindOf(context.Canceled) != KindCanceled {
		t.Fatalf("context.Canceled: want=%s got=%s", KindCanceled, KindOf(context.Canceled))
	}
	if !IsRetryable(Wrap(errors.New("connection reset"))) {
		t.Fatalf("raw network error should wrap as transient")
	}
}

func TestValidationErrorMessageIncludesField(t *testing.T) {
	err := Validation("dailyGoalMinutes", errors.New("must be between 5 and 600"))
	if got := err.Error(); got != "dailyGoalMinutes: must be between 5 and 600" {
		t.Fatalf("message: got=%q", got)
	}
}
