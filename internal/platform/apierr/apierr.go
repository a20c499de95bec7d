package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindTransient     Kind = "transient"
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindDerivation    Kind = "derivation"
	KindCanceled      Kind = "canceled"
	KindUnknown       Kind = "unknown"
)

// Error is the typed error surfaced to callers of the sync layer. The UI decides
// presentation from Kind; Field is set for validation failures.
type Error struct {
	Kind   Kind
	Status int
	Code   string
	Field  string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		if e.Field != "" {
			return fmt.Sprintf("%s: %s", e.Field, e.Err.Error())
		}
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return string(e.Kind) + " error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, status int, code string, err error) *Error {
	return &Error{Kind: kind, Status: status, Code: code, Err: err}
}

func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Code: "transient", Err: err}
}

func Validation(field string, err error) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusUnprocessableEntity, Code: "validation_failed", Field: field, Err: err}
}

func Derivation(err error) *Error {
	return &Error{Kind: KindDerivation, Code: "derivation_failed", Err: err}
}

// FromStatus classifies an HTTP failure.
func FromStatus(status int, code string, err error) *Error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	kind := KindUnknown
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuthorization
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusConflict:
		kind = KindValidation
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		kind = KindTransient
	}
	return &Error{Kind: kind, Status: status, Code: code, Err: err}
}

// Wrap turns an arbitrary error into a typed one. Network-level failures are
// transient; context cancellation is its own kind.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCanceled, Code: "canceled", Err: err}
	}
	return Transient(err)
}

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindUnknown
}

func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// IsTerminal reports failures that must not be retried automatically.
func IsTerminal(err error) bool {
	return KindOf(err) == KindAuthorization
}
