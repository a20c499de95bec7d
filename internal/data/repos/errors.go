package repos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
)

// MapError classifies a storage failure into the service's typed errors.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return err
	}
	wrapped := fmt.Errorf("%s: %w", op, err)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apierr.New(apierr.KindNotFound, http.StatusNotFound, "not_found", wrapped)
	case errors.Is(err, context.Canceled):
		return apierr.New(apierr.KindCanceled, 499, "canceled", wrapped)
	case errors.Is(err, context.DeadlineExceeded):
		return apierr.New(apierr.KindTransient, http.StatusServiceUnavailable, "timeout", wrapped)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505": // unique_violation
			return conflict(wrapped, pgErr.ColumnName)
		case "23503", "23502", "23514": // foreign_key, not_null, check
			return apierr.New(apierr.KindValidation, http.StatusUnprocessableEntity, "constraint_violation", wrapped)
		case "40001", "40P01", "55P03": // serialization, deadlock, lock_not_available
			return apierr.New(apierr.KindTransient, http.StatusServiceUnavailable, "retryable", wrapped)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint failed"), strings.Contains(msg, "duplicate key"):
		return conflict(wrapped, "")
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "connection refused"):
		return apierr.New(apierr.KindTransient, http.StatusServiceUnavailable, "retryable", wrapped)
	}
	return apierr.New(apierr.KindUnknown, http.StatusInternalServerError, "storage_error", wrapped)
}

func conflict(err error, field string) error {
	e := apierr.New(apierr.KindValidation, http.StatusConflict, "conflict", err)
	e.Field = field
	return e
}

// IsConflict reports a unique-key violation mapped by MapError.
func IsConflict(err error) bool {
	var ae *apierr.Error
	return errors.As(err, &ae) && ae.Code == "conflict"
}
