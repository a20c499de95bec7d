package repos

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind apierr.Kind
		code string
	}{
		{"not found", gorm.ErrRecordNotFound, apierr.KindNotFound, "not_found"},
		{"pg unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ColumnName: "email"}), apierr.KindValidation, "conflict"},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, apierr.KindTransient, "retryable"},
		{"pg fk", &pgconn.PgError{Code: "23503"}, apierr.KindValidation, "constraint_violation"},
		{"sqlite unique", errors.New("UNIQUE constraint failed: user_profile.email"), apierr.KindValidation, "conflict"},
		{"deadline", context.DeadlineExceeded, apierr.KindTransient, "timeout"},
		{"other", errors.New("boom"), apierr.KindUnknown, "storage_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := MapError("op", tc.err)
			var ae *apierr.Error
			if !errors.As(err, &ae) {
				t.Fatalf("MapError: want *apierr.Error got=%T", err)
			}
			if ae.Kind != tc.kind || ae.Code != tc.code {
				t.Fatalf("MapError: want=%s/%s got=%s/%s", tc.kind, tc.code, ae.Kind, ae.Code)
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("MapError lost the cause")
			}
		})
	}
	if MapError("op", nil) != nil {
		t.Fatalf("MapError(nil): want=nil")
	}
	if !IsConflict(MapError("op", &pgconn.PgError{Code: "23505"})) {
		t.Fatalf("IsConflict: want=true")
	}
}
