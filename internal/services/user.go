package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/data/repos"
	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

type UserService interface {
	Get(ctx context.Context, userID uuid.UUID) (domain.UserProfile, error)
	// Ensure creates the profile on first sight; later calls return it as stored.
	Ensure(ctx context.Context, u domain.UserProfile) (domain.UserProfile, error)
}

type userService struct {
	db       *gorm.DB
	log      *logger.Logger
	userRepo repos.UserRepo
}

func NewUserService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo) UserService {
	return &userService{db: db, log: log.With("service", "UserService"), userRepo: userRepo}
}

func (us *userService) Get(ctx context.Context, userID uuid.UUID) (domain.UserProfile, error) {
	users, err := us.userRepo.GetByIDs(ctx, nil, []uuid.UUID{userID})
	if err != nil {
		return domain.UserProfile{}, repos.MapError("get user", err)
	}
	if len(users) == 0 {
		return domain.UserProfile{}, apierr.New(apierr.KindNotFound, http.StatusNotFound, "not_found", errors.New("user not found"))
	}
	return *users[0], nil
}

func (us *userService) Ensure(ctx context.Context, u domain.UserProfile) (domain.UserProfile, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.DisplayName = strings.TrimSpace(u.DisplayName)
	if u.DisplayName == "" {
		u.DisplayName = "learner-" + u.ID.String()[:8]
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	var out domain.UserProfile
	err := us.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := us.userRepo.Ensure(ctx, tx, &u); err != nil {
			return err
		}
		users, err := us.userRepo.GetByIDs(ctx, tx, []uuid.UUID{u.ID})
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return gorm.ErrRecordNotFound
		}
		out = *users[0]
		return nil
	})
	if err != nil {
		return domain.UserProfile{}, repos.MapError("ensure user", err)
	}
	return out, nil
}
