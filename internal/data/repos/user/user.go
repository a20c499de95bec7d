package user

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

type UserRepo interface {
	Create(ctx context.Context, tx *gorm.DB, users []*domain.UserProfile) ([]*domain.UserProfile, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*domain.UserProfile, error)
	GetByEmails(ctx context.Context, tx *gorm.DB, emails []string) ([]*domain.UserProfile, error)
	ListByCohort(ctx context.Context, tx *gorm.DB, cohortID string) ([]*domain.UserProfile, error)
	// Ensure inserts the profile when its id is unknown and leaves existing rows untouched.
	Ensure(ctx context.Context, tx *gorm.DB, u *domain.UserProfile) error
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	repoLog := baseLog.With("repo", "UserRepo")
	return &userRepo{db: db, log: repoLog}
}

func (ur *userRepo) Create(ctx context.Context, tx *gorm.DB, users []*domain.UserProfile) ([]*domain.UserProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	if len(users) == 0 {
		return []*domain.UserProfile{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (ur *userRepo) GetByIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*domain.UserProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	var results []*domain.UserProfile
	if len(userIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", userIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ur *userRepo) GetByEmails(ctx context.Context, tx *gorm.DB, emails []string) ([]*domain.UserProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	var results []*domain.UserProfile
	if len(emails) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("email IN ?", emails).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ur *userRepo) ListByCohort(ctx context.Context, tx *gorm.DB, cohortID string) ([]*domain.UserProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	var results []*domain.UserProfile
	if cohortID == "" {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("cohort_id = ?", cohortID).
		Order("id").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ur *userRepo) Ensure(ctx context.Context, tx *gorm.DB, u *domain.UserProfile) error {
	transaction := tx
	if transaction == nil {
		transaction = ur.db
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(u).Error
}
