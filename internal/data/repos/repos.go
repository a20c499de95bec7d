package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/data/repos/activity"
	"github.com/yungbote/neurobridge-sync/internal/data/repos/consent"
	"github.com/yungbote/neurobridge-sync/internal/data/repos/progress"
	"github.com/yungbote/neurobridge-sync/internal/data/repos/user"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

type UserRepo = user.UserRepo
type PreferencesRepo = user.PreferencesRepo
type ActivityRepo = activity.ActivityRepo
type ConsentRepo = consent.ConsentRepo
type TopicMasteryRepo = progress.TopicMasteryRepo
type MasterySampleRepo = progress.MasterySampleRepo
type MilestoneRepo = progress.MilestoneRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo { return user.NewUserRepo(db, baseLog) }
func NewPreferencesRepo(db *gorm.DB, baseLog *logger.Logger) PreferencesRepo {
	return user.NewPreferencesRepo(db, baseLog)
}
func NewActivityRepo(db *gorm.DB, baseLog *logger.Logger) ActivityRepo {
	return activity.NewActivityRepo(db, baseLog)
}
func NewConsentRepo(db *gorm.DB, baseLog *logger.Logger) ConsentRepo {
	return consent.NewConsentRepo(db, baseLog)
}
func NewTopicMasteryRepo(db *gorm.DB, baseLog *logger.Logger) TopicMasteryRepo {
	return progress.NewTopicMasteryRepo(db, baseLog)
}
func NewMasterySampleRepo(db *gorm.DB, baseLog *logger.Logger) MasterySampleRepo {
	return progress.NewMasterySampleRepo(db, baseLog)
}
func NewMilestoneRepo(db *gorm.DB, baseLog *logger.Logger) MilestoneRepo {
	return progress.NewMilestoneRepo(db, baseLog)
}
