package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/data/repos"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
	"github.com/yungbote/neurobridge-sync/internal/realtime"
	"github.com/yungbote/neurobridge-sync/internal/services"
)

type Repos struct {
	User          repos.UserRepo
	Preferences   repos.PreferencesRepo
	Activity      repos.ActivityRepo
	Consent       repos.ConsentRepo
	TopicMastery  repos.TopicMasteryRepo
	MasterySample repos.MasterySampleRepo
	Milestone     repos.MilestoneRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:          repos.NewUserRepo(db, log),
		Preferences:   repos.NewPreferencesRepo(db, log),
		Activity:      repos.NewActivityRepo(db, log),
		Consent:       repos.NewConsentRepo(db, log),
		TopicMastery:  repos.NewTopicMasteryRepo(db, log),
		MasterySample: repos.NewMasterySampleRepo(db, log),
		Milestone:     repos.NewMilestoneRepo(db, log),
	}
}

type Services struct {
	Auth        services.AuthService
	User        services.UserService
	Progress    services.ProgressService
	Activity    services.ActivityService
	Preferences services.PreferencesService
	Consent     services.ConsentService
}

// WireServices builds the service layer over db. Progress effects go to emit.
func WireServices(db *gorm.DB, log *logger.Logger, cfg Config, emit realtime.Emitter) (Services, error) {
	r := wireRepos(db, log)

	log.Info("Wiring services...")
	auth, err := services.NewAuthService(log, cfg.JWTSecretKey, cfg.AccessTokenTTL)
	if err != nil {
		return Services{}, fmt.Errorf("init auth service: %w", err)
	}
	progress := services.NewProgressService(db, log, r.User, r.Activity, r.TopicMastery, r.MasterySample, r.Milestone,
		services.NewProgressNotifier(emit, log))
	return Services{
		Auth:        auth,
		User:        services.NewUserService(db, log, r.User),
		Progress:    progress,
		Activity:    services.NewActivityService(db, log, r.Activity, progress),
		Preferences: services.NewPreferencesService(db, log, r.Preferences),
		Consent:     services.NewConsentService(db, log, r.Consent),
	}, nil
}
