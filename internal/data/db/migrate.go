package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/domain"
)

// AutoMigrate creates or updates the user service tables.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&domain.UserProfile{},
		&domain.UserPreferences{},
		&domain.ActivityRecord{},
		&domain.ConsentHistoryEntry{},
		&domain.TopicMastery{},
		&domain.MasterySample{},
		&domain.MilestoneRecord{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func (s *Service) AutoMigrate() error {
	if err := AutoMigrate(s.db); err != nil {
		return err
	}
	s.log.Info("schema migrated", "dialect", s.dialect)
	return nil
}
