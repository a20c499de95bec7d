package local

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/data/db"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

// Open opens the on-device SQLite database and migrates the local tables.
func Open(path string, log *logger.Logger) (*gorm.DB, error) {
	gdb, err := db.OpenSQLite(path, nil)
	if err != nil {
		return nil, err
	}
	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	if log != nil {
		log.Debug("local store ready", "path", path)
	}
	return gdb, nil
}

func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&queuedMutation{}, &consentSnapshot{}); err != nil {
		return fmt.Errorf("migrate local store: %w", err)
	}
	return nil
}
