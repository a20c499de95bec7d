package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/neurobridge-sync/internal/platform/envutil"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type Config struct {
	// DSN selects Postgres when set.
	DSN        string
	SQLitePath string
	LogLevel   gormLogger.LogLevel
}

func ConfigFromEnv() Config {
	return Config{
		DSN:        envutil.String("DATABASE_DSN", ""),
		SQLitePath: envutil.String("SQLITE_PATH", "neurobridge-sync.db"),
		LogLevel:   gormLogger.Warn,
	}
}

type Service struct {
	db      *gorm.DB
	dialect Dialect
	log     *logger.Logger
}

func NewService(cfg Config, logg *logger.Logger) (*Service, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	serviceLog := logg.With("service", "DBService")

	level := cfg.LogLevel
	if level == 0 {
		level = gormLogger.Warn
	}
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gcfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	}

	if dsn := strings.TrimSpace(cfg.DSN); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), gcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		serviceLog.Info("database connected", "dialect", DialectPostgres)
		return &Service{db: db, dialect: DialectPostgres, log: serviceLog}, nil
	}

	path := strings.TrimSpace(cfg.SQLitePath)
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := OpenSQLite(path, gcfg)
	if err != nil {
		return nil, err
	}
	serviceLog.Info("database connected", "dialect", DialectSQLite, "path", path)
	return &Service{db: db, dialect: DialectSQLite, log: serviceLog}, nil
}

// OpenSQLite opens a SQLite database with WAL and foreign keys enabled. A nil
// config uses a silent logger.
func OpenSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	if gcfg == nil {
		gcfg = &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)}
	}
	db, err := gorm.Open(sqlite.Open(path), gcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if !strings.Contains(path, "memory") {
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	return db, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) Dialect() Dialect { return s.dialect }

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
