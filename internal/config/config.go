package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/envutil"
)

// Features are the experimental dashboards a deployment may switch on.
type Features struct {
	PeerComparison bool `yaml:"peer_comparison"`
	Predictions    bool `yaml:"predictions"`
}

type FlagsFile struct {
	SiteKey  string   `yaml:"site_key"`
	Features Features `yaml:"features"`
}

type Config struct {
	UserServiceURL string
	RealtimeURL    string
	Token          string
	UserID         string

	// SiteKey is handed to challenge widgets; the sync layer only carries it.
	SiteKey  string
	Features Features

	SummaryRange   domain.SummaryRange
	CacheTTL       time.Duration
	RequestTimeout time.Duration
	TrendEpsilon   float64
	SearchDebounce time.Duration
	SaveDebounce   time.Duration
	MaxReconnects  int
	LocalDBPath    string
	LogMode        string
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv reads configuration from the environment, then overlays the YAML
// flags file named by SYNC_FLAGS_FILE when present. Environment flags win
// over the file.
func FromEnv() (Config, error) {
	base := envutil.String("USER_SERVICE_URL", "http://localhost:8080")
	cfg := Config{
		UserServiceURL: base,
		RealtimeURL:    envutil.String("REALTIME_URL", base),
		Token:          envutil.String("USER_SERVICE_TOKEN", ""),
		UserID:         envutil.String("SYNC_USER_ID", ""),
		CacheTTL:       envutil.Duration("SYNC_CACHE_TTL", 5*time.Minute),
		RequestTimeout: envutil.Duration("USER_SERVICE_TIMEOUT", 10*time.Second),
		TrendEpsilon:   envutil.Float("SYNC_TREND_EPSILON", 0.02),
		SearchDebounce: envutil.Duration("SYNC_SEARCH_DEBOUNCE", 300*time.Millisecond),
		SaveDebounce:   envutil.Duration("SYNC_SAVE_DEBOUNCE", time.Second),
		MaxReconnects:  envutil.Int("REALTIME_MAX_ATTEMPTS", 0),
		LocalDBPath:    envutil.String("SYNC_LOCAL_DB", "neurobridge-sync-local.db"),
		LogMode:        envutil.String("LOG_MODE", "development"),
	}
	r, err := domain.ParseSummaryRange(envutil.String("SYNC_SUMMARY_RANGE", ""))
	if err != nil {
		return Config{}, fmt.Errorf("SYNC_SUMMARY_RANGE: %w", err)
	}
	cfg.SummaryRange = r

	if path := strings.TrimSpace(os.Getenv("SYNC_FLAGS_FILE")); path != "" {
		ff, err := ReadFlagsFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.SiteKey = ff.SiteKey
		cfg.Features = ff.Features
	}
	if v := strings.TrimSpace(os.Getenv("SYNC_SITE_KEY")); v != "" {
		cfg.SiteKey = v
	}
	cfg.Features.PeerComparison = envutil.Bool("FEATURE_PEER_COMPARISON", cfg.Features.PeerComparison)
	cfg.Features.Predictions = envutil.Bool("FEATURE_PREDICTIONS", cfg.Features.Predictions)

	if cfg.TrendEpsilon < 0 {
		return Config{}, fmt.Errorf("SYNC_TREND_EPSILON must be >= 0, got %v", cfg.TrendEpsilon)
	}
	return cfg, nil
}

func ReadFlagsFile(path string) (FlagsFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FlagsFile{}, fmt.Errorf("read flags file: %w", err)
	}
	var ff FlagsFile
	if err := yaml.Unmarshal(raw, &ff); err != nil {
		return FlagsFile{}, fmt.Errorf("parse flags file %s: %w", path, err)
	}
	return ff, nil
}
