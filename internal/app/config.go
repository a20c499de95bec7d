package app

import (
	"errors"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-sync/internal/data/db"
	"github.com/yungbote/neurobridge-sync/internal/platform/envutil"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
	"github.com/yungbote/neurobridge-sync/internal/realtime"
	"github.com/yungbote/neurobridge-sync/internal/realtime/bus"
	"github.com/yungbote/neurobridge-sync/internal/services"
)

// Config is the dev server's environment.
type Config struct {
	Addr           string
	LogMode        string
	ServiceName    string
	JWTSecretKey   string
	AccessTokenTTL time.Duration
	// DevAuth routes POST /api/dev/token, which mints a token for any user id.
	DevAuth   bool
	Heartbeat time.Duration
	DB        db.Config
	Redis     bus.RedisOptions
}

const defaultSecret = "defaultsecret"

func LoadConfig(log *logger.Logger) (Config, error) {
	port := envutil.String("PORT", "8080")
	cfg := Config{
		Addr:           envutil.String("ADDR", ":"+strings.TrimPrefix(port, ":")),
		LogMode:        envutil.String("LOG_MODE", "development"),
		ServiceName:    envutil.String("SERVICE_NAME", "neurobridge-sync-devserver"),
		JWTSecretKey:   envutil.String("JWT_SECRET_KEY", defaultSecret),
		AccessTokenTTL: envutil.Duration("ACCESS_TOKEN_TTL", services.DefaultAccessTTL),
		DevAuth:        envutil.Bool("DEV_AUTH", true),
		Heartbeat:      envutil.Duration("REALTIME_HEARTBEAT", realtime.DefaultHeartbeat),
		DB:             db.ConfigFromEnv(),
		Redis:          bus.RedisOptionsFromEnv(),
	}
	if cfg.AccessTokenTTL <= 0 {
		return cfg, errors.New("ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.JWTSecretKey == defaultSecret && log != nil {
		log.Warn("JWT_SECRET_KEY not set; using the development default")
	}
	return cfg, nil
}
