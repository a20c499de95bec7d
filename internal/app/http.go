package app

import (
	"github.com/yungbote/neurobridge-sync/internal/http"
	httpH "github.com/yungbote/neurobridge-sync/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-sync/internal/http/middleware"
	"github.com/yungbote/neurobridge-sync/internal/observability"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
	"github.com/yungbote/neurobridge-sync/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health      *httpH.HealthHandler
	Auth        *httpH.AuthHandler
	User        *httpH.UserHandler
	Progress    *httpH.ProgressHandler
	Activity    *httpH.ActivityHandler
	Preferences *httpH.PreferencesHandler
	Consent     *httpH.ConsentHandler
	Realtime    *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, cfg Config, services Services, hub *realtime.Hub, m *observability.Metrics, deps map[string]httpH.Pinger) Handlers {
	log.Info("Wiring handlers...")
	h := Handlers{
		Health:      httpH.NewHealthHandler(deps),
		User:        httpH.NewUserHandler(services.User),
		Progress:    httpH.NewProgressHandler(log, services.Progress),
		Activity:    httpH.NewActivityHandler(log, services.Activity, m),
		Preferences: httpH.NewPreferencesHandler(services.Preferences),
		Consent:     httpH.NewConsentHandler(services.Consent),
		Realtime:    httpH.NewRealtimeHandler(log, hub, m),
	}
	if cfg.DevAuth {
		h.Auth = httpH.NewAuthHandler(log, services.Auth, services.User)
	}
	return h
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func routerConfig(log *logger.Logger, cfg Config, m *observability.Metrics, handlers Handlers, middleware Middleware) http.RouterConfig {
	return http.RouterConfig{
		Log:                log,
		Metrics:            m,
		ServiceName:        cfg.ServiceName,
		AuthMiddleware:     middleware.Auth,
		AuthHandler:        handlers.Auth,
		UserHandler:        handlers.User,
		ProgressHandler:    handlers.Progress,
		ActivityHandler:    handlers.Activity,
		PreferencesHandler: handlers.Preferences,
		ConsentHandler:     handlers.Consent,
		RealtimeHandler:    handlers.Realtime,
		HealthHandler:      handlers.Health,
	}
}
