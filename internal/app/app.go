package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-sync/internal/data/db"
	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/http"
	httpH "github.com/yungbote/neurobridge-sync/internal/http/handlers"
	"github.com/yungbote/neurobridge-sync/internal/observability"
	"github.com/yungbote/neurobridge-sync/internal/platform/envutil"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
	"github.com/yungbote/neurobridge-sync/internal/realtime"
	"github.com/yungbote/neurobridge-sync/internal/realtime/bus"
)

// App is the development user service: the REST surface and realtime stream
// that the sync layer talks to.
type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *gorm.DB
	Hub      *realtime.Hub
	Bus      bus.Bus
	Services Services
	Metrics  *observability.Metrics
	Server   *http.Server

	dbSvc        *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// New loads configuration from the environment and wires the app.
func New() (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	a, err := NewWithConfig(cfg, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

func NewWithConfig(cfg Config, log *logger.Logger) (*App, error) {
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.LogMode,
	})
	metrics := observability.Init(log)

	dbSvc, err := db.NewService(cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	if err := dbSvc.AutoMigrate(); err != nil {
		_ = dbSvc.Close()
		return nil, fmt.Errorf("db automigrate: %w", err)
	}

	hub := realtime.NewHub(log, cfg.Heartbeat)
	hub.OnDrop = func(realtime.Message) { metrics.IncEventDropped() }

	var (
		b    bus.Bus
		emit realtime.Emitter = &realtime.HubEmitter{Hub: hub}
	)
	if cfg.Redis.Addr != "" {
		b, err = bus.NewRedisBus(log, cfg.Redis)
		if err != nil {
			_ = dbSvc.Close()
			return nil, fmt.Errorf("init realtime bus: %w", err)
		}
		emit = &realtime.PublishEmitter{Bus: b, Fallback: hub}
	}
	emit = &realtime.CountingEmitter{
		Next:  emit,
		Count: func(t domain.EventType) { metrics.IncEventEmitted(string(t)) },
	}

	serviceset, err := WireServices(dbSvc.DB(), log, cfg, emit)
	if err != nil {
		if b != nil {
			_ = b.Close()
		}
		_ = dbSvc.Close()
		return nil, err
	}

	deps := map[string]httpH.Pinger{"db": dbSvc}
	if b != nil {
		deps["redis"] = b
	}
	handlerset := wireHandlers(log, cfg, serviceset, hub, metrics, deps)
	middleware := wireMiddleware(log, serviceset)
	server := http.NewServer(routerConfig(log, cfg, metrics, handlerset, middleware))

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           dbSvc.DB(),
		Hub:          hub,
		Bus:          b,
		Services:     serviceset,
		Metrics:      metrics,
		Server:       server,
		dbSvc:        dbSvc,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches background work: the bus forwarder and metric collectors.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Bus != nil {
		if err := a.Bus.StartForwarder(ctx, a.Hub.Broadcast); err != nil {
			return fmt.Errorf("start realtime forwarder: %w", err)
		}
	}
	a.Metrics.StartDBCollector(ctx, a.Log, a.DB)
	a.Metrics.StartRedisCollector(ctx, a.Log, a.Cfg.Redis.Addr)
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.Start(); err != nil {
		return err
	}
	a.Log.Info("dev user service listening", "addr", a.Cfg.Addr, "dev_auth", a.Cfg.DevAuth)
	return a.Server.Run(a.Cfg.Addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("http shutdown failed", "error", err)
		}
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.dbSvc != nil {
		_ = a.dbSvc.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
