package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/neurobridge-sync/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-sync/internal/http/middleware"
	"github.com/yungbote/neurobridge-sync/internal/observability"
	"github.com/yungbote/neurobridge-sync/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AuthMiddleware *httpMW.AuthMiddleware

	// AuthHandler is only set when dev token minting is enabled.
	AuthHandler        *httpH.AuthHandler
	UserHandler        *httpH.UserHandler
	ProgressHandler    *httpH.ProgressHandler
	ActivityHandler    *httpH.ActivityHandler
	PreferencesHandler *httpH.PreferencesHandler
	ConsentHandler     *httpH.ConsentHandler
	RealtimeHandler    *httpH.RealtimeHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		if cfg.AuthHandler != nil {
			api.POST("/dev/token", cfg.AuthHandler.IssueDevToken)
		}
	}

	protected := api.Group("/")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}

	// Realtime (SSE)
	if cfg.RealtimeHandler != nil {
		protected.GET("/realtime/stream", cfg.RealtimeHandler.Stream)
	}

	users := protected.Group("/users/:id")
	if cfg.AuthMiddleware != nil {
		users.Use(cfg.AuthMiddleware.RequireSelf("id"))
	}
	{
		if cfg.UserHandler != nil {
			users.GET("", cfg.UserHandler.GetUser)
		}
		if cfg.ProgressHandler != nil {
			users.GET("/progress-summary", cfg.ProgressHandler.GetSummary)
			users.GET("/milestones", cfg.ProgressHandler.GetMilestones)
			users.GET("/peer-stats", cfg.ProgressHandler.GetPeerStats)
			users.GET("/predictions", cfg.ProgressHandler.GetPredictions)
		}
		if cfg.ActivityHandler != nil {
			users.GET("/activities", cfg.ActivityHandler.ListActivities)
			users.POST("/activities", cfg.ActivityHandler.RecordActivity)
			users.GET("/activity-summary", cfg.ActivityHandler.GetActivitySummary)
		}
		if cfg.PreferencesHandler != nil {
			users.GET("/preferences", cfg.PreferencesHandler.GetPreferences)
			users.PATCH("/preferences", cfg.PreferencesHandler.UpdatePreferences)
		}
		if cfg.ConsentHandler != nil {
			users.GET("/consent", cfg.ConsentHandler.GetConsent)
			users.POST("/consent", cfg.ConsentHandler.RecordConsent)
		}
	}

	return r
}
