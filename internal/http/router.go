package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/notebook-backend/internal/http/handlers"
	httpMW "github.com/yungbote/notebook-backend/internal/http/middleware"
	"github.com/yungbote/notebook-backend/internal/observability"
	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	CORSOrigins []string

	SessionHandler  *httpH.SessionHandler
	DocumentHandler *httpH.DocumentHandler
	ChatHandler     *httpH.ChatHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("notebook-backend"))
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics())
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if m := observability.Current(); m.Enabled() {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := r.Group("/api")
	{
		if cfg.SessionHandler != nil {
			api.POST("/sessions", cfg.SessionHandler.Create)
			api.GET("/sessions", cfg.SessionHandler.List)
			api.GET("/sessions/:id", cfg.SessionHandler.Get)
			api.DELETE("/sessions/:id", cfg.SessionHandler.Delete)
		}

		if cfg.DocumentHandler != nil {
			api.POST("/sessions/:id/documents", cfg.DocumentHandler.Upload)
			api.GET("/sessions/:id/documents", cfg.DocumentHandler.List)
			api.GET("/documents/:id", cfg.DocumentHandler.Get)
		}

		if cfg.ChatHandler != nil {
			api.POST("/sessions/:id/chat", cfg.ChatHandler.Stream)
			api.GET("/sessions/:id/messages", cfg.ChatHandler.ListMessages)
		}

		if cfg.RealtimeHandler != nil {
			api.GET("/sessions/:id/events", cfg.RealtimeHandler.SessionEvents)
		}
	}

	return r
}
