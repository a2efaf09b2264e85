package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/primestride/atlas-backend/internal/http/handlers"
	httpMW "github.com/primestride/atlas-backend/internal/http/middleware"
	"github.com/primestride/atlas-backend/internal/observability"
	"github.com/primestride/atlas-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	Metrics        *observability.Metrics
	TracingEnabled bool

	AuthMiddleware   *httpMW.AuthMiddleware
	KnowledgeHandler *httpH.KnowledgeHandler
	HealthHandler    *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireAuth())
	}

	if h := cfg.KnowledgeHandler; h != nil {
		kn := api.Group("/knowledge")
		{
			kn.POST("/search", h.Search)
			kn.POST("/chat", h.Chat)
			kn.POST("/agent", h.Agent)
			kn.GET("/graph", h.Graph)
			kn.GET("/embeddings/status", h.RefreshStatus)
			if cfg.AuthMiddleware != nil {
				kn.POST("/embeddings/refresh", cfg.AuthMiddleware.RequireAdmin(), h.RefreshEmbeddings)
			}
		}
		api.POST("/projects/:id/chat", h.ProjectChat)
		api.GET("/documents/:id/related", h.RelatedDocuments)
	}

	return r
}
