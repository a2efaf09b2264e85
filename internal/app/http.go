package app

import (
	"database/sql"

	"github.com/gin-gonic/gin"

	"github.com/primestride/atlas-backend/internal/http"
	httpH "github.com/primestride/atlas-backend/internal/http/handlers"
	httpMW "github.com/primestride/atlas-backend/internal/http/middleware"
	"github.com/primestride/atlas-backend/internal/modules/knowledge"
	"github.com/primestride/atlas-backend/internal/observability"
	"github.com/primestride/atlas-backend/internal/platform/logger"
	"github.com/primestride/atlas-backend/internal/platform/redis"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health    *httpH.HealthHandler
	Knowledge *httpH.KnowledgeHandler
}

func wireHandlers(log *logger.Logger, uc knowledge.Usecases, sqlDB *sql.DB, clients Clients) Handlers {
	log.Info("Wiring handlers...")
	checks := map[string]httpH.Pinger{}
	if sqlDB != nil {
		checks["database"] = sqlDB
	}
	if clients.Redis != nil {
		checks["redis"] = redis.Pinger{Client: clients.Redis}
	}
	return Handlers{
		Health:    httpH.NewHealthHandler(checks),
		Knowledge: httpH.NewKnowledgeHandler(log, uc),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics) *http.Server {
	gin.SetMode(cfg.GinMode)
	return http.NewServer(http.RouterConfig{
		Log:              log,
		ServiceName:      cfg.Otel.ServiceName,
		AllowedOrigins:   cfg.AllowedOrigins,
		Metrics:          metrics,
		TracingEnabled:   cfg.Otel.Enabled,
		AuthMiddleware:   middleware.Auth,
		KnowledgeHandler: handlers.Knowledge,
		HealthHandler:    handlers.Health,
	})
}
