package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/primestride/atlas-backend/internal/data/db"
	"github.com/primestride/atlas-backend/internal/http"
	"github.com/primestride/atlas-backend/internal/modules/knowledge"
	"github.com/primestride/atlas-backend/internal/observability"
	"github.com/primestride/atlas-backend/internal/platform/logger"
)

type App struct {
	Log       *logger.Logger
	DB        *db.Service
	Cfg       Config
	Clients   Clients
	Repos     Repos
	Knowledge knowledge.Usecases
	Metrics   *observability.Metrics
	Server    *http.Server

	otelShutdown func(context.Context) error
}

// NewLogger builds the process logger from LOG_MODE.
func NewLogger() (*logger.Logger, error) {
	LoadDotEnv()
	log, err := logger.New(LoadConfig(nil).LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// OpenDatabase connects and migrates the schema.
func OpenDatabase(log *logger.Logger, cfg Config) (*db.Service, error) {
	svc, err := db.NewService(log, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return svc, nil
}

func New(ctx context.Context) (*App, error) {
	log, err := NewLogger()
	if err != nil {
		return nil, err
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	shutdown := observability.InitOTel(ctx, log, cfg.Otel)
	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics()
	}

	dbsvc, err := OpenDatabase(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	clients, err := wireClients(log, cfg, metrics)
	if err != nil {
		_ = dbsvc.Close()
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(dbsvc.DB(), log, clients.Redis, cfg.ClusterNameCacheTTL)
	uc, err := wireKnowledge(log, cfg, clients, reposet, metrics)
	if err != nil {
		clients.Close()
		_ = dbsvc.Close()
		log.Sync()
		return nil, err
	}

	sqlDB, err := dbsvc.DB().DB()
	if err != nil {
		log.Warn("database health check unavailable", "error", err)
		sqlDB = nil
	}
	handlerset := wireHandlers(log, uc, sqlDB, clients)
	middleware := wireMiddleware(log, cfg)
	server := wireServer(log, cfg, handlerset, middleware, metrics)

	return &App{
		Log:          log,
		DB:           dbsvc,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Knowledge:    uc,
		Metrics:      metrics,
		Server:       server,
		otelShutdown: shutdown,
	}, nil
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := a.Cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	a.Log.Info("HTTP server listening", "addr", addr)
	return a.Server.Run(ctx, addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
