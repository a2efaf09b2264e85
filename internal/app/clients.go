package app

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/primestride/atlas-backend/internal/observability"
	"github.com/primestride/atlas-backend/internal/platform/logger"
	"github.com/primestride/atlas-backend/internal/platform/openai"
	"github.com/primestride/atlas-backend/internal/platform/redis"
)

type Clients struct {
	// Redis is nil when REDIS_ADDR is unset.
	Redis  *goredis.Client
	OpenAI openai.Client
}

func wireClients(log *logger.Logger, cfg Config, metrics *observability.Metrics) (Clients, error) {
	log.Info("Wiring clients...")

	rdb, err := redis.NewClient(log, cfg.Redis)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}

	ai, err := openai.NewClient(log, cfg.OpenAI, metrics)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	return Clients{
		Redis:  rdb,
		OpenAI: ai,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
