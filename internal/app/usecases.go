package app

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/primestride/atlas-backend/internal/modules/knowledge"
	"github.com/primestride/atlas-backend/internal/modules/knowledge/steps"
	"github.com/primestride/atlas-backend/internal/observability"
	"github.com/primestride/atlas-backend/internal/platform/logger"
)

func wireKnowledge(log *logger.Logger, cfg Config, clients Clients, reposet Repos, metrics *observability.Metrics) (knowledge.Usecases, error) {
	log.Info("Wiring knowledge usecases...")
	prompts, err := steps.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return knowledge.Usecases{}, fmt.Errorf("load prompts: %w", err)
	}
	var limiter *rate.Limiter
	if cfg.EmbedRequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbedRequestsPerSec), 1)
	}
	return knowledge.New(knowledge.UsecasesDeps{
		Log:          log.With("module", "knowledge"),
		AI:           clients.OpenAI,
		Orgs:         reposet.Organization,
		Docs:         reposet.Document,
		Embeddings:   reposet.Embedding,
		ClusterNames: reposet.ClusterName,
		RefreshLog:   reposet.RefreshLog,
		Prompts:      prompts,
		Metrics:      metrics,
		Limiter:      limiter,
		Settings:     cfg.Knowledge,
	}), nil
}
