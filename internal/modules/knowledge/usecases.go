package knowledge

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/primestride/atlas-backend/internal/data/repos"
	"github.com/primestride/atlas-backend/internal/modules/knowledge/steps"
	"github.com/primestride/atlas-backend/internal/observability"
	"github.com/primestride/atlas-backend/internal/platform/logger"
	"github.com/primestride/atlas-backend/internal/platform/openai"
)

type UsecasesDeps struct {
	Log *logger.Logger

	AI openai.Client

	Orgs         repos.OrganizationRepo
	Docs         repos.DocumentRepo
	Embeddings   repos.EmbeddingRepo
	ClusterNames repos.ClusterNameRepo
	RefreshLog   repos.RefreshLogRepo

	Prompts  *steps.Prompts
	Metrics  *observability.Metrics
	Limiter  *rate.Limiter
	Settings steps.Settings
	Now      func() time.Time
}

type Usecases struct {
	deps UsecasesDeps
}

func New(deps UsecasesDeps) Usecases {
	if deps.Prompts == nil {
		deps.Prompts = steps.DefaultPrompts()
	}
	return Usecases{deps: deps}
}

func (u Usecases) WithLog(log *logger.Logger) Usecases {
	u.deps.Log = log
	return u
}

func (u Usecases) Prompts() *steps.Prompts { return u.deps.Prompts }

type (
	Mode = steps.Mode

	RefreshInput  = steps.RefreshInput
	RefreshOutput = steps.RefreshOutput

	StatusInput  = steps.StatusInput
	StatusOutput = steps.StatusOutput

	SearchInput  = steps.SearchInput
	SearchOutput = steps.SearchOutput

	AnswerInput        = steps.AnswerInput
	ProjectAnswerInput = steps.ProjectAnswerInput
	AnswerOutput       = steps.AnswerOutput
	AgentOutput        = steps.AgentOutput
	ChatTurn           = steps.ChatTurn
	Source             = steps.Source

	GraphInput   = steps.GraphInput
	GraphOutput  = steps.GraphOutput
	RelatedInput = steps.RelatedInput

	RateLimitError = steps.RateLimitError
	AccessFilter   = repos.AccessFilter
)

func (u Usecases) RefreshEmbeddings(ctx context.Context, in RefreshInput) (RefreshOutput, error) {
	return steps.RefreshEmbeddings(ctx, steps.RefreshDeps{
		Log:          u.deps.Log,
		AI:           u.deps.AI,
		Orgs:         u.deps.Orgs,
		Docs:         u.deps.Docs,
		Embeddings:   u.deps.Embeddings,
		ClusterNames: u.deps.ClusterNames,
		RefreshLog:   u.deps.RefreshLog,
		Prompts:      u.deps.Prompts,
		Metrics:      u.deps.Metrics,
		Limiter:      u.deps.Limiter,
		Settings:     u.deps.Settings,
		Now:          u.deps.Now,
	}, in)
}

func (u Usecases) RefreshStatus(ctx context.Context, in StatusInput) (StatusOutput, error) {
	return steps.RefreshStatus(ctx, steps.StatusDeps{
		Orgs:       u.deps.Orgs,
		Docs:       u.deps.Docs,
		Embeddings: u.deps.Embeddings,
		RefreshLog: u.deps.RefreshLog,
		Settings:   u.deps.Settings,
		Now:        u.deps.Now,
	}, in)
}

func (u Usecases) Search(ctx context.Context, in SearchInput) (SearchOutput, error) {
	return steps.Search(ctx, steps.SearchDeps{
		Log:        u.deps.Log,
		AI:         u.deps.AI,
		Docs:       u.deps.Docs,
		Embeddings: u.deps.Embeddings,
		Metrics:    u.deps.Metrics,
	}, in)
}

func (u Usecases) answerDeps() steps.AnswerDeps {
	return steps.AnswerDeps{
		Log:        u.deps.Log,
		AI:         u.deps.AI,
		Orgs:       u.deps.Orgs,
		Docs:       u.deps.Docs,
		Embeddings: u.deps.Embeddings,
		Prompts:    u.deps.Prompts,
		Metrics:    u.deps.Metrics,
	}
}

func (u Usecases) Chat(ctx context.Context, in AnswerInput) (AnswerOutput, error) {
	return steps.Answer(ctx, u.answerDeps(), in)
}

func (u Usecases) ProjectChat(ctx context.Context, in ProjectAnswerInput) (AnswerOutput, error) {
	return steps.ProjectAnswer(ctx, u.answerDeps(), in)
}

func (u Usecases) Agent(ctx context.Context, in AnswerInput) (AgentOutput, error) {
	return steps.AgentAnswer(ctx, u.answerDeps(), in)
}

func (u Usecases) graphDeps() steps.GraphDeps {
	return steps.GraphDeps{
		Log:          u.deps.Log,
		Docs:         u.deps.Docs,
		Embeddings:   u.deps.Embeddings,
		ClusterNames: u.deps.ClusterNames,
	}
}

func (u Usecases) Graph(ctx context.Context, in GraphInput) (GraphOutput, error) {
	return steps.BuildGraph(ctx, u.graphDeps(), in)
}

func (u Usecases) RelatedDocuments(ctx context.Context, in RelatedInput) ([]Source, error) {
	return steps.RelatedDocuments(ctx, u.graphDeps(), in)
}
