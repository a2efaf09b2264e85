package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"

	"github.com/primestride/atlas-backend/internal/data/repos"
	types "github.com/primestride/atlas-backend/internal/domain"
	"github.com/primestride/atlas-backend/internal/observability"
	"github.com/primestride/atlas-backend/internal/platform/dbctx"
	"github.com/primestride/atlas-backend/internal/platform/logger"
	"github.com/primestride/atlas-backend/internal/platform/openai"
)

type RefreshDeps struct {
	Log          *logger.Logger
	AI           openai.Client
	Orgs         repos.OrganizationRepo
	Docs         repos.DocumentRepo
	Embeddings   repos.EmbeddingRepo
	ClusterNames repos.ClusterNameRepo
	RefreshLog   repos.RefreshLogRepo
	Prompts      *Prompts
	Metrics      *observability.Metrics
	// Limiter throttles embedding calls across the worker pool. Optional.
	Limiter  *rate.Limiter
	Settings Settings
	Now      func() time.Time
}

type RefreshInput struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
}

type RefreshOutput struct {
	TotalDocuments   int  `json:"total_documents"`
	Considered       int  `json:"considered"`
	Processed        int  `json:"processed"`
	SkippedCooldown  int  `json:"skipped_cooldown"`
	SkippedNoContent int  `json:"skipped_no_content"`
	Errored          int  `json:"errored"`
	Truncated        int  `json:"truncated"`
	ClustersNamed    int  `json:"clusters_named"`
	RunsRemaining    int  `json:"runs_remaining"`
	DocsRemaining    int  `json:"docs_remaining"`
	Cancelled        bool `json:"cancelled,omitempty"`
}

// RefreshEmbeddings re-embeds an organization's documents within the trailing
// window budgets, then names topic clusters. Only the organization lookup and
// the rate-limit gate fail the call; per-document and naming failures are tallied.
//
// The budget check counts log rows before acting, so two concurrent calls can
// both pass it.
func RefreshEmbeddings(ctx context.Context, deps RefreshDeps, in RefreshInput) (RefreshOutput, error) {
	out := RefreshOutput{}
	if deps.Log == nil || deps.AI == nil || deps.Orgs == nil || deps.Docs == nil || deps.Embeddings == nil || deps.RefreshLog == nil {
		return out, fmt.Errorf("refresh_embeddings: missing deps")
	}
	if in.OrganizationID == uuid.Nil || in.UserID == uuid.Nil {
		return out, fmt.Errorf("refresh_embeddings: %w: missing organization_id or user_id", ErrInvalidInput)
	}
	cfg := deps.Settings.normalized()
	now := nowFunc(deps.Now)
	log := deps.Log.Ctx(ctx).With("step", "refresh_embeddings", "organization_id", in.OrganizationID, "user_id", in.UserID)

	ctx, span := observability.Tracer().Start(ctx, "knowledge.refresh")
	defer span.End()
	span.SetAttributes(attribute.String("organization_id", in.OrganizationID.String()))

	dbc := dbctx.Context{Ctx: ctx}
	if _, err := deps.Orgs.GetByID(dbc, in.OrganizationID); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return out, ErrOrganizationNotFound
		}
		return out, fmt.Errorf("refresh_embeddings: load organization: %w", err)
	}

	since := now().Add(-cfg.Window)
	runs, err := deps.RefreshLog.CountSince(dbc, in.OrganizationID, in.UserID, since)
	if err != nil {
		return out, fmt.Errorf("refresh_embeddings: count runs: %w", err)
	}
	docsUsed, err := deps.RefreshLog.SumDocsSince(dbc, in.OrganizationID, since)
	if err != nil {
		return out, fmt.Errorf("refresh_embeddings: sum documents: %w", err)
	}
	if limitErr := checkRefreshBudget(cfg, int(runs), int(docsUsed)); limitErr != nil {
		log.Info("refresh rejected by rate limit", "limit", limitErr.Limit, "runs", runs, "docs", docsUsed)
		span.SetStatus(codes.Error, "rate limited")
		return out, limitErr
	}

	docs, err := deps.Docs.ListByOrganization(dbc, in.OrganizationID, repos.AccessFilter{All: true})
	if err != nil {
		return out, fmt.Errorf("refresh_embeddings: list documents: %w", err)
	}
	out.TotalDocuments = len(docs)
	budget := cfg.MaxDocsPerOrg - int(docsUsed)
	if len(docs) > budget {
		docs = docs[:budget]
	}
	out.Considered = len(docs)

	ids := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	existing, err := deps.Embeddings.ListByDocumentIDs(dbc, in.OrganizationID, ids)
	if err != nil {
		return out, fmt.Errorf("refresh_embeddings: list embeddings: %w", err)
	}
	lastGenerated := make(map[uuid.UUID]time.Time, len(existing))
	for _, e := range existing {
		lastGenerated[e.DocumentID] = e.LastGeneratedAt
	}

	work := make([]*types.Document, 0, len(docs))
	for _, d := range docs {
		if isBlank(d.Content) {
			out.SkippedNoContent++
			continue
		}
		if at, ok := lastGenerated[d.ID]; ok && now().Sub(at) < cfg.Cooldown {
			out.SkippedCooldown++
			continue
		}
		work = append(work, d)
	}

	var processed, errored, truncated int32
	// in-flight embeddings finish even if ctx is cancelled
	callCtx := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(cfg.Concurrency)
	for _, d := range work {
		if ctx.Err() != nil {
			out.Cancelled = true
			break
		}
		doc := d
		g.Go(func() error {
			if deps.Limiter != nil {
				if err := deps.Limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			text, cut := embeddingInput(doc.Title, doc.Content, cfg.MaxEmbedChars)
			if cut {
				atomic.AddInt32(&truncated, 1)
				log.Warn("embedding input truncated", "document_id", doc.ID, "max_chars", cfg.MaxEmbedChars)
			}
			vec, err := deps.AI.Embed(callCtx, text)
			if err != nil {
				atomic.AddInt32(&errored, 1)
				log.Warn("embedding failed (continuing)", "document_id", doc.ID, "error", providerErr("embed", err))
				return nil
			}
			row := &types.DocumentEmbedding{
				DocumentID:      doc.ID,
				OrganizationID:  in.OrganizationID,
				Vector:          pgvector.NewVector(vec),
				LastGeneratedAt: now(),
			}
			if err := deps.Embeddings.Upsert(dbctx.Context{Ctx: callCtx}, row); err != nil {
				atomic.AddInt32(&errored, 1)
				log.Warn("embedding upsert failed (continuing)", "document_id", doc.ID, "error", err)
				return nil
			}
			atomic.AddInt32(&processed, 1)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		out.Cancelled = true
	}

	out.Processed = int(atomic.LoadInt32(&processed))
	out.Errored = int(atomic.LoadInt32(&errored))
	out.Truncated = int(atomic.LoadInt32(&truncated))

	if !out.Cancelled && deps.ClusterNames != nil {
		named, err := NameClusters(ctx, ClusterNamingDeps{
			Log:          deps.Log,
			AI:           deps.AI,
			Docs:         deps.Docs,
			Embeddings:   deps.Embeddings,
			ClusterNames: deps.ClusterNames,
			Prompts:      deps.Prompts,
		}, in.OrganizationID)
		if err != nil {
			log.Warn("cluster naming failed (ignored)", "error", err)
		}
		out.ClustersNamed = named
	}

	bookCtx := dbctx.Context{Ctx: callCtx}
	meta, _ := json.Marshal(map[string]any{
		"considered":         out.Considered,
		"skipped_cooldown":   out.SkippedCooldown,
		"skipped_no_content": out.SkippedNoContent,
		"errored":            out.Errored,
		"cancelled":          out.Cancelled,
	})
	if err := deps.RefreshLog.Insert(bookCtx, &types.RefreshLogEntry{
		OrganizationID:     in.OrganizationID,
		UserID:             in.UserID,
		DocumentsProcessed: out.Processed,
		Metadata:           datatypes.JSON(meta),
		CreatedAt:          now(),
	}); err != nil {
		log.Error("refresh log insert failed", "error", err)
	}
	if err := deps.Orgs.UpsertEmbeddingState(bookCtx, in.OrganizationID, now(), in.UserID); err != nil {
		log.Warn("embedding state update failed", "error", err)
	}

	out.RunsRemaining = nonNegative(cfg.MaxRunsPerUser - int(runs) - 1)
	out.DocsRemaining = nonNegative(cfg.MaxDocsPerOrg - int(docsUsed) - out.Processed)

	deps.Metrics.AddRefreshDocuments("processed", out.Processed)
	deps.Metrics.AddRefreshDocuments("skipped_cooldown", out.SkippedCooldown)
	deps.Metrics.AddRefreshDocuments("skipped_no_content", out.SkippedNoContent)
	deps.Metrics.AddRefreshDocuments("errored", out.Errored)

	span.SetAttributes(
		attribute.Int("documents.processed", out.Processed),
		attribute.Int("documents.errored", out.Errored),
	)
	log.Info("refresh finished",
		"processed", out.Processed,
		"skipped_cooldown", out.SkippedCooldown,
		"skipped_no_content", out.SkippedNoContent,
		"errored", out.Errored,
		"clusters_named", out.ClustersNamed,
		"cancelled", out.Cancelled,
	)
	return out, nil
}

// checkRefreshBudget applies both trailing-window limits.
func checkRefreshBudget(cfg Settings, runs, docsUsed int) *RateLimitError {
	e := &RateLimitError{
		RunsUsed:      runs,
		RunsRemaining: nonNegative(cfg.MaxRunsPerUser - runs),
		DocsUsed:      docsUsed,
		DocsRemaining: nonNegative(cfg.MaxDocsPerOrg - docsUsed),
	}
	switch {
	case runs >= cfg.MaxRunsPerUser:
		e.Limit = LimitPerUser
	case docsUsed >= cfg.MaxDocsPerOrg:
		e.Limit = LimitPerOrg
	default:
		return nil
	}
	return e
}

func nowFunc(f func() time.Time) func() time.Time {
	if f != nil {
		return func() time.Time { return f().UTC() }
	}
	return func() time.Time { return time.Now().UTC() }
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
