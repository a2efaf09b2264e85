package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/primestride/atlas-backend/internal/data/repos"
	"github.com/primestride/atlas-backend/internal/platform/dbctx"
)

const statusRecentRuns = 5

type StatusDeps struct {
	Orgs       repos.OrganizationRepo
	Docs       repos.DocumentRepo
	Embeddings repos.EmbeddingRepo
	RefreshLog repos.RefreshLogRepo
	Settings   Settings
	Now        func() time.Time
}

type StatusInput struct {
	OrganizationID uuid.UUID
	UserID         uuid.UUID
}

type RefreshRun struct {
	UserID             uuid.UUID `json:"user_id"`
	DocumentsProcessed int       `json:"documents_processed"`
	CreatedAt          time.Time `json:"created_at"`
}

type StatusOutput struct {
	LastFullRefresh   *time.Time   `json:"last_full_refresh,omitempty"`
	LastRefreshBy     *uuid.UUID   `json:"last_refresh_by,omitempty"`
	LatestEmbeddingAt *time.Time   `json:"latest_embedding_at,omitempty"`
	TotalDocuments    int64        `json:"total_documents"`
	EmbeddedDocuments int64        `json:"embedded_documents"`
	RunsUsed          int          `json:"runs_used"`
	RunsRemaining     int          `json:"runs_remaining"`
	DocsUsed          int          `json:"docs_used"`
	DocsRemaining     int          `json:"docs_remaining"`
	WindowHours       int          `json:"window_hours"`
	CooldownHours     int          `json:"cooldown_hours"`
	RecentRuns        []RefreshRun `json:"recent_runs"`
}

// RefreshStatus reports the organization's embedding coverage and what is
// left of the caller's refresh budgets.
func RefreshStatus(ctx context.Context, deps StatusDeps, in StatusInput) (StatusOutput, error) {
	out := StatusOutput{RecentRuns: []RefreshRun{}}
	if deps.Orgs == nil || deps.Docs == nil || deps.Embeddings == nil || deps.RefreshLog == nil {
		return out, fmt.Errorf("refresh_status: missing deps")
	}
	if in.OrganizationID == uuid.Nil {
		return out, fmt.Errorf("refresh_status: %w: missing organization_id", ErrInvalidInput)
	}
	cfg := deps.Settings.normalized()
	now := nowFunc(deps.Now)
	dbc := dbctx.Context{Ctx: ctx}

	if _, err := loadOrganization(dbc, deps.Orgs, in.OrganizationID); err != nil {
		return out, err
	}
	state, err := deps.Orgs.GetEmbeddingState(dbc, in.OrganizationID)
	if err != nil {
		return out, fmt.Errorf("refresh_status: state: %w", err)
	}
	if state != nil {
		at := state.LastFullRefresh.UTC()
		by := state.LastRefreshBy
		out.LastFullRefresh = &at
		out.LastRefreshBy = &by
	}
	if out.TotalDocuments, err = deps.Docs.CountByOrganization(dbc, in.OrganizationID); err != nil {
		return out, fmt.Errorf("refresh_status: count documents: %w", err)
	}
	if out.EmbeddedDocuments, err = deps.Embeddings.CountByOrganization(dbc, in.OrganizationID); err != nil {
		return out, fmt.Errorf("refresh_status: count embeddings: %w", err)
	}
	if out.LatestEmbeddingAt, err = deps.Embeddings.LatestGeneratedAt(dbc, in.OrganizationID); err != nil {
		return out, fmt.Errorf("refresh_status: latest embedding: %w", err)
	}

	since := now().Add(-cfg.Window)
	if in.UserID != uuid.Nil {
		runs, err := deps.RefreshLog.CountSince(dbc, in.OrganizationID, in.UserID, since)
		if err != nil {
			return out, fmt.Errorf("refresh_status: count runs: %w", err)
		}
		out.RunsUsed = int(runs)
	}
	docs, err := deps.RefreshLog.SumDocsSince(dbc, in.OrganizationID, since)
	if err != nil {
		return out, fmt.Errorf("refresh_status: sum documents: %w", err)
	}
	out.DocsUsed = int(docs)
	out.RunsRemaining = nonNegative(cfg.MaxRunsPerUser - out.RunsUsed)
	out.DocsRemaining = nonNegative(cfg.MaxDocsPerOrg - out.DocsUsed)
	out.WindowHours = int(cfg.Window / time.Hour)
	out.CooldownHours = int(cfg.Cooldown / time.Hour)

	recent, err := deps.RefreshLog.ListRecent(dbc, in.OrganizationID, statusRecentRuns)
	if err != nil {
		return out, fmt.Errorf("refresh_status: recent runs: %w", err)
	}
	for _, r := range recent {
		out.RecentRuns = append(out.RecentRuns, RefreshRun{
			UserID:             r.UserID,
			DocumentsProcessed: r.DocumentsProcessed,
			CreatedAt:          r.CreatedAt.UTC(),
		})
	}
	return out, nil
}
