package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/primestride/atlas-backend/internal/data/repos"
	types "github.com/primestride/atlas-backend/internal/domain"
	"github.com/primestride/atlas-backend/internal/observability"
	"github.com/primestride/atlas-backend/internal/platform/dbctx"
	"github.com/primestride/atlas-backend/internal/platform/logger"
	"github.com/primestride/atlas-backend/internal/platform/openai"
)

const (
	clusterNameMaxTitles = 15
	clusterNameMaxWords  = 4
	clusterNameMaxRunes  = 60
)

type ClusterNamingDeps struct {
	Log          *logger.Logger
	AI           openai.Client
	Docs         repos.DocumentRepo
	Embeddings   repos.EmbeddingRepo
	ClusterNames repos.ClusterNameRepo
	Prompts      *Prompts
}

// ClusterOrganization runs k-means over every current embedding of the
// organization, in store order. Fewer than two embeddings yield no clusters.
func ClusterOrganization(dbc dbctx.Context, embeddings repos.EmbeddingRepo, orgID uuid.UUID) ([][]uuid.UUID, error) {
	rows, err := embeddings.ListByOrganization(dbc, orgID)
	if err != nil {
		return nil, err
	}
	return clusterRows(rows), nil
}

func clusterRows(rows []*types.DocumentEmbedding) [][]uuid.UUID {
	if len(rows) < 2 {
		return nil
	}
	points := make([]Point, 0, len(rows))
	for _, r := range rows {
		points = append(points, Point{ID: r.DocumentID, Vector: r.Values()})
	}
	return KMeans(points, ChooseK(len(points)), defaultKMeansIterations)
}

// NameClusters labels each non-empty cluster from its member titles. A failed
// label is logged and skipped. Names left from earlier runs for indices not
// labeled now are removed, since their clusters have different members. It
// returns how many names were stored.
func NameClusters(ctx context.Context, deps ClusterNamingDeps, orgID uuid.UUID) (int, error) {
	if deps.Log == nil || deps.AI == nil || deps.Docs == nil || deps.Embeddings == nil || deps.ClusterNames == nil {
		return 0, fmt.Errorf("name_clusters: missing deps")
	}
	ctx, span := observability.Tracer().Start(ctx, "knowledge.cluster")
	defer span.End()

	log := deps.Log.Ctx(ctx).With("step", "name_clusters", "organization_id", orgID)
	dbc := dbctx.Context{Ctx: ctx}
	clusters, err := ClusterOrganization(dbc, deps.Embeddings, orgID)
	if err != nil {
		return 0, fmt.Errorf("name_clusters: cluster: %w", err)
	}
	if len(clusters) == 0 {
		if err := deps.ClusterNames.DeleteExcept(dbc, orgID, nil); err != nil {
			log.Warn("stale cluster name cleanup failed", "error", err)
		}
		return 0, nil
	}
	span.SetAttributes(attribute.Int("clusters.k", len(clusters)))

	all := make([]uuid.UUID, 0)
	for _, c := range clusters {
		all = append(all, c...)
	}
	docs, err := deps.Docs.GetContentByIDs(dbc, orgID, all)
	if err != nil {
		return 0, fmt.Errorf("name_clusters: load titles: %w", err)
	}
	byID := make(map[uuid.UUID]*types.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	p := promptsOrDefault(deps.Prompts)
	named := 0
	kept := make([]int, 0, len(clusters))
	defer func() {
		if err := deps.ClusterNames.DeleteExcept(dbc, orgID, kept); err != nil {
			log.Warn("stale cluster name cleanup failed", "error", err)
		}
	}()
	for idx, members := range clusters {
		if len(members) == 0 {
			continue
		}
		titles := make([]string, 0, clusterNameMaxTitles)
		for _, id := range members {
			if d := byID[id]; d != nil && strings.TrimSpace(d.Title) != "" {
				titles = append(titles, "- "+strings.TrimSpace(d.Title))
			}
			if len(titles) == clusterNameMaxTitles {
				break
			}
		}
		if len(titles) == 0 {
			continue
		}
		raw, err := deps.AI.Complete(ctx, openai.CompletionRequest{
			System: p.Prompts.ClusterNameSystem,
			Messages: []openai.Message{{
				Role:    openai.RoleUser,
				Content: render(p.Prompts.ClusterNameUser, map[string]string{"titles": strings.Join(titles, "\n")}),
			}},
			MaxOutputTokens: ClusterNameMaxTokens,
			Temperature:     0.3,
		})
		if err != nil {
			log.Warn("cluster label generation failed", "cluster_index", idx, "error", providerErr("complete", err))
			continue
		}
		name := cleanClusterName(raw)
		if name == "" {
			continue
		}
		if err := deps.ClusterNames.Upsert(dbc, orgID, idx, name); err != nil {
			log.Warn("cluster name upsert failed", "cluster_index", idx, "error", err)
			continue
		}
		kept = append(kept, idx)
		named++
	}
	return named, nil
}

// cleanClusterName keeps the first line, strips quotes and trailing
// punctuation, and caps the label at four words.
func cleanClusterName(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	const quotes = " \t\"'`*“”「」"
	s = strings.Trim(s, quotes)
	s = strings.TrimRight(s, ".。!?:;,")
	s = strings.Trim(s, quotes)
	words := strings.Fields(s)
	if len(words) > clusterNameMaxWords {
		words = words[:clusterNameMaxWords]
	}
	s = strings.Join(words, " ")
	if r := []rune(s); len(r) > clusterNameMaxRunes {
		s = string(r[:clusterNameMaxRunes])
	}
	return s
}
