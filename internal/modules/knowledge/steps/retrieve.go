package steps

import (
	"context"
	"fmt"
	"sort"
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

// Candidate is a document with its current embedding.
type Candidate struct {
	Doc    *types.Document
	Vector []float32
}

type Scored struct {
	Doc   *types.Document
	Score float64
}

// RankSemantic keeps candidates whose similarity to query is strictly above
// threshold, best first, at most topN (topN <= 0 keeps all). Ties keep input order.
func RankSemantic(query []float32, cands []Candidate, threshold float64, topN int) []Scored {
	out := make([]Scored, 0, len(cands))
	for _, c := range cands {
		if c.Doc == nil {
			continue
		}
		sim := CosineSimilarity(query, c.Vector)
		if sim <= threshold {
			continue
		}
		out = append(out, Scored{Doc: c.Doc, Score: sim})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

type SearchDeps struct {
	Log        *logger.Logger
	AI         openai.Client
	Docs       repos.DocumentRepo
	Embeddings repos.EmbeddingRepo
	Metrics    *observability.Metrics
}

type SearchInput struct {
	OrganizationID uuid.UUID
	Access         repos.AccessFilter
	Query          string
	Mode           Mode
	Limit          int
}

type SearchOutput struct {
	Mode    Mode              `json:"mode"`
	Results []RetrievalResult `json:"results"`
}

// Search ranks the caller's accessible documents. ModeAuto uses semantic
// ranking when any candidate has an embedding, keyword ranking otherwise.
func Search(ctx context.Context, deps SearchDeps, in SearchInput) (SearchOutput, error) {
	out := SearchOutput{Results: []RetrievalResult{}}
	if deps.Log == nil || deps.Docs == nil || deps.Embeddings == nil {
		return out, fmt.Errorf("search: missing deps")
	}
	query := strings.TrimSpace(in.Query)
	if in.OrganizationID == uuid.Nil || query == "" {
		return out, fmt.Errorf("search: %w: organization and query are required", ErrInvalidInput)
	}
	mode, ok := ParseMode(string(in.Mode))
	if !ok {
		return out, fmt.Errorf("search: %w: unknown mode %q", ErrInvalidInput, in.Mode)
	}
	limit := in.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	ctx, span := observability.Tracer().Start(ctx, "knowledge.search")
	defer span.End()

	dbc := dbctx.Context{Ctx: ctx}
	docs, err := deps.Docs.ListByOrganization(dbc, in.OrganizationID, in.Access)
	if err != nil {
		return out, fmt.Errorf("search: list documents: %w", err)
	}

	var cands []Candidate
	if mode != ModeKeyword {
		cands, err = loadCandidates(dbc, deps.Embeddings, in.OrganizationID, docs)
		if err != nil {
			return out, fmt.Errorf("search: %w", err)
		}
	}
	// semantic ranking needs embeddings; without any, both auto and an explicit
	// semantic request are answered by keyword and report it.
	switch {
	case mode == ModeKeyword:
	case len(cands) == 0:
		mode = ModeKeyword
	case mode == ModeAuto:
		mode = ModeSemantic
	}
	out.Mode = mode
	span.SetAttributes(attribute.String("search.mode", string(mode)))
	deps.Metrics.IncRetrieval(string(mode))

	switch mode {
	case ModeKeyword:
		out.Results = RankKeyword(query, docs)
	case ModeSemantic:
		if deps.AI == nil {
			return out, fmt.Errorf("search: missing embedding provider")
		}
		qvec, err := deps.AI.Embed(ctx, query)
		if err != nil {
			return out, providerErr("embed", err)
		}
		for _, s := range RankSemantic(qvec, cands, ChatThreshold, 0) {
			out.Results = append(out.Results, RetrievalResult{
				DocumentID: s.Doc.ID,
				Title:      s.Doc.Title,
				DocType:    s.Doc.DocType,
				Score:      s.Score,
				Snippet:    ExtractSnippet(s.Doc.Content, query),
				WhyMatched: semanticWhy(query, s),
			})
		}
	default:
		return out, fmt.Errorf("search: %w: unknown mode %q", ErrInvalidInput, mode)
	}
	if len(out.Results) > limit {
		out.Results = out.Results[:limit]
	}
	return out, nil
}

func semanticWhy(query string, s Scored) []string {
	why := []string{fmt.Sprintf("semantic similarity %.2f", s.Score)}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(s.Doc.Title), q) {
		why = append(why, WhyTitle)
	}
	return why
}

// loadCandidates pairs documents with their embeddings, dropping documents
// that have none. Document order is preserved.
func loadCandidates(dbc dbctx.Context, embeddings repos.EmbeddingRepo, orgID uuid.UUID, docs []*types.Document) ([]Candidate, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	rows, err := embeddings.ListByDocumentIDs(dbc, orgID, ids)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	vecs := make(map[uuid.UUID][]float32, len(rows))
	for _, r := range rows {
		vecs[r.DocumentID] = r.Values()
	}
	out := make([]Candidate, 0, len(rows))
	for _, d := range docs {
		if v, ok := vecs[d.ID]; ok && len(v) > 0 {
			out = append(out, Candidate{Doc: d, Vector: v})
		}
	}
	return out, nil
}
