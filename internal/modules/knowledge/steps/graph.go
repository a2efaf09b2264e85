package steps

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/primestride/atlas-backend/internal/data/repos"
	types "github.com/primestride/atlas-backend/internal/domain"
	"github.com/primestride/atlas-backend/internal/platform/dbctx"
	"github.com/primestride/atlas-backend/internal/platform/logger"
)

type GraphDeps struct {
	Log          *logger.Logger
	Docs         repos.DocumentRepo
	Embeddings   repos.EmbeddingRepo
	ClusterNames repos.ClusterNameRepo
}

type GraphInput struct {
	OrganizationID uuid.UUID
	Access         repos.AccessFilter
}

type GraphNode struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	DocType     string    `json:"doc_type"`
	Cluster     int       `json:"cluster"`
	ClusterName string    `json:"cluster_name,omitempty"`
}

type GraphEdge struct {
	Source     uuid.UUID `json:"source"`
	Target     uuid.UUID `json:"target"`
	Similarity float64   `json:"similarity"`
}

type GraphCluster struct {
	Index       int         `json:"index"`
	Name        string      `json:"name,omitempty"`
	DocumentIDs []uuid.UUID `json:"document_ids"`
}

type GraphOutput struct {
	Nodes    []GraphNode    `json:"nodes"`
	Edges    []GraphEdge    `json:"edges"`
	Clusters []GraphCluster `json:"clusters"`
}

// BuildGraph returns the similarity graph of the caller's embedded documents.
// Clusters are computed over the whole organization so indices line up with
// the names stored by the last refresh; only accessible members are listed.
func BuildGraph(ctx context.Context, deps GraphDeps, in GraphInput) (GraphOutput, error) {
	out := GraphOutput{Nodes: []GraphNode{}, Edges: []GraphEdge{}, Clusters: []GraphCluster{}}
	if deps.Log == nil || deps.Docs == nil || deps.Embeddings == nil {
		return out, fmt.Errorf("build_graph: missing deps")
	}
	if in.OrganizationID == uuid.Nil {
		return out, fmt.Errorf("build_graph: %w: missing organization_id", ErrInvalidInput)
	}
	dbc := dbctx.Context{Ctx: ctx}
	docs, err := deps.Docs.ListByOrganization(dbc, in.OrganizationID, in.Access)
	if err != nil {
		return out, fmt.Errorf("build_graph: list documents: %w", err)
	}
	visible := make(map[uuid.UUID]*types.Document, len(docs))
	for _, d := range docs {
		visible[d.ID] = d
	}
	rows, err := deps.Embeddings.ListByOrganization(dbc, in.OrganizationID)
	if err != nil {
		return out, fmt.Errorf("build_graph: list embeddings: %w", err)
	}

	names := map[int]string{}
	if deps.ClusterNames != nil {
		if n, err := deps.ClusterNames.ListByOrganization(dbc, in.OrganizationID); err != nil {
			deps.Log.Ctx(ctx).Warn("cluster names unavailable", "organization_id", in.OrganizationID, "error", err)
		} else {
			names = n
		}
	}

	clusterOf := map[uuid.UUID]int{}
	clusters := clusterRows(rows)
	if clusters == nil && len(rows) > 0 {
		clusters = [][]uuid.UUID{{rows[0].DocumentID}}
	}
	for idx, members := range clusters {
		gc := GraphCluster{Index: idx, Name: names[idx], DocumentIDs: []uuid.UUID{}}
		for _, id := range members {
			clusterOf[id] = idx
			if visible[id] != nil {
				gc.DocumentIDs = append(gc.DocumentIDs, id)
			}
		}
		out.Clusters = append(out.Clusters, gc)
	}

	cands := make([]Candidate, 0, len(rows))
	for _, r := range rows {
		d := visible[r.DocumentID]
		if d == nil {
			continue
		}
		cands = append(cands, Candidate{Doc: d, Vector: r.Values()})
		idx := clusterOf[d.ID]
		out.Nodes = append(out.Nodes, GraphNode{
			ID:          d.ID,
			Title:       d.Title,
			DocType:     d.DocType,
			Cluster:     idx,
			ClusterName: names[idx],
		})
	}
	out.Edges = RelatedEdges(cands, GraphThreshold, GraphTopN)
	return out, nil
}

// RelatedEdges links each candidate to its topN most similar peers above
// threshold. Pairs found from both ends are emitted once.
func RelatedEdges(cands []Candidate, threshold float64, topN int) []GraphEdge {
	type pair struct{ a, b uuid.UUID }
	seen := map[pair]bool{}
	edges := make([]GraphEdge, 0)
	for i, c := range cands {
		peers := make([]Candidate, 0, len(cands)-1)
		for j, other := range cands {
			if j != i {
				peers = append(peers, other)
			}
		}
		for _, s := range RankSemantic(c.Vector, peers, threshold, topN) {
			key := pair{c.Doc.ID, s.Doc.ID}
			if uuidLess(s.Doc.ID, c.Doc.ID) {
				key = pair{s.Doc.ID, c.Doc.ID}
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			edges = append(edges, GraphEdge{Source: c.Doc.ID, Target: s.Doc.ID, Similarity: s.Score})
		}
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Similarity > edges[j].Similarity })
	return edges
}

type RelatedInput struct {
	OrganizationID uuid.UUID
	DocumentID     uuid.UUID
	Access         repos.AccessFilter
}

// RelatedDocuments returns up to three accessible documents most similar to
// the given one. A document without an embedding has no related documents.
func RelatedDocuments(ctx context.Context, deps GraphDeps, in RelatedInput) ([]Source, error) {
	out := []Source{}
	if deps.Log == nil || deps.Docs == nil || deps.Embeddings == nil {
		return out, fmt.Errorf("related_documents: missing deps")
	}
	if in.OrganizationID == uuid.Nil || in.DocumentID == uuid.Nil {
		return out, fmt.Errorf("related_documents: %w: missing organization_id or document_id", ErrInvalidInput)
	}
	dbc := dbctx.Context{Ctx: ctx}
	docs, err := deps.Docs.ListByOrganization(dbc, in.OrganizationID, in.Access)
	if err != nil {
		return out, fmt.Errorf("related_documents: list documents: %w", err)
	}
	found := false
	for _, d := range docs {
		if d.ID == in.DocumentID {
			found = true
			break
		}
	}
	if !found {
		return out, ErrDocumentNotFound
	}
	cands, err := loadCandidates(dbc, deps.Embeddings, in.OrganizationID, docs)
	if err != nil {
		return out, fmt.Errorf("related_documents: %w", err)
	}
	var target []float32
	peers := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Doc.ID == in.DocumentID {
			target = c.Vector
			continue
		}
		peers = append(peers, c)
	}
	if target == nil {
		return out, nil
	}
	return sourcesFromScored(RankSemantic(target, peers, GraphThreshold, GraphTopN)), nil
}

func uuidLess(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
