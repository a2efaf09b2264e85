package steps

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/primestride/atlas-backend/internal/data/repos"
	types "github.com/primestride/atlas-backend/internal/domain"
	"github.com/primestride/atlas-backend/internal/platform/dbctx"
	"github.com/primestride/atlas-backend/internal/platform/logger"
	"github.com/primestride/atlas-backend/internal/platform/openai"
)

// store backs every fake repo so tests can seed and inspect one place.
type store struct {
	mu         sync.Mutex
	orgs       map[uuid.UUID]*types.Organization
	state      map[uuid.UUID]*types.OrganizationEmbeddingState
	docs       []*types.Document
	embeddings []*types.DocumentEmbedding
	names      map[uuid.UUID]map[int]string
	logs       []*types.RefreshLogEntry

	// countBarrier, when set, is called inside CountSince after counting.
	countBarrier func()
	upsertErr    error
}

func newStore() *store {
	return &store{
		orgs:  map[uuid.UUID]*types.Organization{},
		state: map[uuid.UUID]*types.OrganizationEmbeddingState{},
		names: map[uuid.UUID]map[int]string{},
	}
}

func (s *store) addOrg(name string) *types.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &types.Organization{ID: uuid.New(), Name: name, Slug: strings.ToLower(name)}
	s.orgs[o.ID] = o
	return o
}

func (s *store) addDoc(orgID uuid.UUID, title, content string, mut ...func(*types.Document)) *types.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &types.Document{ID: uuid.New(), OrganizationID: orgID, Title: title, Content: content, DocType: "document"}
	for _, m := range mut {
		m(d)
	}
	s.docs = append(s.docs, d)
	return d
}

func (s *store) setEmbedding(orgID, docID uuid.UUID, vec []float32, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.embeddings {
		if e.DocumentID == docID && e.OrganizationID == orgID {
			e.Vector = pgvector.NewVector(vec)
			e.LastGeneratedAt = at
			return
		}
	}
	s.embeddings = append(s.embeddings, &types.DocumentEmbedding{
		ID: uuid.New(), DocumentID: docID, OrganizationID: orgID,
		Vector: pgvector.NewVector(vec), LastGeneratedAt: at,
	})
}

func (s *store) addLog(orgID, userID uuid.UUID, docs int, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, &types.RefreshLogEntry{ID: uuid.New(), OrganizationID: orgID, UserID: userID, DocumentsProcessed: docs, CreatedAt: at})
}

func (s *store) logCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

func (s *store) embeddingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.embeddings)
}

func visibleTo(d *types.Document, f repos.AccessFilter) bool {
	if f.All || d.TeamID == nil {
		return true
	}
	for _, t := range f.TeamIDs {
		if *d.TeamID == t {
			return true
		}
	}
	return d.CreatedBy != nil && *d.CreatedBy == f.UserID
}

type fakeOrgs struct{ s *store }

func (f fakeOrgs) Create(_ dbctx.Context, org *types.Organization) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.orgs[org.ID] = org
	return nil
}

func (f fakeOrgs) GetByID(_ dbctx.Context, id uuid.UUID) (*types.Organization, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if o, ok := f.s.orgs[id]; ok {
		return o, nil
	}
	return nil, repos.ErrNotFound
}

func (f fakeOrgs) GetEmbeddingState(_ dbctx.Context, orgID uuid.UUID) (*types.OrganizationEmbeddingState, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.state[orgID], nil
}

func (f fakeOrgs) UpsertEmbeddingState(_ dbctx.Context, orgID uuid.UUID, at time.Time, by uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.state[orgID] = &types.OrganizationEmbeddingState{OrganizationID: orgID, LastFullRefresh: at, LastRefreshBy: by}
	return nil
}

type fakeDocs struct{ s *store }

func (f fakeDocs) Create(_ dbctx.Context, docs []*types.Document) ([]*types.Document, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.docs = append(f.s.docs, docs...)
	return docs, nil
}

func (f fakeDocs) GetByID(_ dbctx.Context, orgID, id uuid.UUID) (*types.Document, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, d := range f.s.docs {
		if d.OrganizationID == orgID && d.ID == id {
			return d, nil
		}
	}
	return nil, repos.ErrNotFound
}

func (f fakeDocs) ListByOrganization(_ dbctx.Context, orgID uuid.UUID, filter repos.AccessFilter) ([]*types.Document, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []*types.Document{}
	for _, d := range f.s.docs {
		if d.OrganizationID == orgID && visibleTo(d, filter) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f fakeDocs) GetContentByIDs(_ dbctx.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*types.Document, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := []*types.Document{}
	for _, d := range f.s.docs {
		if d.OrganizationID == orgID && want[d.ID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f fakeDocs) ListIDsByProject(_ dbctx.Context, orgID, projectID uuid.UUID, filter repos.AccessFilter) ([]uuid.UUID, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []uuid.UUID{}
	for _, d := range f.s.docs {
		if d.OrganizationID == orgID && d.ProjectID != nil && *d.ProjectID == projectID && visibleTo(d, filter) {
			out = append(out, d.ID)
		}
	}
	return out, nil
}

func (f fakeDocs) CountByOrganization(_ dbctx.Context, orgID uuid.UUID) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for _, d := range f.s.docs {
		if d.OrganizationID == orgID {
			n++
		}
	}
	return n, nil
}

type fakeEmbeddings struct{ s *store }

func (f fakeEmbeddings) Upsert(_ dbctx.Context, row *types.DocumentEmbedding) error {
	if f.s.upsertErr != nil {
		return f.s.upsertErr
	}
	f.s.setEmbedding(row.OrganizationID, row.DocumentID, row.Vector.Slice(), row.LastGeneratedAt)
	return nil
}

func (f fakeEmbeddings) ListByOrganization(_ dbctx.Context, orgID uuid.UUID) ([]*types.DocumentEmbedding, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []*types.DocumentEmbedding{}
	for _, e := range f.s.embeddings {
		if e.OrganizationID == orgID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f fakeEmbeddings) ListByDocumentIDs(dbc dbctx.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*types.DocumentEmbedding, error) {
	all, _ := f.ListByOrganization(dbc, orgID)
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := []*types.DocumentEmbedding{}
	for _, e := range all {
		if want[e.DocumentID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f fakeEmbeddings) CountByOrganization(dbc dbctx.Context, orgID uuid.UUID) (int64, error) {
	all, _ := f.ListByOrganization(dbc, orgID)
	return int64(len(all)), nil
}

func (f fakeEmbeddings) LatestGeneratedAt(dbc dbctx.Context, orgID uuid.UUID) (*time.Time, error) {
	all, _ := f.ListByOrganization(dbc, orgID)
	var latest *time.Time
	for _, e := range all {
		t := e.LastGeneratedAt
		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}
	return latest, nil
}

type fakeClusterNames struct{ s *store }

func (f fakeClusterNames) Upsert(_ dbctx.Context, orgID uuid.UUID, idx int, name string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.names[orgID] == nil {
		f.s.names[orgID] = map[int]string{}
	}
	f.s.names[orgID][idx] = name
	return nil
}

func (f fakeClusterNames) ListByOrganization(_ dbctx.Context, orgID uuid.UUID) (map[int]string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := map[int]string{}
	for k, v := range f.s.names[orgID] {
		out[k] = v
	}
	return out, nil
}

func (f fakeClusterNames) DeleteExcept(_ dbctx.Context, orgID uuid.UUID, keep []int) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	keepSet := map[int]bool{}
	for _, idx := range keep {
		keepSet[idx] = true
	}
	for idx := range f.s.names[orgID] {
		if !keepSet[idx] {
			delete(f.s.names[orgID], idx)
		}
	}
	return nil
}

type fakeRefreshLog struct{ s *store }

func (f fakeRefreshLog) Insert(_ dbctx.Context, e *types.RefreshLogEntry) error {
	f.s.addLog(e.OrganizationID, e.UserID, e.DocumentsProcessed, e.CreatedAt)
	return nil
}

func (f fakeRefreshLog) CountSince(_ dbctx.Context, orgID, userID uuid.UUID, since time.Time) (int64, error) {
	f.s.mu.Lock()
	var n int64
	for _, e := range f.s.logs {
		if e.OrganizationID == orgID && e.UserID == userID && !e.CreatedAt.Before(since) {
			n++
		}
	}
	barrier := f.s.countBarrier
	f.s.mu.Unlock()
	if barrier != nil {
		barrier()
	}
	return n, nil
}

func (f fakeRefreshLog) SumDocsSince(_ dbctx.Context, orgID uuid.UUID, since time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for _, e := range f.s.logs {
		if e.OrganizationID == orgID && !e.CreatedAt.Before(since) {
			n += int64(e.DocumentsProcessed)
		}
	}
	return n, nil
}

func (f fakeRefreshLog) ListRecent(_ dbctx.Context, orgID uuid.UUID, limit int) ([]*types.RefreshLogEntry, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := []*types.RefreshLogEntry{}
	for _, e := range f.s.logs {
		if e.OrganizationID == orgID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var errFakeProvider = errors.New("provider unavailable")

// fakeAI embeds text as term counts over a small vocabulary so related
// documents land close together.
type fakeAI struct {
	embedErr    func(text string) error
	complete    func(req openai.CompletionRequest) (string, error)
	embedCalls  atomic.Int32
	completeReq []openai.CompletionRequest
	mu          sync.Mutex
}

var fakeVocab = []string{"onboarding", "welcome", "laptop", "day", "expense", "receipts", "policy", "security", "password", "vacation"}

func bagVector(text string) []float32 {
	lc := strings.ToLower(text)
	v := make([]float32, len(fakeVocab))
	for i, w := range fakeVocab {
		v[i] = float32(strings.Count(lc, w))
	}
	return v
}

func (a *fakeAI) Embed(_ context.Context, text string) ([]float32, error) {
	a.embedCalls.Add(1)
	if a.embedErr != nil {
		if err := a.embedErr(text); err != nil {
			return nil, err
		}
	}
	return bagVector(text), nil
}

func (a *fakeAI) Complete(_ context.Context, req openai.CompletionRequest) (string, error) {
	a.mu.Lock()
	a.completeReq = append(a.completeReq, req)
	a.mu.Unlock()
	if a.complete != nil {
		return a.complete(req)
	}
	return "Topic Group", nil
}

func (a *fakeAI) completions() []openai.CompletionRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]openai.CompletionRequest(nil), a.completeReq...)
}

type fixture struct {
	s   *store
	ai  *fakeAI
	log *logger.Logger
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		s:   newStore(),
		ai:  &fakeAI{},
		log: logger.Nop(),
		now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) refreshDeps() RefreshDeps {
	return RefreshDeps{
		Log:          f.log,
		AI:           f.ai,
		Orgs:         fakeOrgs{f.s},
		Docs:         fakeDocs{f.s},
		Embeddings:   fakeEmbeddings{f.s},
		ClusterNames: fakeClusterNames{f.s},
		RefreshLog:   fakeRefreshLog{f.s},
		Settings:     DefaultSettings(),
		Now:          f.clock,
	}
}

func (f *fixture) answerDeps() AnswerDeps {
	return AnswerDeps{
		Log:        f.log,
		AI:         f.ai,
		Orgs:       fakeOrgs{f.s},
		Docs:       fakeDocs{f.s},
		Embeddings: fakeEmbeddings{f.s},
	}
}

func (f *fixture) searchDeps() SearchDeps {
	return SearchDeps{Log: f.log, AI: f.ai, Docs: fakeDocs{f.s}, Embeddings: fakeEmbeddings{f.s}}
}

func (f *fixture) graphDeps() GraphDeps {
	return GraphDeps{Log: f.log, Docs: fakeDocs{f.s}, Embeddings: fakeEmbeddings{f.s}, ClusterNames: fakeClusterNames{f.s}}
}

// seedScenario adds the three-document organization used across tests.
func (f *fixture) seedScenario() (*types.Organization, []*types.Document) {
	org := f.s.addOrg("Acme")
	docs := []*types.Document{
		f.s.addDoc(org.ID, "Onboarding Guide", "Welcome to the team. This guide covers your first weeks and who to ask for help."),
		f.s.addDoc(org.ID, "Expense Policy", "Submit receipts within 30 days. Expense reports without receipts are returned."),
		f.s.addDoc(org.ID, "Onboarding Checklist", "Day 1: set up your laptop, badge and accounts. Day 2: meet your onboarding buddy."),
	}
	return org, docs
}

func (f *fixture) embedAll(orgID uuid.UUID, docs []*types.Document, at time.Time) {
	for _, d := range docs {
		f.s.setEmbedding(orgID, d.ID, bagVector(d.Title+"\n\n"+d.Content), at)
	}
}

func dbcOf(t *testing.T) dbctx.Context {
	t.Helper()
	return dbctx.Context{Ctx: context.Background()}
}
