package steps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRefreshStatus(t *testing.T) {
	f := newFixture(t)
	org, docs := f.seedScenario()
	user := uuid.New()
	f.embedAll(org.ID, docs[:2], f.now.Add(-2*time.Hour))
	f.s.addLog(org.ID, user, 2, f.now.Add(-2*time.Hour))
	f.s.addLog(org.ID, uuid.New(), 40, f.now.Add(-time.Hour))
	f.s.addLog(org.ID, user, 99, f.now.Add(-30*time.Hour))
	_ = fakeOrgs{f.s}.UpsertEmbeddingState(dbcOf(t), org.ID, f.now.Add(-time.Hour), user)

	deps := StatusDeps{
		Orgs:       fakeOrgs{f.s},
		Docs:       fakeDocs{f.s},
		Embeddings: fakeEmbeddings{f.s},
		RefreshLog: fakeRefreshLog{f.s},
		Now:        f.clock,
	}
	out, err := RefreshStatus(context.Background(), deps, StatusInput{OrganizationID: org.ID, UserID: user})
	if err != nil {
		t.Fatalf("RefreshStatus: %v", err)
	}
	if out.TotalDocuments != 3 || out.EmbeddedDocuments != 2 {
		t.Fatalf("counts total=%d embedded=%d", out.TotalDocuments, out.EmbeddedDocuments)
	}
	if out.RunsUsed != 1 || out.RunsRemaining != 2 {
		t.Fatalf("runs used=%d remaining=%d", out.RunsUsed, out.RunsRemaining)
	}
	if out.DocsUsed != 42 || out.DocsRemaining != 458 {
		t.Fatalf("docs used=%d remaining=%d", out.DocsUsed, out.DocsRemaining)
	}
	if out.LastRefreshBy == nil || *out.LastRefreshBy != user {
		t.Fatalf("last refresh by = %v", out.LastRefreshBy)
	}
	if out.LatestEmbeddingAt == nil || !out.LatestEmbeddingAt.Equal(f.now.Add(-2*time.Hour)) {
		t.Fatalf("latest embedding = %v", out.LatestEmbeddingAt)
	}
	if out.WindowHours != 24 || out.CooldownHours != 24 {
		t.Fatalf("window=%d cooldown=%d", out.WindowHours, out.CooldownHours)
	}
	if len(out.RecentRuns) != 3 || out.RecentRuns[0].DocumentsProcessed != 40 {
		t.Fatalf("recent runs = %+v", out.RecentRuns)
	}
}

func TestRefreshStatusNeverRefreshed(t *testing.T) {
	f := newFixture(t)
	org := f.s.addOrg("Empty")
	deps := StatusDeps{Orgs: fakeOrgs{f.s}, Docs: fakeDocs{f.s}, Embeddings: fakeEmbeddings{f.s}, RefreshLog: fakeRefreshLog{f.s}, Now: f.clock}

	out, err := RefreshStatus(context.Background(), deps, StatusInput{OrganizationID: org.ID})
	if err != nil {
		t.Fatalf("RefreshStatus: %v", err)
	}
	if out.LastFullRefresh != nil || out.LatestEmbeddingAt != nil || out.RunsRemaining != 3 || out.DocsRemaining != 500 {
		t.Fatalf("unexpected status %+v", out)
	}

	if _, err := RefreshStatus(context.Background(), deps, StatusInput{OrganizationID: uuid.New()}); !errors.Is(err, ErrOrganizationNotFound) {
		t.Fatalf("unknown organization: got %v", err)
	}
}
