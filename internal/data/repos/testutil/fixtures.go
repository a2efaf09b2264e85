package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	types "github.com/primestride/atlas-backend/internal/domain"
)

func SeedOrganization(tb testing.TB, ctx context.Context, tx *gorm.DB) *types.Organization {
	tb.Helper()
	id := uuid.New()
	org := &types.Organization{
		ID:        id,
		Name:      "Org " + id.String()[:8],
		Slug:      "org-" + id.String(),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(org).Error; err != nil {
		tb.Fatalf("seed organization: %v", err)
	}
	return org
}

// DocOpt customizes a seeded document.
type DocOpt func(d *types.Document)

func WithTeam(id uuid.UUID) DocOpt     { return func(d *types.Document) { d.TeamID = PtrUUID(id) } }
func WithProject(id uuid.UUID) DocOpt  { return func(d *types.Document) { d.ProjectID = PtrUUID(id) } }
func WithCreator(id uuid.UUID) DocOpt  { return func(d *types.Document) { d.CreatedBy = PtrUUID(id) } }
func WithSummary(s string) DocOpt      { return func(d *types.Document) { d.Summary = s } }
func WithTags(tags ...string) DocOpt   { return func(d *types.Document) { d.SetTags(tags) } }
func WithCreatedAt(t time.Time) DocOpt { return func(d *types.Document) { d.CreatedAt = t.UTC() } }

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, orgID uuid.UUID, title, content string, opts ...DocOpt) *types.Document {
	tb.Helper()
	d := &types.Document{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Title:          title,
		Content:        content,
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedEmbedding(tb testing.TB, ctx context.Context, tx *gorm.DB, orgID, docID uuid.UUID, vec []float32, generatedAt time.Time) *types.DocumentEmbedding {
	tb.Helper()
	now := time.Now().UTC()
	e := &types.DocumentEmbedding{
		ID:              uuid.New(),
		DocumentID:      docID,
		OrganizationID:  orgID,
		Vector:          pgvector.NewVector(vec),
		Model:           "test-embedding",
		LastGeneratedAt: generatedAt.UTC(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed embedding: %v", err)
	}
	return e
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
