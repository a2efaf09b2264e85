package knowledge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/primestride/atlas-backend/internal/domain"
	"github.com/primestride/atlas-backend/internal/platform/dbctx"
	"github.com/primestride/atlas-backend/internal/platform/logger"
)

type EmbeddingRepo interface {
	// Upsert replaces the vector of (document_id, organization_id), keeping the row id.
	Upsert(dbc dbctx.Context, row *types.DocumentEmbedding) error
	ListByOrganization(dbc dbctx.Context, orgID uuid.UUID) ([]*types.DocumentEmbedding, error)
	ListByDocumentIDs(dbc dbctx.Context, orgID uuid.UUID, docIDs []uuid.UUID) ([]*types.DocumentEmbedding, error)
	CountByOrganization(dbc dbctx.Context, orgID uuid.UUID) (int64, error)
	LatestGeneratedAt(dbc dbctx.Context, orgID uuid.UUID) (*time.Time, error)
}

type embeddingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmbeddingRepo(db *gorm.DB, baseLog *logger.Logger) EmbeddingRepo {
	return &embeddingRepo{db: db, log: baseLog.With("repo", "EmbeddingRepo")}
}

func (r *embeddingRepo) Upsert(dbc dbctx.Context, row *types.DocumentEmbedding) error {
	if row == nil {
		return fmt.Errorf("upsert embedding: nil row")
	}
	if row.DocumentID == uuid.Nil || row.OrganizationID == uuid.Nil {
		return fmt.Errorf("upsert embedding: missing document_id or organization_id")
	}
	now := time.Now().UTC()
	if row.LastGeneratedAt.IsZero() {
		row.LastGeneratedAt = now
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now

	err := dbc.Conn(r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "document_id"},
			{Name: "organization_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"vector",
			"model",
			"last_generated_at",
			"updated_at",
		}),
	}).Create(row).Error
	return mapErr("upsert embedding", err)
}

func (r *embeddingRepo) ListByOrganization(dbc dbctx.Context, orgID uuid.UUID) ([]*types.DocumentEmbedding, error) {
	var out []*types.DocumentEmbedding
	if err := dbc.Conn(r.db).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Order("document_id ASC").
		Find(&out).Error; err != nil {
		return nil, mapErr("list embeddings", err)
	}
	return out, nil
}

func (r *embeddingRepo) ListByDocumentIDs(dbc dbctx.Context, orgID uuid.UUID, docIDs []uuid.UUID) ([]*types.DocumentEmbedding, error) {
	if len(docIDs) == 0 {
		return []*types.DocumentEmbedding{}, nil
	}
	var out []*types.DocumentEmbedding
	if err := dbc.Conn(r.db).
		Where("organization_id = ? AND document_id IN ?", orgID, docIDs).
		Order("created_at ASC").
		Order("document_id ASC").
		Find(&out).Error; err != nil {
		return nil, mapErr("list embeddings by documents", err)
	}
	return out, nil
}

func (r *embeddingRepo) CountByOrganization(dbc dbctx.Context, orgID uuid.UUID) (int64, error) {
	var n int64
	if err := dbc.Conn(r.db).
		Model(&types.DocumentEmbedding{}).
		Where("organization_id = ?", orgID).
		Count(&n).Error; err != nil {
		return 0, mapErr("count embeddings", err)
	}
	return n, nil
}

func (r *embeddingRepo) LatestGeneratedAt(dbc dbctx.Context, orgID uuid.UUID) (*time.Time, error) {
	var rows []*types.DocumentEmbedding
	if err := dbc.Conn(r.db).
		Select("last_generated_at").
		Where("organization_id = ?", orgID).
		Order("last_generated_at DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, mapErr("latest embedding", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	t := rows[0].LastGeneratedAt.UTC()
	return &t, nil
}
