package knowledge

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/primestride/atlas-backend/internal/domain"
	"github.com/primestride/atlas-backend/internal/platform/dbctx"
	"github.com/primestride/atlas-backend/internal/platform/logger"
)

// AccessFilter narrows an organization's documents to what a caller may read.
// Admins (All) see everything; members see organization-wide documents, their
// teams' documents, and documents they created.
type AccessFilter struct {
	All     bool
	UserID  uuid.UUID
	TeamIDs []uuid.UUID
}

type DocumentRepo interface {
	Create(dbc dbctx.Context, docs []*types.Document) ([]*types.Document, error)
	GetByID(dbc dbctx.Context, orgID, id uuid.UUID) (*types.Document, error)
	ListByOrganization(dbc dbctx.Context, orgID uuid.UUID, filter AccessFilter) ([]*types.Document, error)
	GetContentByIDs(dbc dbctx.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*types.Document, error)
	ListIDsByProject(dbc dbctx.Context, orgID, projectID uuid.UUID, filter AccessFilter) ([]uuid.UUID, error)
	CountByOrganization(dbc dbctx.Context, orgID uuid.UUID) (int64, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Create(dbc dbctx.Context, docs []*types.Document) ([]*types.Document, error) {
	if len(docs) == 0 {
		return []*types.Document{}, nil
	}
	if err := dbc.Conn(r.db).Create(&docs).Error; err != nil {
		return nil, mapErr("create documents", err)
	}
	return docs, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, orgID, id uuid.UUID) (*types.Document, error) {
	var doc types.Document
	if err := dbc.Conn(r.db).
		Where("organization_id = ? AND id = ?", orgID, id).
		First(&doc).Error; err != nil {
		return nil, mapErr("get document", err)
	}
	return &doc, nil
}

// ListByOrganization returns documents in the store's natural order (oldest first).
func (r *documentRepo) ListByOrganization(dbc dbctx.Context, orgID uuid.UUID, filter AccessFilter) ([]*types.Document, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("list documents: missing organization_id")
	}
	q := applyAccess(dbc.Conn(r.db).Model(&types.Document{}).Where("organization_id = ?", orgID), filter)
	var out []*types.Document
	if err := q.Order("created_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, mapErr("list documents", err)
	}
	return out, nil
}

func (r *documentRepo) GetContentByIDs(dbc dbctx.Context, orgID uuid.UUID, ids []uuid.UUID) ([]*types.Document, error) {
	if len(ids) == 0 {
		return []*types.Document{}, nil
	}
	var out []*types.Document
	if err := dbc.Conn(r.db).
		Where("organization_id = ? AND id IN ?", orgID, ids).
		Order("created_at ASC").
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, mapErr("get documents by ids", err)
	}
	return out, nil
}

func (r *documentRepo) ListIDsByProject(dbc dbctx.Context, orgID, projectID uuid.UUID, filter AccessFilter) ([]uuid.UUID, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("list project documents: missing project_id")
	}
	q := applyAccess(dbc.Conn(r.db).Model(&types.Document{}).
		Where("organization_id = ? AND project_id = ?", orgID, projectID), filter)
	var ids []uuid.UUID
	if err := q.Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		return nil, mapErr("list project documents", err)
	}
	return ids, nil
}

func (r *documentRepo) CountByOrganization(dbc dbctx.Context, orgID uuid.UUID) (int64, error) {
	var n int64
	if err := dbc.Conn(r.db).
		Model(&types.Document{}).
		Where("organization_id = ?", orgID).
		Count(&n).Error; err != nil {
		return 0, mapErr("count documents", err)
	}
	return n, nil
}

func applyAccess(q *gorm.DB, filter AccessFilter) *gorm.DB {
	if filter.All {
		return q
	}
	cond := "team_id IS NULL"
	args := []any{}
	if len(filter.TeamIDs) > 0 {
		cond += " OR team_id IN ?"
		args = append(args, filter.TeamIDs)
	}
	if filter.UserID != uuid.Nil {
		cond += " OR created_by = ?"
		args = append(args, filter.UserID)
	}
	return q.Where("("+cond+")", args...)
}
