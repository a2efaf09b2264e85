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

type OrganizationRepo interface {
	Create(dbc dbctx.Context, org *types.Organization) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Organization, error)
	GetEmbeddingState(dbc dbctx.Context, orgID uuid.UUID) (*types.OrganizationEmbeddingState, error)
	UpsertEmbeddingState(dbc dbctx.Context, orgID uuid.UUID, at time.Time, by uuid.UUID) error
}

type organizationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOrganizationRepo(db *gorm.DB, baseLog *logger.Logger) OrganizationRepo {
	return &organizationRepo{db: db, log: baseLog.With("repo", "OrganizationRepo")}
}

func (r *organizationRepo) Create(dbc dbctx.Context, org *types.Organization) error {
	if org == nil {
		return fmt.Errorf("create organization: nil row")
	}
	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	org.UpdatedAt = now
	return mapErr("create organization", dbc.Conn(r.db).Create(org).Error)
}

func (r *organizationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Organization, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("get organization: %w", ErrNotFound)
	}
	var org types.Organization
	if err := dbc.Conn(r.db).Where("id = ?", id).First(&org).Error; err != nil {
		return nil, mapErr("get organization", err)
	}
	return &org, nil
}

// GetEmbeddingState returns nil without error when the organization was never refreshed.
func (r *organizationRepo) GetEmbeddingState(dbc dbctx.Context, orgID uuid.UUID) (*types.OrganizationEmbeddingState, error) {
	var rows []*types.OrganizationEmbeddingState
	if err := dbc.Conn(r.db).
		Where("organization_id = ?", orgID).
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, mapErr("get embedding state", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *organizationRepo) UpsertEmbeddingState(dbc dbctx.Context, orgID uuid.UUID, at time.Time, by uuid.UUID) error {
	if orgID == uuid.Nil {
		return fmt.Errorf("upsert embedding state: missing organization_id")
	}
	row := &types.OrganizationEmbeddingState{
		OrganizationID:  orgID,
		LastFullRefresh: at.UTC(),
		LastRefreshBy:   by,
		UpdatedAt:       time.Now().UTC(),
	}
	err := dbc.Conn(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_full_refresh", "last_refresh_by", "updated_at"}),
	}).Create(row).Error
	return mapErr("upsert embedding state", err)
}
