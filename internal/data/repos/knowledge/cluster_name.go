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

type ClusterNameRepo interface {
	Upsert(dbc dbctx.Context, orgID uuid.UUID, clusterIndex int, name string) error
	// ListByOrganization maps cluster index to name.
	ListByOrganization(dbc dbctx.Context, orgID uuid.UUID) (map[int]string, error)
	// DeleteExcept removes every name of the organization whose index is not in keep.
	DeleteExcept(dbc dbctx.Context, orgID uuid.UUID, keep []int) error
}

type clusterNameRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClusterNameRepo(db *gorm.DB, baseLog *logger.Logger) ClusterNameRepo {
	return &clusterNameRepo{db: db, log: baseLog.With("repo", "ClusterNameRepo")}
}

func (r *clusterNameRepo) Upsert(dbc dbctx.Context, orgID uuid.UUID, clusterIndex int, name string) error {
	if orgID == uuid.Nil {
		return fmt.Errorf("upsert cluster name: missing organization_id")
	}
	if clusterIndex < 0 {
		return fmt.Errorf("upsert cluster name: negative cluster index %d", clusterIndex)
	}
	row := &types.ClusterName{
		OrganizationID: orgID,
		ClusterIndex:   clusterIndex,
		Name:           name,
		UpdatedAt:      time.Now().UTC(),
	}
	err := dbc.Conn(r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "organization_id"},
			{Name: "cluster_index"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(row).Error
	return mapErr("upsert cluster name", err)
}

func (r *clusterNameRepo) ListByOrganization(dbc dbctx.Context, orgID uuid.UUID) (map[int]string, error) {
	var rows []*types.ClusterName
	if err := dbc.Conn(r.db).
		Where("organization_id = ?", orgID).
		Order("cluster_index ASC").
		Find(&rows).Error; err != nil {
		return nil, mapErr("list cluster names", err)
	}
	out := make(map[int]string, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		out[row.ClusterIndex] = row.Name
	}
	return out, nil
}

func (r *clusterNameRepo) DeleteExcept(dbc dbctx.Context, orgID uuid.UUID, keep []int) error {
	if orgID == uuid.Nil {
		return fmt.Errorf("delete cluster names: missing organization_id")
	}
	q := dbc.Conn(r.db).Where("organization_id = ?", orgID)
	if len(keep) > 0 {
		q = q.Where("cluster_index NOT IN ?", keep)
	}
	return mapErr("delete cluster names", q.Delete(&types.ClusterName{}).Error)
}
