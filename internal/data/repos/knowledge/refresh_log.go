package knowledge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/primestride/atlas-backend/internal/domain"
	"github.com/primestride/atlas-backend/internal/platform/dbctx"
	"github.com/primestride/atlas-backend/internal/platform/logger"
)

type RefreshLogRepo interface {
	Insert(dbc dbctx.Context, entry *types.RefreshLogEntry) error
	// CountSince counts refresh runs by one user in one organization created at or after since.
	CountSince(dbc dbctx.Context, orgID, userID uuid.UUID, since time.Time) (int64, error)
	// SumDocsSince totals documents processed by all refreshes of an organization since.
	SumDocsSince(dbc dbctx.Context, orgID uuid.UUID, since time.Time) (int64, error)
	ListRecent(dbc dbctx.Context, orgID uuid.UUID, limit int) ([]*types.RefreshLogEntry, error)
}

type refreshLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRefreshLogRepo(db *gorm.DB, baseLog *logger.Logger) RefreshLogRepo {
	return &refreshLogRepo{db: db, log: baseLog.With("repo", "RefreshLogRepo")}
}

func (r *refreshLogRepo) Insert(dbc dbctx.Context, entry *types.RefreshLogEntry) error {
	if entry == nil {
		return fmt.Errorf("insert refresh log: nil entry")
	}
	if entry.OrganizationID == uuid.Nil || entry.UserID == uuid.Nil {
		return fmt.Errorf("insert refresh log: missing organization_id or user_id")
	}
	if entry.DocumentsProcessed < 0 {
		entry.DocumentsProcessed = 0
	}
	return mapErr("insert refresh log", dbc.Conn(r.db).Create(entry).Error)
}

func (r *refreshLogRepo) CountSince(dbc dbctx.Context, orgID, userID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	if err := dbc.Conn(r.db).
		Model(&types.RefreshLogEntry{}).
		Where("organization_id = ? AND user_id = ? AND created_at >= ?", orgID, userID, since.UTC()).
		Count(&n).Error; err != nil {
		return 0, mapErr("count refresh runs", err)
	}
	return n, nil
}

func (r *refreshLogRepo) SumDocsSince(dbc dbctx.Context, orgID uuid.UUID, since time.Time) (int64, error) {
	var total int64
	if err := dbc.Conn(r.db).
		Model(&types.RefreshLogEntry{}).
		Select("COALESCE(SUM(documents_processed), 0)").
		Where("organization_id = ? AND created_at >= ?", orgID, since.UTC()).
		Scan(&total).Error; err != nil {
		return 0, mapErr("sum refreshed documents", err)
	}
	return total, nil
}

func (r *refreshLogRepo) ListRecent(dbc dbctx.Context, orgID uuid.UUID, limit int) ([]*types.RefreshLogEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []*types.RefreshLogEntry
	if err := dbc.Conn(r.db).
		Where("organization_id = ?", orgID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, mapErr("list refresh log", err)
	}
	return out, nil
}
