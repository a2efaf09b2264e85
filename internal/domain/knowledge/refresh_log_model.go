package knowledge

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RefreshLogEntry is append-only. Rows are never updated or deleted.
type RefreshLogEntry struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_refresh_log_org_user_created" json:"organization_id"`
	UserID             uuid.UUID      `gorm:"type:uuid;not null;index:idx_refresh_log_org_user_created" json:"user_id"`
	DocumentsProcessed int            `gorm:"not null;default:0" json:"documents_processed"`
	Metadata           datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;index:idx_refresh_log_org_user_created" json:"created_at"`
}

func (RefreshLogEntry) TableName() string { return "embedding_refresh_log" }

func (e *RefreshLogEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if len(e.Metadata) == 0 {
		e.Metadata = datatypes.JSON([]byte("{}"))
	}
	return nil
}
