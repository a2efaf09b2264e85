package knowledge

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Organization struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"type:text;not null" json:"name"`
	Slug string    `gorm:"type:text;not null;uniqueIndex" json:"slug"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Organization) TableName() string { return "organization" }

func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrganizationEmbeddingState tracks the most recent embedding refresh of an organization.
type OrganizationEmbeddingState struct {
	OrganizationID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"organization_id"`
	LastFullRefresh time.Time `gorm:"not null" json:"last_full_refresh"`
	LastRefreshBy   uuid.UUID `gorm:"type:uuid;not null" json:"last_refresh_by"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

func (OrganizationEmbeddingState) TableName() string { return "organization_embedding_state" }
