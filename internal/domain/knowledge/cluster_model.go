package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// ClusterName is the generated label of one topic cluster. Cluster membership
// itself is recomputed on demand and never stored.
type ClusterName struct {
	OrganizationID uuid.UUID `gorm:"type:uuid;primaryKey" json:"organization_id"`
	ClusterIndex   int       `gorm:"primaryKey;autoIncrement:false" json:"cluster_index"`
	Name           string    `gorm:"type:text;not null" json:"name"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

func (ClusterName) TableName() string { return "cluster_name" }
