package knowledge

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Document struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;index" json:"organization_id"`

	TeamID    *uuid.UUID `gorm:"type:uuid;index" json:"team_id,omitempty"`
	FolderID  *uuid.UUID `gorm:"type:uuid;index" json:"folder_id,omitempty"`
	ProjectID *uuid.UUID `gorm:"type:uuid;index" json:"project_id,omitempty"`
	CreatedBy *uuid.UUID `gorm:"type:uuid;index" json:"created_by,omitempty"`

	Title   string         `gorm:"type:text;not null" json:"title"`
	Content string         `gorm:"type:text;not null" json:"content"`
	Summary string         `gorm:"type:text" json:"summary,omitempty"`
	DocType string         `gorm:"type:text;not null;default:'document'" json:"doc_type"`
	Tags    datatypes.JSON `gorm:"type:jsonb" json:"tags"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Document) TableName() string { return "document" }

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}
	if d.DocType == "" {
		d.DocType = "document"
	}
	if len(d.Tags) == 0 {
		d.Tags = datatypes.JSON([]byte("[]"))
	}
	return nil
}

// TagList decodes Tags, returning nil for empty or malformed values.
func (d *Document) TagList() []string {
	if d == nil || len(d.Tags) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(d.Tags, &out); err != nil {
		return nil
	}
	return out
}

// SetTags encodes tags into the JSON column.
func (d *Document) SetTags(tags []string) {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	d.Tags = datatypes.JSON(b)
}
