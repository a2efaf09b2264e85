package knowledge

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// DocumentEmbedding holds the current vector for one document. There is at
// most one row per (document_id, organization_id).
type DocumentEmbedding struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_document_embedding_doc_org" json:"document_id"`
	OrganizationID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_document_embedding_doc_org;index" json:"organization_id"`
	Vector         pgvector.Vector `gorm:"type:vector;not null" json:"-"`
	Model          string          `gorm:"type:text" json:"model,omitempty"`

	LastGeneratedAt time.Time `gorm:"not null;index" json:"last_generated_at"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null" json:"updated_at"`
}

func (DocumentEmbedding) TableName() string { return "document_embedding" }

func (e *DocumentEmbedding) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (e *DocumentEmbedding) Values() []float32 {
	if e == nil {
		return nil
	}
	return e.Vector.Slice()
}
